package email

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

type sent struct{ to, subject, body string }

type recordingSender struct {
	mails []sent
	err   error
}

func (r *recordingSender) Send(to, subject, body string) error {
	if r.err != nil {
		return r.err
	}
	r.mails = append(r.mails, sent{to, subject, body})
	return nil
}

func newTestNotifier(s Sender) *Notifier {
	return NewNotifier(s, func(owner string) string { return owner + "@example.local" }, log.New(io.Discard, "", 0))
}

func TestConfirmationForCapturedPayment(t *testing.T) {
	s := &recordingSender{}
	newTestNotifier(s).OnEvent(context.Background(), checkout.Event{
		Type:          checkout.EventPaymentCaptured,
		Owner:         "alice",
		OrderID:       "1001",
		Provider:      checkout.ProviderStripeConnect,
		TransactionID: "cs_test_1",
	})

	require.Len(t, s.mails, 1)
	assert.Equal(t, "alice@example.local", s.mails[0].to)
	assert.Equal(t, "Your order confirmation", s.mails[0].subject)
	assert.Contains(t, s.mails[0].body, "1001")
	assert.Contains(t, s.mails[0].body, "Paid with Stripe (reference cs_test_1)")
}

func TestConfirmationWithoutOrderID(t *testing.T) {
	body := RenderConfirmation(checkout.Event{Type: checkout.EventOrderPlaced})
	assert.Contains(t, body, "listed in your account")
	assert.NotContains(t, body, "Paid with")
}

func TestFailureEmailEscapesMessage(t *testing.T) {
	s := &recordingSender{}
	newTestNotifier(s).OnEvent(context.Background(), checkout.Event{
		Type:     checkout.EventPaymentCaptureFailed,
		Provider: checkout.ProviderPayPalSmartButton,
		Message:  "<b>declined</b>",
	})

	require.Len(t, s.mails, 1)
	assert.Contains(t, s.mails[0].body, "PayPal reported: &lt;b&gt;declined&lt;/b&gt;")
}

func TestIgnoredEventsAndSendErrors(t *testing.T) {
	s := &recordingSender{}
	n := newTestNotifier(s)
	n.OnEvent(context.Background(), checkout.Event{Type: checkout.EventPaymentRedirected})
	n.OnEvent(context.Background(), checkout.Event{Type: checkout.EventPaymentCancelled})
	n.OnEvent(context.Background(), checkout.Event{
		Type:     checkout.EventPaymentPageLoadFailed,
		Provider: checkout.ProviderStripeConnect,
		Message:  "failed to load payment page: net::ERR_NAME_NOT_RESOLVED",
	})
	assert.Empty(t, s.mails)

	s.err = errors.New("smtp down")
	assert.NotPanics(t, func() {
		n.OnEvent(context.Background(), checkout.Event{Type: checkout.EventOrderPlaced})
	})
}

func TestBuildRFC822(t *testing.T) {
	msg := string(buildRFC822("shop@x", "a@x", "Hi", "<p>x</p>"))
	assert.Contains(t, msg, "Subject: Hi\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>x</p>")
}
