package email

import (
	"bytes"
	"context"
	"html/template"
	"log"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

var providerNames = map[checkout.Provider]string{
	checkout.ProviderStripeConnect:     "Stripe",
	checkout.ProviderPayPalSmartButton: "PayPal",
}

var confirmationTpl = template.Must(template.New("confirmation").Parse(`
<h2>Thanks for your order!</h2>
{{if .OrderID}}<p>Order ID: <b>{{.OrderID}}</b></p>{{else}}<p>Your order is listed in your account.</p>{{end}}
{{if .Provider}}<p>Paid with {{.Provider}}{{if .TransactionID}} (reference {{.TransactionID}}){{end}}.</p>{{end}}
`))

var failureTpl = template.Must(template.New("failure").Parse(`
<h2>Your payment did not go through</h2>
<p>{{if .Provider}}{{.Provider}} reported: {{end}}{{.Message}}</p>
<p>Your cart is unchanged. You can place the order again from the checkout.</p>
`))

type view struct {
	OrderID       string
	Provider      string
	TransactionID string
	Message       string
}

func viewOf(evt checkout.Event) view {
	v := view{OrderID: evt.OrderID, TransactionID: evt.TransactionID, Message: evt.Message}
	if name, ok := providerNames[evt.Provider]; ok {
		v.Provider = name
	}
	if v.Message == "" {
		v.Message = "the payment could not be confirmed"
	}
	return v
}

// RenderConfirmation renders the order confirmation email.
func RenderConfirmation(evt checkout.Event) string {
	var buf bytes.Buffer
	_ = confirmationTpl.Execute(&buf, viewOf(evt))
	return buf.String()
}

// RenderPaymentFailed renders the failed payment email.
func RenderPaymentFailed(evt checkout.Event) string {
	var buf bytes.Buffer
	_ = failureTpl.Execute(&buf, viewOf(evt))
	return buf.String()
}

// Notifier mails customers about checkout outcomes.
type Notifier struct {
	sender Sender
	to     func(owner string) string
	logger *log.Logger
}

// NewNotifier resolves recipients with to. A nil logger uses the default.
func NewNotifier(sender Sender, to func(owner string) string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{sender: sender, to: to, logger: logger}
}

func (n *Notifier) OnEvent(_ context.Context, evt checkout.Event) {
	var subject, body string
	switch evt.Type {
	case checkout.EventOrderPlaced, checkout.EventPaymentCaptured:
		subject, body = "Your order confirmation", RenderConfirmation(evt)
	case checkout.EventPaymentCaptureFailed:
		subject, body = "Your payment did not go through", RenderPaymentFailed(evt)
	default:
		return
	}
	to := n.to(evt.Owner)
	if err := n.sender.Send(to, subject, body); err != nil {
		n.logger.Printf("[email-worker] send failed: %v", err)
		return
	}
	n.logger.Printf("[email-worker] sent %s email to=%s session=%s order=%s", evt.Type, to, evt.SessionID, evt.OrderID)
}
