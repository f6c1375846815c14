package events

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

type fakeReader struct {
	msgs []kafka.Message
	end  error
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, f.end
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) Close() error { return nil }

func encoded(t *testing.T, evt checkout.Event) kafka.Message {
	t.Helper()
	w := &fakeWriter{}
	NewPublisher(&Producer{w: w}, "checkout.v1", nil).OnEvent(context.Background(), evt)
	require.Len(t, w.msgs, 1)
	return w.msgs[0]
}

func TestConsumerDeliversDecodedEvents(t *testing.T) {
	r := &fakeReader{
		msgs: []kafka.Message{
			encoded(t, checkout.Event{Type: checkout.EventPaymentCaptured, SessionID: "s1", OrderID: "42"}),
			{Value: []byte("not json")},
			encoded(t, checkout.Event{Type: checkout.EventPaymentCancelled, SessionID: "s2"}),
		},
		end: io.EOF,
	}
	c := &Consumer{r: r, topic: "checkout.v1", group: "g", logger: log.New(io.Discard, "", 0)}

	var got []checkout.Event
	err := c.Run(context.Background(), checkout.ListenerFunc(func(_ context.Context, evt checkout.Event) {
		got = append(got, evt)
	}))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "42", got[0].OrderID)
	assert.Equal(t, checkout.EventPaymentCancelled, got[1].Type)
}

func TestConsumerReturnsReadErrors(t *testing.T) {
	c := &Consumer{r: &fakeReader{end: errors.New("broker gone")}, topic: "checkout.v1", logger: log.New(io.Discard, "", 0)}
	err := c.Run(context.Background(), checkout.Listeners(nil))
	assert.ErrorContains(t, err, "broker gone")
}
