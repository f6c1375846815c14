package checkout

import (
	"context"
	"time"
)

// EventType names a checkout lifecycle event.
type EventType string

const (
	EventOrderPlaced          EventType = "OrderPlaced"
	EventPaymentRedirected    EventType = "PaymentRedirected"
	EventPaymentCaptured      EventType = "PaymentCaptured"
	EventPaymentCaptureFailed EventType = "PaymentCaptureFailed"
	EventPaymentCancelled     EventType = "PaymentCancelled"

	// EventPaymentPageLoadFailed means the hosted payment page never loaded; nothing was
	// captured.
	EventPaymentPageLoadFailed EventType = "PaymentPageLoadFailed"
)

// Event is emitted once per lifecycle transition, after the session lock is released.
type Event struct {
	Type          EventType   `json:"type"`
	SessionID     string      `json:"sessionId"`
	Owner         string      `json:"owner,omitempty"`
	OrderID       string      `json:"orderId,omitempty"`
	Destination   Destination `json:"destination,omitempty"`
	Provider      Provider    `json:"provider,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	Message       string      `json:"message,omitempty"`
	OccurredAt    time.Time   `json:"occurredAt"`
}

// Listener observes checkout events. Implementations must not block for long and must
// not call back into the emitting session.
type Listener interface {
	OnEvent(ctx context.Context, evt Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, evt Event)

func (f ListenerFunc) OnEvent(ctx context.Context, evt Event) { f(ctx, evt) }

// Listeners fans an event out to every listener in order.
type Listeners []Listener

func (ls Listeners) OnEvent(ctx context.Context, evt Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(ctx, evt)
		}
	}
}
