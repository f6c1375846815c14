package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrNoShippingAvailable means the address was accepted but no carrier can deliver to it,
	// or the cart holds only virtual items.
	ErrNoShippingAvailable = errors.New("no shipping methods available for this address")
	// ErrNoPaymentAvailable means the shipping method was accepted but no payment method applies.
	ErrNoPaymentAvailable = errors.New("no payment methods available")
	// ErrPaymentCancelled is the user aborting the external payment page. It ends the
	// payment attempt normally and is not a failure.
	ErrPaymentCancelled = errors.New("payment cancelled")
	// ErrBusy rejects a submission while another one for the same session is in flight.
	ErrBusy = errors.New("checkout session is busy")
	// ErrStepLocked rejects a step whose predecessors are not completed yet.
	ErrStepLocked = errors.New("checkout step not reachable yet")
	// ErrSessionClosed rejects any action after the session completed.
	ErrSessionClosed = errors.New("checkout session already completed")
	// ErrNoExternalPayment is returned when a bridge action arrives without an open payment page.
	ErrNoExternalPayment = errors.New("no external payment in progress")
)

// ValidationError represents missing or invalid step input. It is resolved locally by
// refusing to advance.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsTerminalError indicates retrying the same input cannot succeed.
func (e *ValidationError) IsTerminalError() bool { return true }

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OrderPlacementError wraps a failed place-order call. Message carries the server-provided
// reason when one was returned.
type OrderPlacementError struct {
	Message string
	Err     error
}

func (e *OrderPlacementError) Error() string {
	if e.Message != "" {
		return "order placement failed: " + e.Message
	}
	return fmt.Sprintf("order placement failed: %v", e.Err)
}

func (e *OrderPlacementError) Unwrap() error { return e.Err }

// IsTerminalError is false: the user may retry placement.
func (e *OrderPlacementError) IsTerminalError() bool { return false }

// PaymentCaptureError reports a failed or malformed capture/confirm call.
type PaymentCaptureError struct {
	Provider      string
	TransactionID string
	Message       string
	Err           error
}

func (e *PaymentCaptureError) Error() string {
	return fmt.Sprintf("%s payment capture failed: %s", e.Provider, e.Message)
}

func (e *PaymentCaptureError) Unwrap() error { return e.Err }

// IsTerminalError is true for this attempt: a new attempt requires placing the order again.
func (e *PaymentCaptureError) IsTerminalError() bool { return true }

// WebViewLoadError is the embedded browser failing to load the provider page.
type WebViewLoadError struct {
	Provider    string
	Description string
}

func (e *WebViewLoadError) Error() string {
	if e.Description == "" {
		return "failed to load payment page"
	}
	return "failed to load payment page: " + e.Description
}

func (e *WebViewLoadError) IsTerminalError() bool { return true }

// Kind names an error for transport layers. Unknown errors map to "internal".
func Kind(err error) string {
	var (
		ve *ValidationError
		pe *OrderPlacementError
		ce *PaymentCaptureError
		we *WebViewLoadError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrNoShippingAvailable):
		return "no_shipping_available"
	case errors.Is(err, ErrNoPaymentAvailable):
		return "no_payment_available"
	case errors.As(err, &pe):
		return "order_placement_failed"
	case errors.As(err, &ce):
		return "payment_capture_failed"
	case errors.Is(err, ErrPaymentCancelled):
		return "payment_cancelled"
	case errors.As(err, &we):
		return "webview_load_error"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrStepLocked):
		return "step_locked"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrNoExternalPayment):
		return "no_external_payment"
	default:
		return "internal"
	}
}
