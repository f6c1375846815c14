package checkout

import (
	"context"
	"errors"
	"strings"
)

// Provider identifies a hosted payment page flow.
type Provider string

const (
	ProviderStripeConnect     Provider = "stripe_connect"
	ProviderPayPalSmartButton Provider = "paypal_smart_button"
)

// ExternalPayment describes the hosted payment page the shell must open.
type ExternalPayment struct {
	Provider      Provider `json:"provider"`
	RedirectURL   string   `json:"redirect_url"`
	PayPalOrderID string   `json:"paypal_order_id,omitempty"`
}

// Placement is the outcome of PlaceOrder: exactly one of Result or External is set.
type Placement struct {
	Result   *Result          `json:"result,omitempty"`
	External *ExternalPayment `json:"external_payment,omitempty"`
}

type redirectRoute struct {
	provider Provider
	match    func(redirectURL string, body map[string]any) bool
}

// redirectRoutes classifies a redirect in order. A redirect matching none of them was
// already finalised server-side.
var redirectRoutes = []redirectRoute{
	{
		provider: ProviderPayPalSmartButton,
		match: func(u string, body map[string]any) bool {
			return strings.Contains(u, "paypal.com") && payPalOrderID(body) != ""
		},
	},
	{
		provider: ProviderStripeConnect,
		match: func(u string, _ map[string]any) bool {
			return strings.Contains(u, "checkout.stripe.com") || strings.Contains(u, "stripe.com")
		},
	},
}

func redirectURL(body map[string]any) string {
	if u := StringField(body, "redirect_url"); u != "" {
		return u
	}
	if data, ok := body["data"].(map[string]any); ok {
		return StringField(data, "redirect_url")
	}
	return ""
}

func payPalOrderID(body map[string]any) string {
	if id := StringField(body, "paypal_order_id"); id != "" {
		return id
	}
	if data, ok := body["data"].(map[string]any); ok {
		return StringField(data, "paypal_order_id")
	}
	return ""
}

// ClassifyPlacement routes a place-order response body without side effects.
func ClassifyPlacement(body map[string]any) Placement {
	u := redirectURL(body)
	if u == "" {
		if id, ok := ExtractOrderID(body); ok {
			return Placement{Result: &Result{OrderID: id, Destination: DestinationOrderConfirmation}}
		}
		return Placement{Result: &Result{Destination: DestinationOrderPlaced}}
	}

	for _, route := range redirectRoutes {
		if route.match(u, body) {
			ext := &ExternalPayment{Provider: route.provider, RedirectURL: u}
			if route.provider == ProviderPayPalSmartButton {
				ext.PayPalOrderID = payPalOrderID(body)
			}
			return Placement{External: ext}
		}
	}

	if id, ok := ExtractOrderID(body); ok {
		return Placement{Result: &Result{OrderID: id, Destination: DestinationOrderConfirmation}}
	}
	return Placement{Result: &Result{Destination: DestinationOrdersList}}
}

// PlaceOrder submits the order and either completes the session or hands off to a hosted
// payment page.
func (s *Session) PlaceOrder(ctx context.Context) (Placement, error) {
	s.mu.Lock()
	if err := s.beginLocked(StepReview); err != nil {
		s.mu.Unlock()
		return Placement{}, err
	}
	if err := s.checkSelectionsLocked(); err != nil {
		s.endLocked()
		s.logf("place order refused: %v", err)
		s.failLocked(err)
		s.mu.Unlock()
		return Placement{}, err
	}
	s.mu.Unlock()

	body, err := s.api.PlaceOrder(ctx)
	if err != nil {
		perr := &OrderPlacementError{Message: ErrorMessage(err), Err: err}
		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.endLocked()
		s.logf("place order failed: %v", err)
		s.failLocked(perr)
		return Placement{}, perr
	}

	placement := ClassifyPlacement(body)

	if placement.External != nil {
		ext := *placement.External
		s.mu.Lock()
		s.external = &ext
		s.status = StatusAwaitingExternalPayment
		s.logf("redirecting to %s payment page", ext.Provider)
		s.mu.Unlock()
		s.emit(ctx, Event{Type: EventPaymentRedirected, Provider: ext.Provider, TransactionID: ext.PayPalOrderID})
		return placement, nil
	}

	s.refreshCart(ctx)

	res := *placement.Result
	s.mu.Lock()
	s.result = &res
	s.status = StatusCompleted
	_ = s.steps.Complete(StepReview)
	s.noticeLocked("info", "order placed")
	s.logf("order placed, order=%q destination=%s", res.OrderID, res.Destination)
	s.mu.Unlock()

	s.emit(ctx, Event{Type: EventOrderPlaced, OrderID: res.OrderID, Destination: res.Destination})
	return placement, nil
}

// checkSelectionsLocked requires shipping and payment selections that are still on offer.
// Resubmitting an earlier step clears them without rewinding the step.
func (s *Session) checkSelectionsLocked() error {
	if s.selectedShipping == "" || !s.hasShippingKeyLocked(s.selectedShipping) {
		return validationErrorf("shipping_method", "select a shipping method before placing the order")
	}
	if s.selectedPayment == "" || !s.hasPaymentMethodLocked(s.selectedPayment) {
		return validationErrorf("payment_method", "select a payment method before placing the order")
	}
	return nil
}

// messageCarrier is implemented by transport errors that carry a server-provided reason.
type messageCarrier interface {
	ServerMessage() string
}

// ErrorMessage returns the most specific human-readable reason for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var mc messageCarrier
	if errors.As(err, &mc) {
		if m := mc.ServerMessage(); m != "" {
			return m
		}
	}
	return err.Error()
}
