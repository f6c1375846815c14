package bdd

import (
	"fmt"
	"net/http"

	"github.com/cucumber/godog"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/shopapi/shopapitest"
)

func (w *CheckoutWorld) registerCheckoutSteps(sc *godog.ScenarioContext) {
	sc.Step(`^customer "([^"]+)" opens a checkout$`, w.customerOpensCheckout)
	sc.Step(`^the shop ships nothing to the address$`, w.shopShipsNothing)
	sc.Step(`^the shop rejects the order with "([^"]+)"$`, w.shopRejectsOrder)
	sc.Step(`^the shop hands payment off to Stripe$`, w.shopHandsOffToStripe)
	sc.Step(`^the shop hands payment off to PayPal order "([^"]+)"$`, w.shopHandsOffToPayPal)
	sc.Step(`^the customer submits a complete billing address used for shipping$`, w.submitCompleteAddress)
	sc.Step(`^the customer submits a billing address without a postcode$`, w.submitAddressWithoutPostcode)
	sc.Step(`^the customer picks shipping method "([^"]+)"$`, w.pickShipping)
	sc.Step(`^the customer picks payment method "([^"]+)"$`, w.pickPayment)
	sc.Step(`^the customer reaches review$`, w.reachReview)
	sc.Step(`^the customer places the order$`, w.placeOrder)
	sc.Step(`^the API returns status (\d+)$`, w.assertAPIStatus)
	sc.Step(`^the error kind is "([^"]+)"$`, w.assertErrorKind)
	sc.Step(`^the error message is "([^"]+)"$`, w.assertErrorMessage)
	sc.Step(`^the session status is "([^"]+)"$`, w.assertSessionStatus)
	sc.Step(`^the current step is "([^"]+)"$`, w.assertCurrentStep)
	sc.Step(`^the result is order "([^"]+)" shown on "([^"]+)"$`, w.assertResult)
	sc.Step(`^a notice mentions "([^"]+)"$`, w.assertNotice)
	sc.Step(`^a "([^"]+)" event was emitted$`, w.assertEvent)
}

func (w *CheckoutWorld) customerOpensCheckout(name string) error {
	w.principal = "user:" + name
	if err := w.call(http.MethodPost, "/api/checkout/sessions?store=acme-main", nil); err != nil {
		return err
	}
	if err := w.expectStatus(http.StatusCreated); err != nil {
		return err
	}
	id, _ := w.httpJSON["id"].(string)
	if id == "" {
		return fmt.Errorf("no session id in %v", w.httpJSON)
	}
	w.sessionID = id
	return nil
}

func (w *CheckoutWorld) shopShipsNothing() error {
	w.shop.SetRates([]checkout.CarrierRates{})
	return nil
}

func (w *CheckoutWorld) shopRejectsOrder(message string) error {
	w.shop.SetPlaceOrder(http.StatusBadRequest, map[string]any{"success": false, "message": message})
	return nil
}

func (w *CheckoutWorld) shopHandsOffToStripe() error {
	w.shop.SetPlaceOrder(http.StatusOK, shopapitest.StripeRedirect())
	return nil
}

func (w *CheckoutWorld) shopHandsOffToPayPal(orderID string) error {
	w.shop.SetPlaceOrder(http.StatusOK, shopapitest.PayPalRedirect(orderID))
	return nil
}

func billingAddress() map[string]any {
	return map[string]any{
		"first_name": "Alice",
		"last_name":  "Doe",
		"email":      "alice@example.com",
		"address1":   "1 Main St",
		"city":       "Springfield",
		"country":    "US",
		"state":      "IL",
		"postcode":   "62701",
		"phone":      "5550100",
	}
}

func (w *CheckoutWorld) submitCompleteAddress() error {
	return w.call(http.MethodPost, w.sessionPath("/address"), map[string]any{
		"billing":         billingAddress(),
		"same_as_billing": true,
	})
}

func (w *CheckoutWorld) submitAddressWithoutPostcode() error {
	addr := billingAddress()
	delete(addr, "postcode")
	return w.call(http.MethodPost, w.sessionPath("/address"), map[string]any{
		"billing":         addr,
		"same_as_billing": true,
	})
}

func (w *CheckoutWorld) pickShipping(key string) error {
	return w.call(http.MethodPost, w.sessionPath("/shipping"), map[string]any{"shipping_method": key})
}

func (w *CheckoutWorld) pickPayment(method string) error {
	return w.call(http.MethodPost, w.sessionPath("/payment"), map[string]any{"payment_method": method})
}

func (w *CheckoutWorld) reachReview() error {
	steps := []func() error{
		w.submitCompleteAddress,
		func() error { return w.pickShipping("carrier_0_flatrate_flatrate") },
		func() error { return w.pickPayment("cashondelivery") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
		if err := w.expectStatus(http.StatusOK); err != nil {
			return err
		}
	}
	return w.assertCurrentStep(string(checkout.StepReview))
}

func (w *CheckoutWorld) placeOrder() error {
	return w.call(http.MethodPost, w.sessionPath("/place-order"), nil)
}

func (w *CheckoutWorld) assertAPIStatus(code int) error {
	return w.expectStatus(code)
}

func (w *CheckoutWorld) assertErrorKind(kind string) error {
	if got, _ := w.httpJSON["kind"].(string); got != kind {
		return fmt.Errorf("expected error kind %q, got %q (%v)", kind, got, w.httpJSON)
	}
	return nil
}

func (w *CheckoutWorld) assertErrorMessage(message string) error {
	if got, _ := w.httpJSON["message"].(string); got != message {
		return fmt.Errorf("expected error message %q, got %q", message, got)
	}
	return nil
}

// refreshView fetches the session when the last reply was not a session view.
func (w *CheckoutWorld) refreshView() (map[string]any, error) {
	if view := w.sessionView(); view != nil && view["status"] != nil {
		return view, nil
	}
	if err := w.call(http.MethodGet, w.sessionPath(""), nil); err != nil {
		return nil, err
	}
	return w.sessionView(), nil
}

func (w *CheckoutWorld) assertSessionStatus(status string) error {
	view, err := w.refreshView()
	if err != nil {
		return err
	}
	if got, _ := view["status"].(string); got != status {
		return fmt.Errorf("expected session status %q, got %q", status, got)
	}
	return nil
}

func (w *CheckoutWorld) assertCurrentStep(step string) error {
	view, err := w.refreshView()
	if err != nil {
		return err
	}
	if got, _ := view["current_step"].(string); got != step {
		return fmt.Errorf("expected current step %q, got %q", step, got)
	}
	return nil
}

func (w *CheckoutWorld) assertResult(orderID, destination string) error {
	view, err := w.refreshView()
	if err != nil {
		return err
	}
	result, _ := view["result"].(map[string]any)
	if result == nil {
		return fmt.Errorf("no result in %v", view)
	}
	got := fmt.Sprint(result["order_id"])
	if got != orderID {
		return fmt.Errorf("expected order %s, got %s", orderID, got)
	}
	if d, _ := result["destination"].(string); d != destination {
		return fmt.Errorf("expected destination %q, got %q", destination, d)
	}
	return nil
}

func (w *CheckoutWorld) assertNotice(text string) error {
	if w.noticeContaining(text) {
		return nil
	}
	// notices queued after the last reply
	if err := w.call(http.MethodGet, w.sessionPath(""), nil); err != nil {
		return err
	}
	if !w.noticeContaining(text) {
		return fmt.Errorf("no notice mentions %q (seen %v)", text, w.notices)
	}
	return nil
}

func (w *CheckoutWorld) assertEvent(name string) error {
	if !w.hasEvent(checkout.EventType(name)) {
		return fmt.Errorf("no %s event emitted", name)
	}
	return nil
}
