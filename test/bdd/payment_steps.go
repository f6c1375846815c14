package bdd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/shopapi"
)

func (w *CheckoutWorld) registerPaymentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the payment provider declines the capture with "([^"]+)"$`, w.providerDeclines)
	sc.Step(`^Stripe session "([^"]+)" was already captured elsewhere$`, w.stripeSessionClaimed)
	sc.Step(`^the payment page finishes loading$`, w.paymentPageLoaded)
	sc.Step(`^the payment page navigates to "([^"]+)"$`, w.paymentPageNavigates)
	sc.Step(`^the payment page asks to load "([^"]+)"$`, w.paymentPageAsksToLoad)
	sc.Step(`^the customer closes the payment page( and confirms)?$`, w.closePaymentPage)
	sc.Step(`^the payment action is "([^"]+)"$`, w.assertPaymentAction)
	sc.Step(`^the page load is (allowed|blocked)$`, w.assertPageLoad)
	sc.Step(`^closing reports "([^"]+)"$`, w.assertCloseResult)
	sc.Step(`^the payment state is "([^"]+)"$`, w.assertPaymentState)
	sc.Step(`^the (Stripe|PayPal) capture endpoint was called (\d+) times?$`, w.assertCaptureCalls)
	sc.Step(`^the session eventually becomes "([^"]+)"$`, w.eventuallyStatus)
}

func (w *CheckoutWorld) providerDeclines(message string) error {
	w.shop.SetCapture(http.StatusOK, map[string]any{"success": false, "message": message})
	return nil
}

func (w *CheckoutWorld) stripeSessionClaimed(id string) error {
	ok, err := w.claimer.Claim(context.Background(), checkout.ProviderStripeConnect, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s was already claimed", id)
	}
	return nil
}

func (w *CheckoutWorld) paymentPageLoaded() error {
	if err := w.call(http.MethodPost, w.sessionPath("/payment/loaded"), nil); err != nil {
		return err
	}
	return w.expectStatus(http.StatusOK)
}

func (w *CheckoutWorld) paymentPageNavigates(url string) error {
	return w.call(http.MethodPost, w.sessionPath("/payment/navigation"), map[string]any{"url": url})
}

func (w *CheckoutWorld) paymentPageAsksToLoad(url string) error {
	return w.call(http.MethodPost, w.sessionPath("/payment/should-load"), map[string]any{"url": url})
}

func (w *CheckoutWorld) closePaymentPage(confirm string) error {
	return w.call(http.MethodPost, w.sessionPath("/payment/close"), map[string]any{"confirmed": confirm != ""})
}

func (w *CheckoutWorld) assertPaymentAction(action string) error {
	if got, _ := w.httpJSON["action"].(string); got != action {
		return fmt.Errorf("expected payment action %q, got %q (%v)", action, got, w.httpJSON)
	}
	return nil
}

func (w *CheckoutWorld) assertPageLoad(want string) error {
	load, ok := w.httpJSON["load"].(bool)
	if !ok {
		return fmt.Errorf("no load decision in %v", w.httpJSON)
	}
	if load != (want == "allowed") {
		return fmt.Errorf("expected page load %s, got load=%v", want, load)
	}
	return nil
}

func (w *CheckoutWorld) assertCloseResult(result string) error {
	if got, _ := w.httpJSON["close"].(string); got != result {
		return fmt.Errorf("expected close result %q, got %q", result, got)
	}
	return nil
}

func (w *CheckoutWorld) assertPaymentState(state string) error {
	if got, _ := w.httpJSON["state"].(string); got != state {
		return fmt.Errorf("expected payment state %q, got %q", state, got)
	}
	return nil
}

func (w *CheckoutWorld) assertCaptureCalls(provider string, n int) error {
	path := shopapi.DefaultPaths().StripeCapture
	if provider == "PayPal" {
		path = shopapi.DefaultPaths().PayPalCapture
	}
	if got := w.shop.Calls(path); got != n {
		return fmt.Errorf("expected %d %s capture calls, got %d", n, provider, got)
	}
	return nil
}

func (w *CheckoutWorld) eventuallyStatus(status string) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := w.call(http.MethodGet, w.sessionPath(""), nil); err != nil {
			return err
		}
		if got, _ := w.httpJSON["status"].(string); got == status {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("session never became %q (last %v)", status, w.httpJSON["status"])
		}
		time.Sleep(10 * time.Millisecond)
	}
}
