// Package shopapitest runs an in-process stand-in for the storefront Shop API.
package shopapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/shopapi"
)

type reply struct {
	status int
	body   any
}

// Server answers the default Shop API paths with canned replies. Replies can be swapped
// between requests; every request is counted per path.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	rates   []checkout.CarrierRates
	methods []checkout.PaymentMethod
	order   reply
	capture reply
	cart    map[string]any
	calls   map[string]int
	bodies  map[string][]map[string]any
	tokens  []string
}

// FlatRate is the default single carrier offer.
func FlatRate() []checkout.CarrierRates {
	return []checkout.CarrierRates{{
		CarrierTitle: "Flat Rate",
		Rates: []checkout.ShippingRate{{
			Carrier:      "flatrate",
			CarrierTitle: "Flat Rate",
			Method:       "flatrate_flatrate",
			MethodTitle:  "Flat Rate",
			Price:        decimal.RequireFromString("10.00"),
		}},
	}}
}

// New starts a server that accepts every step and places order 1001 directly.
func New() *Server {
	s := &Server{
		rates:   FlatRate(),
		methods: []checkout.PaymentMethod{{Method: "cashondelivery", MethodTitle: "Cash On Delivery"}},
		order:   reply{status: http.StatusOK, body: map[string]any{"success": true, "data": map[string]any{"order": map[string]any{"id": 1001}}}},
		capture: reply{status: http.StatusOK, body: map[string]any{"success": true, "data": map[string]any{"order": map[string]any{"id": 2002}}}},
		cart: map[string]any{"data": map[string]any{
			"items_count": 2, "sub_total": "40.00", "tax_total": "4.00",
			"discount_amount": "0.00", "grand_total": "54.00", "have_stockable_items": true,
		}},
		calls:  make(map[string]int),
		bodies: make(map[string][]map[string]any),
	}
	paths := shopapi.DefaultPaths()
	mux := http.NewServeMux()
	mux.HandleFunc(paths.SaveAddress, s.handle(func() reply {
		return reply{http.StatusOK, map[string]any{"data": map[string]any{"rates": s.rates}}}
	}))
	mux.HandleFunc(paths.SaveShipping, s.handle(func() reply {
		return reply{http.StatusOK, map[string]any{"data": map[string]any{"methods": s.methods}}}
	}))
	mux.HandleFunc(paths.SavePayment, s.handle(func() reply {
		return reply{http.StatusOK, map[string]any{"success": true}}
	}))
	mux.HandleFunc(paths.SaveOrder, s.handle(func() reply { return s.order }))
	mux.HandleFunc(paths.Cart, s.handle(func() reply { return reply{http.StatusOK, s.cart} }))
	mux.HandleFunc(paths.StripeCapture, s.handle(func() reply { return s.capture }))
	mux.HandleFunc(paths.PayPalCapture, s.handle(func() reply { return s.capture }))
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) handle(next func() reply) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.bodies[r.URL.Path] = append(s.bodies[r.URL.Path], body)
		s.tokens = append(s.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		rep := next()
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rep.status)
		_ = json.NewEncoder(w).Encode(rep.body)
	}
}

// SetRates replaces the save-address offer. An empty slice means nothing ships.
func (s *Server) SetRates(rates []checkout.CarrierRates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = rates
}

// SetMethods replaces the save-shipping offer.
func (s *Server) SetMethods(methods []checkout.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = methods
}

// SetPlaceOrder replaces the save-order reply.
func (s *Server) SetPlaceOrder(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = reply{status, body}
}

// SetCapture replaces the reply of both capture endpoints.
func (s *Server) SetCapture(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture = reply{status, body}
}

// Calls returns how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// LastBody returns the last decoded JSON body posted to path.
func (s *Server) LastBody(path string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bodies[path]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

// Tokens returns the bearer tokens seen, in request order.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// StripeRedirect is a save-order reply handing off to Stripe Checkout.
func StripeRedirect() map[string]any {
	return map[string]any{"success": true, "redirect_url": "https://checkout.stripe.com/c/pay/cs_test_a1"}
}

// PayPalRedirect is a save-order reply handing off to the PayPal Smart Button page.
func PayPalRedirect(orderID string) map[string]any {
	return map[string]any{
		"success":         true,
		"redirect_url":    "https://www.paypal.com/checkoutnow?token=" + orderID,
		"paypal_order_id": orderID,
	}
}
