package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// Paths are the Shop API endpoints relative to the base URL.
type Paths struct {
	SaveAddress   string
	SaveShipping  string
	SavePayment   string
	SaveOrder     string
	Cart          string
	StripeCapture string
	PayPalCapture string
}

// DefaultPaths matches the storefront backend routes.
func DefaultPaths() Paths {
	return Paths{
		SaveAddress:   "/api/checkout/save-address",
		SaveShipping:  "/api/checkout/save-shipping",
		SavePayment:   "/api/checkout/save-payment",
		SaveOrder:     "/api/checkout/save-order",
		Cart:          "/api/checkout/cart",
		StripeCapture: "/api/stripe-connect/capture",
		PayPalCapture: "/api/paypal/smart-button/capture",
	}
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Paths   Paths
	Timeout time.Duration
	// BreakerFailures is the number of consecutive 5xx/transport failures that opens the
	// circuit. Zero means 5.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// APIError is a non-2xx reply from the Shop API.
type APIError struct {
	Status      int
	Message     string
	Description string
}

func (e *APIError) Error() string {
	msg := e.ServerMessage()
	if msg == "" {
		return fmt.Sprintf("shop api: status %d", e.Status)
	}
	return fmt.Sprintf("shop api: status %d: %s", e.Status, msg)
}

// ServerMessage prefers the structured error description over the plain message.
func (e *APIError) ServerMessage() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Message
}

type response struct {
	status int
	body   []byte
}

// Client is a JSON-over-HTTP Shop API client. Copies made with WithToken share the
// transport and circuit breaker.
type Client struct {
	baseURL string
	paths   Paths
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	token   string
}

// New builds a client without a customer token.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("shop api base URL is required")
	}
	paths := cfg.Paths
	if paths == (Paths{}) {
		paths = DefaultPaths()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "shop-api",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// business rejections (4xx) must not trip the breaker
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		paths:   paths,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: cb,
	}, nil
}

// WithToken returns a copy that authenticates as the customer owning token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(b)
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()
		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		out := &response{status: httpResp.StatusCode, body: body}
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return out, parseAPIError(httpResp.StatusCode, body)
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp.body, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var m map[string]any
	if json.Unmarshal(body, &m) == nil {
		apiErr.Message, _ = m["message"].(string)
		switch e := m["error"].(type) {
		case map[string]any:
			apiErr.Description, _ = e["description"].(string)
			if apiErr.Message == "" {
				apiErr.Message, _ = e["message"].(string)
			}
		case string:
			if apiErr.Message == "" {
				apiErr.Message = e
			}
		}
	}
	if apiErr.Message == "" && apiErr.Description == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// unwrap returns the object holding key: the body itself, or its data member.
func unwrap(body []byte, key string) []byte {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return body
	}
	if _, ok := top[key]; ok {
		return body
	}
	if data, ok := top["data"]; ok && len(data) > 0 && data[0] == '{' {
		return data
	}
	return body
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// SaveAddresses posts billing and shipping addresses and returns the offered rates.
func (c *Client) SaveAddresses(ctx context.Context, sub checkout.AddressSubmission) (*checkout.AddressResponse, error) {
	body, err := c.do(ctx, http.MethodPost, c.paths.SaveAddress, sub)
	if err != nil {
		return nil, err
	}
	var out checkout.AddressResponse
	if len(bytes.TrimSpace(body)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(unwrap(body, "rates"), &out); err != nil {
		return nil, fmt.Errorf("decode save-address response: %w", err)
	}
	return &out, nil
}

// SaveShipping selects a shipping method and returns the applicable payment methods.
func (c *Client) SaveShipping(ctx context.Context, methodCode string) (*checkout.ShippingResponse, error) {
	body, err := c.do(ctx, http.MethodPost, c.paths.SaveShipping, map[string]string{"shipping_method": methodCode})
	if err != nil {
		return nil, err
	}
	var out checkout.ShippingResponse
	if len(bytes.TrimSpace(body)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(unwrap(body, "methods"), &out); err != nil {
		return nil, fmt.Errorf("decode save-shipping response: %w", err)
	}
	return &out, nil
}

// SavePayment selects a payment method.
func (c *Client) SavePayment(ctx context.Context, methodCode string) error {
	payload := map[string]any{"payment": map[string]string{"method": methodCode}}
	_, err := c.do(ctx, http.MethodPost, c.paths.SavePayment, payload)
	return err
}

// PlaceOrder submits the order. The reply shape depends on the payment provider, so it is
// returned undecoded beyond JSON.
func (c *Client) PlaceOrder(ctx context.Context) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodPost, c.paths.SaveOrder, map[string]any{})
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

// FetchCart returns the current server-side cart.
func (c *Client) FetchCart(ctx context.Context) (*checkout.Cart, error) {
	body, err := c.do(ctx, http.MethodGet, c.paths.Cart, nil)
	if err != nil {
		return nil, err
	}
	raw := unwrap(body, "grand_total")
	var cart checkout.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	cart.Raw = json.RawMessage(raw)
	return &cart, nil
}

// Capture confirms a hosted payment with the provider specific endpoint.
func (c *Client) Capture(ctx context.Context, provider checkout.Provider, id string) (map[string]any, error) {
	var (
		path    string
		payload map[string]string
	)
	switch provider {
	case checkout.ProviderStripeConnect:
		path, payload = c.paths.StripeCapture, map[string]string{"session_id": id}
	case checkout.ProviderPayPalSmartButton:
		path, payload = c.paths.PayPalCapture, map[string]string{"order_id": id}
	default:
		return nil, fmt.Errorf("capture: unsupported provider %q", provider)
	}
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}
