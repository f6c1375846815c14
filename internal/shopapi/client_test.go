package shopapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", BreakerFailures: 2})
	require.NoError(t, err)
	return c.WithToken("tok-123")
}

func readJSON(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSaveAddressesSendsSubmissionAndBearer(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/checkout/save-address", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotBody = readJSON(t, r)
		_, _ = w.Write([]byte(`{"data":{"rates":[{"carrier_title":"Flat Rate","rates":[{"carrier":"flatrate","method":"flatrate_flatrate","price":"10.0000"}]}]}}`))
	}))

	use := true
	resp, err := c.SaveAddresses(context.Background(), checkout.AddressSubmission{
		Billing:  checkout.AddressPayload{FirstName: "Ana", Address: []string{"Calle 1"}, UseForShipping: &use},
		Shipping: checkout.AddressPayload{FirstName: "Ana", Address: []string{"Calle 1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	billing := gotBody["billing"].(map[string]any)
	assert.Equal(t, true, billing["use_for_shipping"])
	assert.Equal(t, []any{"Calle 1"}, billing["address"])
	_, hasID := billing["id"]
	assert.False(t, hasID)

	require.Len(t, resp.Rates, 1)
	assert.Equal(t, "flatrate_flatrate", resp.Rates[0].Rates[0].Method)
	assert.True(t, decimal.RequireFromString("10").Equal(resp.Rates[0].Rates[0].Price))
}

func TestSaveAddressesEmptyRates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	resp, err := c.SaveAddresses(context.Background(), checkout.AddressSubmission{})
	require.NoError(t, err)
	assert.Empty(t, resp.Rates)
}

func TestSaveShippingAndPaymentPayloads(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readJSON(t, r)
		switch r.URL.Path {
		case "/api/checkout/save-shipping":
			assert.Equal(t, "flat_flat", body["shipping_method"])
			_, _ = w.Write([]byte(`{"methods":[{"method":"cashondelivery","method_title":"COD"}]}`))
		case "/api/checkout/save-payment":
			assert.Equal(t, map[string]any{"method": "cashondelivery"}, body["payment"])
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	ctx := context.Background()

	methods, err := c.SaveShipping(ctx, "flat_flat")
	require.NoError(t, err)
	require.Len(t, methods.Methods, 1)
	assert.Equal(t, "COD", methods.Methods[0].MethodTitle)

	require.NoError(t, c.SavePayment(ctx, "cashondelivery"))
}

func TestPlaceOrderKeepsNumericPrecision(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/checkout/save-order", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"order":{"id":9007199254740993}}}`))
	}))
	body, err := c.PlaceOrder(context.Background())
	require.NoError(t, err)
	id, ok := checkout.ExtractOrderID(body)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", id)
}

func TestAPIErrorCarriesDescription(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The given data was invalid.","error":{"description":"Minimum order amount is 50"}}`))
	}))
	_, err := c.PlaceOrder(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "Minimum order amount is 50", checkout.ErrorMessage(err))
}

func TestFetchCartUnwrapsData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"data":{"id":3,"items_count":2,"grand_total":"125.5000","sub_total":100,"tax_total":"16","discount_amount":"0","have_stockable_items":true}}`))
	}))
	cart, err := c.FetchCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cart.ItemsCount)
	assert.True(t, decimal.RequireFromString("125.5").Equal(cart.GrandTotal))
	assert.True(t, decimal.NewFromInt(100).Equal(cart.SubTotal))
	assert.True(t, cart.HaveStockableItems)
	assert.Contains(t, string(cart.Raw), `"id":3`)
}

func TestCaptureRoutesByProvider(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readJSON(t, r)
		switch r.URL.Path {
		case "/api/stripe-connect/capture":
			assert.Equal(t, "cs_test_1", body["session_id"])
		case "/api/paypal/smart-button/capture":
			assert.Equal(t, "5O1", body["order_id"])
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"order":{"id":"77"}}}`))
	}))
	ctx := context.Background()

	for provider, id := range map[checkout.Provider]string{
		checkout.ProviderStripeConnect:     "cs_test_1",
		checkout.ProviderPayPalSmartButton: "5O1",
	} {
		body, err := c.Capture(ctx, provider, id)
		require.NoError(t, err)
		orderID, ok := checkout.EvaluateCapture(body)
		assert.True(t, ok)
		assert.Equal(t, "77", orderID)
	}

	_, err := c.Capture(ctx, "oxxo", "x")
	assert.Error(t, err)
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnprocessableEntity)
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, c.SavePayment(ctx, "cod"))
	}
	assert.EqualValues(t, 3, hits.Load(), "4xx never opens the circuit")

	status.Store(http.StatusBadGateway)
	for i := 0; i < 2; i++ {
		assert.Error(t, c.SavePayment(ctx, "cod"))
	}
	err := c.SavePayment(ctx, "cod")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.EqualValues(t, 5, hits.Load())
}
