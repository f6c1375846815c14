package bdd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cucumber/godog"
	"github.com/redis/go-redis/v9"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/api"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/guard"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/shopapi"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/shopapi/shopapitest"
)

// CheckoutWorld drives the checkout API the way the mobile shell does, against an
// in-process Shop API and Redis.
type CheckoutWorld struct {
	t *testing.T

	shop    *shopapitest.Server
	redis   *miniredis.Miniredis
	rdb     *redis.Client
	claimer *guard.RedisClaimer
	srv     *httptest.Server

	principal string
	sessionID string

	// last response
	httpStatus int
	httpJSON   map[string]any

	mu      sync.Mutex
	events  []checkout.Event
	notices []string
}

func NewCheckoutWorld(t *testing.T) *CheckoutWorld {
	return &CheckoutWorld{t: t}
}

func (w *CheckoutWorld) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w.resetScenarioState()
		return ctx, w.startServers()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		w.stopServers()
		return ctx, nil
	})

	w.registerCheckoutSteps(sc)
	w.registerPaymentSteps(sc)
}

func (w *CheckoutWorld) resetScenarioState() {
	w.principal = "user:anonymous"
	w.sessionID = ""
	w.httpStatus = 0
	w.httpJSON = nil
	w.mu.Lock()
	w.events = nil
	w.notices = nil
	w.mu.Unlock()
}

func (w *CheckoutWorld) debugf(format string, args ...any) {
	if os.Getenv("BDD_DEBUG") != "" {
		w.t.Logf(format, args...)
	}
}

// startServers boots the Shop API stub, Redis and the checkout API.
func (w *CheckoutWorld) startServers() error {
	w.shop = shopapitest.New()

	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("start miniredis: %w", err)
	}
	w.redis = mr
	w.rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w.claimer = guard.NewRedisClaimer(w.rdb, guard.DefaultTTL)

	client, err := shopapi.New(shopapi.Config{BaseURL: w.shop.URL})
	if err != nil {
		return err
	}
	logger := log.New(io.Discard, "", 0)
	if os.Getenv("BDD_DEBUG") != "" {
		logger = log.Default()
	}
	w.srv = httptest.NewServer(api.NewRouter(api.Options{
		Registry: api.NewRegistry(0),
		Backends: func(token string) api.Backend { return client.WithToken(token) },
		Claimer:  w.claimer,
		Listener: checkout.ListenerFunc(w.record),
		Logger:   logger,
	}))
	return nil
}

func (w *CheckoutWorld) stopServers() {
	if w.srv != nil {
		w.srv.Close()
		w.srv = nil
	}
	if w.rdb != nil {
		_ = w.rdb.Close()
		w.rdb = nil
	}
	if w.redis != nil {
		w.redis.Close()
		w.redis = nil
	}
	if w.shop != nil {
		w.shop.Close()
		w.shop = nil
	}
}

func (w *CheckoutWorld) record(_ context.Context, evt checkout.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, evt)
}

func (w *CheckoutWorld) hasEvent(t checkout.EventType) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, evt := range w.events {
		if evt.Type == t {
			return true
		}
	}
	return false
}

// call performs a request as the current principal and keeps the decoded reply.
func (w *CheckoutWorld) call(method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, w.srv.URL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("X-Principal", w.principal)
	req.Header.Set("Authorization", "Bearer bdd-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w.httpStatus = resp.StatusCode
	w.httpJSON = nil
	_ = json.NewDecoder(resp.Body).Decode(&w.httpJSON)
	w.debugf("%s %s -> %d %v", method, path, w.httpStatus, w.httpJSON)
	w.absorbNotices(w.httpJSON)
	return nil
}

func (w *CheckoutWorld) sessionPath(suffix string) string {
	return "/api/checkout/sessions/" + w.sessionID + suffix
}

// sessionView returns the session part of the last reply.
func (w *CheckoutWorld) sessionView() map[string]any {
	if s, ok := w.httpJSON["session"].(map[string]any); ok {
		return s
	}
	return w.httpJSON
}

func (w *CheckoutWorld) absorbNotices(body map[string]any) {
	view := body
	if s, ok := body["session"].(map[string]any); ok {
		view = s
	}
	list, _ := view["notices"].([]any)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range list {
		if m, ok := n.(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				w.notices = append(w.notices, msg)
			}
		}
	}
}

func (w *CheckoutWorld) noticeContaining(text string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range w.notices {
		if strings.Contains(n, text) {
			return true
		}
	}
	return false
}

func (w *CheckoutWorld) expectStatus(code int) error {
	if w.httpStatus != code {
		return fmt.Errorf("expected HTTP %d, got %d: %v", code, w.httpStatus, w.httpJSON)
	}
	return nil
}
