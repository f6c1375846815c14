package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/authz"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/bridge"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/storage/postgres"
)

// Journal lists recorded payment outcomes of a session.
type Journal interface {
	CapturesForSession(ctx context.Context, sessionID string) ([]postgres.CaptureRecord, error)
}

// Options wires the HTTP surface. Claimer and Journal are optional.
type Options struct {
	Registry       *Registry
	Backends       BackendFactory
	Authz          authz.Client
	Claimer        bridge.Claimer
	Journal        Journal
	Listener       checkout.Listener
	Checkout       checkout.Config
	CaptureTimeout time.Duration
	Logger         *log.Logger
}

type handler struct {
	opts Options
}

// NewRouter builds the checkout API used by the mobile shell.
func NewRouter(opts Options) http.Handler {
	if opts.Registry == nil {
		opts.Registry = NewRegistry(0)
	}
	if opts.Authz == nil {
		opts.Authz = &authz.NoopClient{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	h := &handler{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", traced("healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.opts.Registry.Len()})
	}))

	guard := authz.Require(opts.Authz, func(r *http.Request) (string, string) {
		return authz.StorefrontObject(storeFromRequest(r)), authz.RelationCanCheckout
	})

	r.Route("/api/checkout/sessions", func(r chi.Router) {
		r.With(guard).Method(http.MethodPost, "/", traced("checkout-create", h.createSession))
		r.Route("/{id}", func(r chi.Router) {
			r.Method(http.MethodGet, "/", traced("checkout-view", h.withEntry(h.view)))
			r.Method(http.MethodDelete, "/", traced("checkout-leave", h.withEntry(h.leave)))
			r.Method(http.MethodPost, "/address", traced("checkout-address", h.withEntry(h.submitAddress)))
			r.Method(http.MethodPost, "/shipping", traced("checkout-shipping", h.withEntry(h.submitShipping)))
			r.Method(http.MethodPost, "/payment", traced("checkout-payment", h.withEntry(h.submitPayment)))
			r.Method(http.MethodPost, "/place-order", traced("checkout-place-order", h.withEntry(h.placeOrder)))
			r.Method(http.MethodGet, "/captures", traced("checkout-captures", h.withEntry(h.captures)))

			r.Method(http.MethodPost, "/payment/loaded", traced("payment-loaded", h.withBridge(h.paymentLoaded)))
			r.Method(http.MethodPost, "/payment/navigation", traced("payment-navigation", h.withBridge(h.paymentNavigation)))
			r.Method(http.MethodPost, "/payment/should-load", traced("payment-should-load", h.withBridge(h.paymentShouldLoad)))
			r.Method(http.MethodPost, "/payment/load-error", traced("payment-load-error", h.withBridge(h.paymentLoadError)))
			r.Method(http.MethodPost, "/payment/close", traced("payment-close", h.withBridge(h.paymentClose)))
		})
	})
	return r
}

func traced(operation string, fn http.HandlerFunc) http.Handler {
	return otelhttp.NewHandler(fn, operation)
}

func storeFromRequest(r *http.Request) string {
	if v := r.URL.Query().Get("store"); v != "" {
		return v
	}
	return r.Header.Get("X-Storefront")
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func (h *handler) withEntry(fn func(http.ResponseWriter, *http.Request, *entry)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := h.opts.Registry.get(chi.URLParam(r, "id"), authz.PrincipalFromRequest(r))
		if err != nil {
			respondErr(w, err)
			return
		}
		fn(w, r, e)
	}
}

func (h *handler) withBridge(fn func(http.ResponseWriter, *http.Request, *entry, *bridge.Bridge)) http.HandlerFunc {
	return h.withEntry(func(w http.ResponseWriter, r *http.Request, e *entry) {
		b := e.paymentBridge()
		if b == nil {
			respondErr(w, checkout.ErrNoExternalPayment)
			return
		}
		fn(w, r, e, b)
	})
}

// sessionResponse is the session view plus the notices queued since the last response.
func sessionResponse(s *checkout.Session) checkout.View {
	notices := s.DrainNotices()
	v := s.Snapshot()
	v.Notices = notices
	return v
}

// POST /api/checkout/sessions?store={store}
func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	if h.opts.Backends == nil {
		respondError(w, http.StatusServiceUnavailable, "internal", "shop api unavailable")
		return
	}
	owner := authz.PrincipalFromRequest(r)
	store := storeFromRequest(r)
	backend := h.opts.Backends(bearerToken(r))

	e := h.opts.Registry.create(backend, func(id string) *checkout.Session {
		return checkout.NewSession(id, backend, checkout.Options{
			Owner:    owner,
			Store:    store,
			Config:   h.opts.Checkout,
			Listener: h.opts.Listener,
			Logger:   h.opts.Logger,
		})
	})
	h.opts.Logger.Printf("[API] checkout session %s opened by %s", e.session.ID, owner)
	respondJSON(w, http.StatusCreated, sessionResponse(e.session))
}

// GET /api/checkout/sessions/{id}
func (h *handler) view(w http.ResponseWriter, r *http.Request, e *entry) {
	respondJSON(w, http.StatusOK, sessionResponse(e.session))
}

// DELETE /api/checkout/sessions/{id}
func (h *handler) leave(w http.ResponseWriter, r *http.Request, e *entry) {
	if b := e.paymentBridge(); b != nil && b.IsProcessing() {
		e.session.Notify("info", "payment in progress")
		respondErr(w, checkout.ErrBusy)
		return
	}
	if e.session.Status() == checkout.StatusSubmitting {
		respondErr(w, checkout.ErrBusy)
		return
	}
	h.opts.Registry.remove(e.session.ID)
	h.opts.Logger.Printf("[API] checkout session %s closed", e.session.ID)
	w.WriteHeader(http.StatusNoContent)
}

type addressRequest struct {
	Billing       *checkout.Address `json:"billing"`
	Shipping      *checkout.Address `json:"shipping"`
	SameAsBilling bool              `json:"same_as_billing"`
}

// POST /api/checkout/sessions/{id}/address
func (h *handler) submitAddress(w http.ResponseWriter, r *http.Request, e *entry) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := e.session.SubmitAddresses(r.Context(), req.Billing, req.Shipping, req.SameAsBilling); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(e.session))
}

type shippingRequest struct {
	Method string `json:"shipping_method"`
}

// POST /api/checkout/sessions/{id}/shipping
func (h *handler) submitShipping(w http.ResponseWriter, r *http.Request, e *entry) {
	var req shippingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := e.session.SubmitShipping(r.Context(), req.Method); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(e.session))
}

type paymentRequest struct {
	Method string `json:"payment_method"`
}

// POST /api/checkout/sessions/{id}/payment
func (h *handler) submitPayment(w http.ResponseWriter, r *http.Request, e *entry) {
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := e.session.SubmitPayment(r.Context(), req.Method); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(e.session))
}

// POST /api/checkout/sessions/{id}/place-order
func (h *handler) placeOrder(w http.ResponseWriter, r *http.Request, e *entry) {
	placement, err := e.session.PlaceOrder(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	if placement.External != nil {
		b, err := h.openBridge(e, *placement.External)
		if err != nil {
			// The session is parked awaiting a page the shell cannot drive.
			_ = e.session.FailExternalPayment(context.WithoutCancel(r.Context()), err)
			respondError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		e.setBridge(b)
	}
	respondJSON(w, http.StatusOK, sessionResponse(e.session))
}

// openBridge attaches a payment bridge whose outcome drives the session.
func (h *handler) openBridge(e *entry, ext checkout.ExternalPayment) (*bridge.Bridge, error) {
	var b *bridge.Bridge
	s := e.session
	ctx := context.Background()
	b, err := bridge.New(bridge.Options{
		SessionID:     s.ID,
		Provider:      ext.Provider,
		RedirectURL:   ext.RedirectURL,
		PayPalOrderID: ext.PayPalOrderID,
		Capturer:      e.backend,
		Claimer:       h.opts.Claimer,
		Timeout:       h.opts.CaptureTimeout,
		Logger:        h.opts.Logger,
		Callbacks: bridge.Callbacks{
			OnSuccess: func(orderID string) {
				_ = s.CompleteExternalPayment(ctx, orderID, b.LastProcessed())
			},
			OnCancel: func() {
				_ = s.CancelExternalPayment(ctx)
			},
			OnError: func(err error) {
				_ = s.FailExternalPayment(ctx, err)
			},
		},
	})
	return b, err
}

type navigationRequest struct {
	URL string `json:"url"`
}

type paymentResponse struct {
	Action  bridge.Action `json:"action,omitempty"`
	Load    *bool         `json:"load,omitempty"`
	Close   string        `json:"close,omitempty"`
	State   bridge.State  `json:"state"`
	Session checkout.View `json:"session"`
}

func (h *handler) paymentReply(w http.ResponseWriter, e *entry, b *bridge.Bridge, resp paymentResponse) {
	resp.State = b.State()
	resp.Session = sessionResponse(e.session)
	respondJSON(w, http.StatusOK, resp)
}

// POST /api/checkout/sessions/{id}/payment/loaded
func (h *handler) paymentLoaded(w http.ResponseWriter, r *http.Request, e *entry, b *bridge.Bridge) {
	b.OnLoadEnd()
	h.paymentReply(w, e, b, paymentResponse{Action: bridge.ActionContinue})
}

// POST /api/checkout/sessions/{id}/payment/navigation
func (h *handler) paymentNavigation(w http.ResponseWriter, r *http.Request, e *entry, b *bridge.Bridge) {
	var req navigationRequest
	if err := decodeBody(r, &req); err != nil || req.URL == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	action := b.OnNavigation(r.Context(), req.URL)
	h.paymentReply(w, e, b, paymentResponse{Action: action})
}

// POST /api/checkout/sessions/{id}/payment/should-load
func (h *handler) paymentShouldLoad(w http.ResponseWriter, r *http.Request, e *entry, b *bridge.Bridge) {
	var req navigationRequest
	if err := decodeBody(r, &req); err != nil || req.URL == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	load := b.ShouldStartLoad(r.Context(), req.URL)
	resp := paymentResponse{Load: &load, Action: bridge.ActionContinue}
	switch {
	case b.IsProcessing():
		resp.Action = bridge.ActionCapturing
	case !load:
		resp.Action = bridge.ActionIgnored
	}
	h.paymentReply(w, e, b, resp)
}

type loadErrorRequest struct {
	Description string `json:"description"`
}

// POST /api/checkout/sessions/{id}/payment/load-error
func (h *handler) paymentLoadError(w http.ResponseWriter, r *http.Request, e *entry, b *bridge.Bridge) {
	var req loadErrorRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	b.OnLoadError(req.Description)
	h.paymentReply(w, e, b, paymentResponse{Action: bridge.ActionFailed})
}

type closeRequest struct {
	Confirmed bool `json:"confirmed"`
}

// POST /api/checkout/sessions/{id}/payment/close
func (h *handler) paymentClose(w http.ResponseWriter, r *http.Request, e *entry, b *bridge.Bridge) {
	var req closeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	result := b.RequestClose(req.Confirmed)
	if result == bridge.CloseBlocked {
		e.session.Notify("info", "payment in progress")
	}
	h.paymentReply(w, e, b, paymentResponse{Close: string(result)})
}

// GET /api/checkout/sessions/{id}/captures
func (h *handler) captures(w http.ResponseWriter, r *http.Request, e *entry) {
	if h.opts.Journal == nil {
		respondError(w, http.StatusServiceUnavailable, "internal", "journal unavailable")
		return
	}
	records, err := h.opts.Journal.CapturesForSession(r.Context(), e.session.ID)
	if err != nil {
		h.opts.Logger.Printf("[API] captures for %s failed: %v", e.session.ID, err)
		respondError(w, http.StatusInternalServerError, "internal", "query failed")
		return
	}
	if records == nil {
		records = []postgres.CaptureRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"captures": records})
}
