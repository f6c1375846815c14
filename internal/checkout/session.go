package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Status replaces a bare busy flag: step submissions are only accepted while idle.
type Status string

const (
	StatusIdle                    Status = "idle"
	StatusSubmitting              Status = "submitting"
	StatusAwaitingExternalPayment Status = "awaiting_external_payment"
	StatusCompleted               Status = "completed"
)

// Destination is where the shell navigates once checkout ends.
type Destination string

const (
	DestinationOrderConfirmation Destination = "order_confirmation"
	DestinationOrderPlaced       Destination = "order_placed"
	DestinationOrdersList        Destination = "orders_list"
)

// Result is the final outcome of a completed session.
type Result struct {
	OrderID     string      `json:"order_id,omitempty"`
	Destination Destination `json:"destination"`
}

// Notice is a transient user notification queued for the shell.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Config tunes the orchestrator.
type Config struct {
	// MethodCodeSegments is how many trailing underscore segments of a composite shipping
	// key form the method code. Zero means 2.
	MethodCodeSegments int
}

func (c Config) methodCodeSegments() int {
	if c.MethodCodeSegments <= 0 {
		return 2
	}
	return c.MethodCodeSegments
}

// Options carries the optional collaborators of a session.
type Options struct {
	Owner    string
	Store    string
	Config   Config
	Listener Listener
	Logger   *log.Logger
}

// Session is one customer's checkout. All exported methods are safe for concurrent use;
// network calls run outside the lock while the session is in StatusSubmitting.
type Session struct {
	ID        string
	Owner     string
	Store     string
	CreatedAt time.Time

	api      ShopAPI
	cfg      Config
	listener Listener
	logger   *log.Logger

	mu               sync.Mutex
	status           Status
	steps            *StepState
	billing          *Address
	shipping         *Address
	sameAsBilling    bool
	carrierKeys      []string
	shippingMethods  map[string]CarrierRates
	selectedShipping string
	paymentMethods   []PaymentMethod
	selectedPayment  string
	cart             *Cart
	external         *ExternalPayment
	result           *Result
	notices          []Notice
}

// NewSession starts a checkout at the address step.
func NewSession(id string, api ShopAPI, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	listener := opts.Listener
	if listener == nil {
		listener = Listeners(nil)
	}
	return &Session{
		ID:        id,
		Owner:     opts.Owner,
		Store:     opts.Store,
		CreatedAt: time.Now().UTC(),
		api:       api,
		cfg:       opts.Config,
		listener:  listener,
		logger:    logger,
		status:    StatusIdle,
		steps:     NewStepState(),
	}
}

func (s *Session) logf(format string, args ...any) {
	s.logger.Printf("[Checkout %s] "+format, append([]any{s.ID}, args...)...)
}

// begin moves the session to submitting if it is idle and step is reachable.
// Callers must hold no lock.
func (s *Session) begin(step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(step)
}

func (s *Session) beginLocked(step Step) error {
	switch s.status {
	case StatusCompleted:
		return ErrSessionClosed
	case StatusIdle:
	default:
		return fmt.Errorf("%s while %s: %w", step, s.status, ErrBusy)
	}
	if err := s.steps.Guard(step); err != nil {
		return err
	}
	s.status = StatusSubmitting
	return nil
}

// end returns to idle unless the handler moved the session elsewhere.
func (s *Session) endLocked() {
	if s.status == StatusSubmitting {
		s.status = StatusIdle
	}
}

func (s *Session) noticeLocked(level, msg string) {
	s.notices = append(s.notices, Notice{Level: level, Message: msg, At: time.Now().UTC()})
}

// failLocked queues a notice for business outcomes worth showing the user.
func (s *Session) failLocked(err error) {
	switch Kind(err) {
	case "busy", "step_locked", "session_closed":
		return
	}
	s.noticeLocked("error", err.Error())
}

// SubmitAddresses validates and saves billing/shipping addresses and stores the offered
// shipping methods keyed carrier_<index>.
func (s *Session) SubmitAddresses(ctx context.Context, billing, shipping *Address, sameAsBilling bool) (map[string]CarrierRates, error) {
	sub, err := buildAddressSubmission(billing, shipping, sameAsBilling)
	if err != nil {
		return nil, err
	}
	if err := s.begin(StepAddress); err != nil {
		return nil, err
	}

	resp, err := s.api.SaveAddresses(ctx, sub)
	if err == nil && (resp == nil || !hasRates(resp.Rates)) {
		err = ErrNoShippingAvailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.endLocked()
	if err != nil {
		if !errors.Is(err, ErrNoShippingAvailable) {
			err = fmt.Errorf("save addresses: %w", err)
		}
		s.logf("address step failed: %v", err)
		s.failLocked(err)
		return nil, err
	}

	b := *billing
	s.billing = &b
	s.sameAsBilling = sameAsBilling
	if sameAsBilling {
		s.shipping = &b
	} else {
		sh := *shipping
		s.shipping = &sh
	}
	s.carrierKeys = s.carrierKeys[:0]
	s.shippingMethods = make(map[string]CarrierRates, len(resp.Rates))
	for i, group := range resp.Rates {
		key := fmt.Sprintf("carrier_%d", i)
		s.carrierKeys = append(s.carrierKeys, key)
		s.shippingMethods[key] = group
	}
	s.selectedShipping = ""
	s.paymentMethods = nil
	s.selectedPayment = ""
	if err := s.steps.Complete(StepAddress); err != nil {
		return nil, err
	}
	s.logf("address saved, %d carrier groups", len(resp.Rates))
	return copyMethods(s.shippingMethods), nil
}

// SubmitShipping saves the rate identified by a composite key and stores the payment
// methods the server offers for it.
func (s *Session) SubmitShipping(ctx context.Context, selectedKey string) ([]PaymentMethod, error) {
	s.mu.Lock()
	if err := s.beginLocked(StepShipping); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.hasShippingKeyLocked(selectedKey) {
		s.endLocked()
		s.mu.Unlock()
		return nil, validationErrorf("shipping_method", "unknown shipping method %q", selectedKey)
	}
	s.mu.Unlock()

	methodCode := MethodCodeFromKey(selectedKey, s.cfg.methodCodeSegments())
	resp, err := s.api.SaveShipping(ctx, methodCode)
	if err == nil && (resp == nil || len(resp.Methods) == 0) {
		err = ErrNoPaymentAvailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.endLocked()
	if err != nil {
		if !errors.Is(err, ErrNoPaymentAvailable) {
			err = fmt.Errorf("save shipping %s: %w", methodCode, err)
		}
		s.logf("shipping step failed: %v", err)
		s.failLocked(err)
		return nil, err
	}

	s.selectedShipping = selectedKey
	s.paymentMethods = append([]PaymentMethod(nil), resp.Methods...)
	s.selectedPayment = ""
	if err := s.steps.Complete(StepShipping); err != nil {
		return nil, err
	}
	s.logf("shipping method %s saved, %d payment methods", methodCode, len(resp.Methods))
	return append([]PaymentMethod(nil), s.paymentMethods...), nil
}

// SubmitPayment saves the payment method and refreshes the cart, since totals can depend
// on the method chosen.
func (s *Session) SubmitPayment(ctx context.Context, methodCode string) error {
	s.mu.Lock()
	if err := s.beginLocked(StepPayment); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.hasPaymentMethodLocked(methodCode) {
		s.endLocked()
		s.mu.Unlock()
		return validationErrorf("payment_method", "unknown payment method %q", methodCode)
	}
	s.mu.Unlock()

	if err := s.api.SavePayment(ctx, methodCode); err != nil {
		err = fmt.Errorf("save payment %s: %w", methodCode, err)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logf("payment step failed: %v", err)
		s.failLocked(err)
		s.endLocked()
		return err
	}

	cart, cartErr := s.api.FetchCart(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.endLocked()
	s.selectedPayment = methodCode
	if cartErr != nil {
		s.logf("cart refresh after payment failed: %v", cartErr)
		s.noticeLocked("warning", "could not refresh cart totals")
	} else {
		s.cart = cart
	}
	if err := s.steps.Complete(StepPayment); err != nil {
		return err
	}
	s.logf("payment method %s saved", methodCode)
	return nil
}

// refreshCart replaces the cart snapshot, logging failures only.
func (s *Session) refreshCart(ctx context.Context) {
	cart, err := s.api.FetchCart(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logf("cart refresh failed: %v", err)
		return
	}
	s.cart = cart
}

// ExternalPayment returns the open external payment, if any.
func (s *Session) ExternalPayment() (ExternalPayment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.external == nil || s.status != StatusAwaitingExternalPayment {
		return ExternalPayment{}, false
	}
	return *s.external, true
}

// CompleteExternalPayment finishes checkout after a confirmed capture.
func (s *Session) CompleteExternalPayment(ctx context.Context, orderID, transactionID string) error {
	s.mu.Lock()
	if s.status != StatusAwaitingExternalPayment {
		s.mu.Unlock()
		return ErrNoExternalPayment
	}
	ext := *s.external
	s.mu.Unlock()

	s.refreshCart(ctx)

	res := Result{OrderID: orderID, Destination: DestinationOrderConfirmation}
	if orderID == "" {
		res.Destination = DestinationOrdersList
	}
	s.mu.Lock()
	if s.status != StatusAwaitingExternalPayment {
		s.mu.Unlock()
		return ErrNoExternalPayment
	}
	s.status = StatusCompleted
	s.external = nil
	s.result = &res
	_ = s.steps.Complete(StepReview)
	s.noticeLocked("info", "payment completed")
	s.logf("%s payment captured, order=%s", ext.Provider, orderID)
	s.mu.Unlock()

	s.emit(ctx, Event{Type: EventPaymentCaptured, OrderID: orderID, Destination: res.Destination, Provider: ext.Provider, TransactionID: transactionID})
	return nil
}

// FailExternalPayment closes the payment page after a failed capture or load error. The
// session returns to review so the customer can place the order again.
func (s *Session) FailExternalPayment(ctx context.Context, cause error) error {
	s.mu.Lock()
	if s.status != StatusAwaitingExternalPayment {
		s.mu.Unlock()
		return ErrNoExternalPayment
	}
	ext := *s.external
	s.status = StatusIdle
	s.external = nil
	s.noticeLocked("error", cause.Error())
	s.logf("%s payment failed: %v", ext.Provider, cause)
	s.mu.Unlock()

	evt := Event{Type: EventPaymentCaptureFailed, Provider: ext.Provider, Message: cause.Error()}
	var le *WebViewLoadError
	var ce *PaymentCaptureError
	if errors.As(cause, &le) {
		evt.Type = EventPaymentPageLoadFailed
	} else if errors.As(cause, &ce) {
		evt.TransactionID = ce.TransactionID
		evt.Message = ce.Message
	}
	s.emit(ctx, evt)
	return nil
}

// CancelExternalPayment records a user abort of the payment page.
func (s *Session) CancelExternalPayment(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusAwaitingExternalPayment {
		s.mu.Unlock()
		return ErrNoExternalPayment
	}
	ext := *s.external
	s.status = StatusIdle
	s.external = nil
	s.noticeLocked("info", ErrPaymentCancelled.Error())
	s.logf("%s payment cancelled", ext.Provider)
	s.mu.Unlock()

	s.emit(ctx, Event{Type: EventPaymentCancelled, Provider: ext.Provider})
	return nil
}

// Notify queues a notice on behalf of a collaborator such as the payment bridge.
func (s *Session) Notify(level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noticeLocked(level, msg)
}

// DrainNotices returns and clears the queued notices.
func (s *Session) DrainNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// Status returns the session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the final outcome once the session completed.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

func (s *Session) emit(ctx context.Context, evt Event) {
	evt.SessionID = s.ID
	evt.Owner = s.Owner
	evt.OccurredAt = time.Now().UTC()
	s.listener.OnEvent(ctx, evt)
}

func (s *Session) hasShippingKeyLocked(key string) bool {
	for carrierKey, group := range s.shippingMethods {
		for _, rate := range group.Rates {
			if CompositeKey(carrierKey, rate.Method) == key {
				return true
			}
		}
	}
	return false
}

func (s *Session) hasPaymentMethodLocked(code string) bool {
	for _, m := range s.paymentMethods {
		if m.Method == code {
			return true
		}
	}
	return false
}

func hasRates(groups []CarrierRates) bool {
	for _, g := range groups {
		if len(g.Rates) > 0 {
			return true
		}
	}
	return false
}

func copyMethods(in map[string]CarrierRates) map[string]CarrierRates {
	out := make(map[string]CarrierRates, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
