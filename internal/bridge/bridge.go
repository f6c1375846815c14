package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// DefaultCaptureTimeout bounds a single capture/confirm call.
const DefaultCaptureTimeout = 60 * time.Second

// State is the lifecycle of one hosted payment page.
type State string

const (
	StateLoading    State = "loading"
	StateAwaiting   State = "awaiting"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var allowedTransitions = map[State][]State{
	StateLoading:    {StateAwaiting, StateProcessing, StateCancelled, StateFailed},
	StateAwaiting:   {StateProcessing, StateCancelled, StateFailed},
	StateProcessing: {StateSucceeded, StateFailed, StateAwaiting},
	StateSucceeded:  {},
	StateFailed:     {},
	StateCancelled:  {},
}

func canTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return len(allowedTransitions[s]) == 0 }

// Action is what the bridge did with a navigation event.
type Action string

const (
	ActionContinue  Action = "continue"
	ActionCancelled Action = "cancelled"
	ActionIgnored   Action = "ignored"
	ActionCaptured  Action = "captured"
	ActionFailed    Action = "failed"
	ActionCapturing Action = "capturing"
)

// CloseResult answers a manual close request.
type CloseResult string

const (
	CloseBlocked           CloseResult = "blocked"
	CloseNeedsConfirmation CloseResult = "needs_confirmation"
	CloseClosed            CloseResult = "closed"
)

// Capturer calls the server-side capture/confirm endpoint of a provider.
type Capturer interface {
	Capture(ctx context.Context, provider checkout.Provider, id string) (map[string]any, error)
}

// Claimer records captures across replicas. Claim returns false when id was already
// claimed elsewhere.
type Claimer interface {
	Claim(ctx context.Context, provider checkout.Provider, id string) (bool, error)
}

// Callbacks receive the single outcome of the payment page. Exactly one of them fires.
type Callbacks struct {
	OnSuccess func(orderID string)
	OnCancel  func()
	OnError   func(err error)
}

// Options configures a Bridge.
type Options struct {
	SessionID     string
	Provider      checkout.Provider
	RedirectURL   string
	PayPalOrderID string
	Capturer      Capturer
	Claimer       Claimer
	Callbacks     Callbacks
	Timeout       time.Duration
	Logger        *log.Logger
}

// Bridge observes the embedded browser of one hosted payment page and confirms the payment
// at most once per identifier. It never panics or returns errors to the host; outcomes are
// delivered through Callbacks.
type Bridge struct {
	sessionID   string
	provider    checkout.Provider
	redirectURL string
	orderID     string
	patterns    Patterns
	capturer    Capturer
	claimer     Claimer
	callbacks   Callbacks
	timeout     time.Duration
	logger      *log.Logger

	mu            sync.Mutex
	state         State
	processed     map[string]bool
	lastProcessed string
	inflight      sync.WaitGroup
}

// New opens a bridge in the loading state.
func New(opts Options) (*Bridge, error) {
	patterns, ok := PatternsFor(opts.Provider)
	if !ok {
		return nil, fmt.Errorf("unsupported payment provider %q", opts.Provider)
	}
	if opts.Capturer == nil {
		return nil, errors.New("bridge requires a capturer")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{
		sessionID:   opts.SessionID,
		provider:    opts.Provider,
		redirectURL: opts.RedirectURL,
		orderID:     opts.PayPalOrderID,
		patterns:    patterns,
		capturer:    opts.Capturer,
		claimer:     opts.Claimer,
		callbacks:   opts.Callbacks,
		timeout:     timeout,
		logger:      logger,
		state:       StateLoading,
		processed:   make(map[string]bool),
	}, nil
}

func (b *Bridge) logf(format string, args ...any) {
	b.logger.Printf("[Bridge %s] "+format, append([]any{b.sessionID}, args...)...)
}

// Provider returns the provider this bridge serves.
func (b *Bridge) Provider() checkout.Provider { return b.provider }

// RedirectURL is the page the embedded browser should open.
func (b *Bridge) RedirectURL() string { return b.redirectURL }

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsProcessing reports whether a capture call is in flight.
func (b *Bridge) IsProcessing() bool { return b.State() == StateProcessing }

// LastProcessed returns the last identifier submitted for capture.
func (b *Bridge) LastProcessed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastProcessed
}

// Wait blocks until captures started by ShouldStartLoad have finished.
func (b *Bridge) Wait() { b.inflight.Wait() }

// OnLoadEnd records that the provider page finished its first load.
func (b *Bridge) OnLoadEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateLoading {
		b.state = StateAwaiting
	}
}

// OnNavigation handles a navigation-state change. Success processing runs synchronously.
func (b *Bridge) OnNavigation(ctx context.Context, rawURL string) Action {
	m := b.patterns.Classify(rawURL)
	switch {
	case m.Cancel:
		return b.cancel("cancel url")
	case !m.Success:
		b.OnLoadEnd()
		return ActionContinue
	}

	captureID, ok := b.claimLocal(m)
	if !ok {
		return ActionIgnored
	}
	return b.capture(ctx, m.Identifier, captureID)
}

// ShouldStartLoad is consulted before the embedded browser loads a URL. For PayPal,
// success URLs are intercepted: capture starts in the background and the load is aborted.
func (b *Bridge) ShouldStartLoad(ctx context.Context, rawURL string) bool {
	if b.provider != checkout.ProviderPayPalSmartButton {
		return true
	}
	m := b.patterns.Classify(rawURL)
	if m.Cancel {
		b.cancel("cancel url before load")
		return false
	}
	if !m.Success {
		return true
	}

	captureID, ok := b.claimLocal(m)
	if !ok {
		return false
	}
	bg := context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.capture(bg, m.Identifier, captureID)
	}()
	return false
}

// OnLoadError reports the embedded browser failing to load the provider page.
func (b *Bridge) OnLoadError(description string) {
	b.mu.Lock()
	if !canTransition(b.state, StateFailed) || b.state == StateProcessing {
		b.mu.Unlock()
		return
	}
	b.state = StateFailed
	b.mu.Unlock()

	b.logf("%s page failed to load: %s", b.provider, description)
	b.fireError(&checkout.WebViewLoadError{Provider: string(b.provider), Description: description})
}

// RequestClose handles the user closing the payment page. A close while a capture is in
// flight is blocked; otherwise it needs an explicit confirmation before cancelling.
func (b *Bridge) RequestClose(confirmed bool) CloseResult {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	switch {
	case state == StateProcessing:
		return CloseBlocked
	case state.Terminal():
		return CloseClosed
	case !confirmed:
		return CloseNeedsConfirmation
	}
	b.cancel("closed by user")
	return CloseClosed
}

// claimLocal marks the identifier processed and enters processing. It returns the id the
// capture call must use.
func (b *Bridge) claimLocal(m Match) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.processed[m.Identifier] {
		b.logf("identifier %s already processed, ignoring navigation", m.Identifier)
		return "", false
	}
	if !canTransition(b.state, StateProcessing) {
		return "", false
	}
	captureID := m.Identifier
	if !m.CaptureSelf && b.orderID != "" {
		captureID = b.orderID
	}
	b.processed[m.Identifier] = true
	b.lastProcessed = m.Identifier
	b.state = StateProcessing
	return captureID, true
}

func (b *Bridge) capture(ctx context.Context, identifier, captureID string) (action Action) {
	outcome := StateFailed
	defer func() {
		b.mu.Lock()
		if b.state == StateProcessing {
			b.state = outcome
		}
		b.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			b.logf("capture panicked: %v", r)
			if outcome == StateSucceeded {
				return
			}
			action = ActionFailed
			b.fireError(&checkout.PaymentCaptureError{
				Provider:      string(b.provider),
				TransactionID: identifier,
				Message:       fmt.Sprintf("unexpected error: %v", r),
			})
		}
	}()

	if b.claimer != nil {
		claimed, err := b.claimer.Claim(ctx, b.provider, identifier)
		if err != nil {
			b.logf("claim %s failed: %v", identifier, err)
			b.fireError(&checkout.PaymentCaptureError{
				Provider:      string(b.provider),
				TransactionID: identifier,
				Message:       "could not verify payment state, please try again",
				Err:           err,
			})
			return ActionFailed
		}
		if !claimed {
			b.logf("identifier %s claimed by another instance", identifier)
			outcome = StateAwaiting
			return ActionIgnored
		}
	}

	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.logf("capturing %s payment %s", b.provider, captureID)
	body, err := b.capturer.Capture(cctx, b.provider, captureID)
	if err != nil {
		b.logf("capture %s failed: %v", captureID, err)
		b.fireError(&checkout.PaymentCaptureError{
			Provider:      string(b.provider),
			TransactionID: identifier,
			Message:       checkout.ErrorMessage(err),
			Err:           err,
		})
		return ActionFailed
	}

	orderID, ok := checkout.EvaluateCapture(body)
	if !ok {
		msg := checkout.ServerMessage(body)
		if msg == "" {
			msg = "payment could not be confirmed"
		}
		b.logf("capture %s rejected: %s", captureID, msg)
		b.fireError(&checkout.PaymentCaptureError{
			Provider:      string(b.provider),
			TransactionID: identifier,
			Message:       msg,
		})
		return ActionFailed
	}

	outcome = StateSucceeded
	b.logf("capture %s confirmed, order=%s", captureID, orderID)
	if b.callbacks.OnSuccess != nil {
		b.callbacks.OnSuccess(orderID)
	}
	return ActionCaptured
}

func (b *Bridge) cancel(reason string) Action {
	b.mu.Lock()
	if !canTransition(b.state, StateCancelled) {
		b.mu.Unlock()
		return ActionIgnored
	}
	b.state = StateCancelled
	b.mu.Unlock()

	b.logf("%s payment cancelled: %s", b.provider, reason)
	if b.callbacks.OnCancel != nil {
		b.callbacks.OnCancel()
	}
	return ActionCancelled
}

func (b *Bridge) fireError(err error) {
	if b.callbacks.OnError != nil {
		b.callbacks.OnError(err)
	}
}
