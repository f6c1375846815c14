package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/bridge"
	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// ErrSessionNotFound is returned for unknown ids and for sessions owned by someone else.
var ErrSessionNotFound = errors.New("checkout session not found")

// Backend is the per-customer Shop API view: the orchestrator port plus the capture
// endpoints the payment bridge confirms with.
type Backend interface {
	checkout.ShopAPI
	bridge.Capturer
}

// BackendFactory binds a Backend to the customer's bearer token.
type BackendFactory func(token string) Backend

// entry is one live checkout. The bridge is replaced on every external placement.
type entry struct {
	session *checkout.Session
	backend Backend
	touched time.Time
	mu      sync.Mutex
	payment *bridge.Bridge
}

func (e *entry) paymentBridge() *bridge.Bridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payment
}

func (e *entry) setBridge(b *bridge.Bridge) {
	e.mu.Lock()
	e.payment = b
	e.mu.Unlock()
}

// Registry holds the live sessions of this replica.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *Registry) create(backend Backend, newSession func(id string) *checkout.Session) *entry {
	e := &entry{
		session: newSession(uuid.NewString()),
		backend: backend,
		touched: r.now(),
	}
	r.mu.Lock()
	r.sessions[e.session.ID] = e
	r.mu.Unlock()
	return e
}

// get returns the session only to its owner.
func (r *Registry) get(id, owner string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.session.Owner != owner {
		return nil, ErrSessionNotFound
	}
	e.touched = r.now()
	return e, nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a capture in flight
// are kept. It returns the number of sessions removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.sessions {
		if e.touched.After(cutoff) {
			continue
		}
		if b := e.paymentBridge(); b != nil && b.IsProcessing() {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}
