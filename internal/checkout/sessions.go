package checkout

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/storefront-checkout/internal/cart"
	"go.uber.org/zap"
)

// DefaultSessionTTL drops checkouts nobody touched for this long.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound means the id is unknown or the session expired.
var ErrSessionNotFound = errors.New("checkout session not found")

type sessionEntry struct {
	checkout *Checkout
	lastUsed time.Time
}

// Sessions keeps checkouts in process memory keyed by a random id. A session
// lives on the instance that created it; a client that lands elsewhere gets
// ErrSessionNotFound and starts over.
type Sessions struct {
	quoter    Quoter
	submitter Submitter
	carts     CartClearer
	log       *zap.Logger
	ttl       time.Duration
	nowFunc   func() time.Time

	mu   sync.Mutex
	byID map[string]*sessionEntry
}

// NewSessions builds a registry; ttl <= 0 selects DefaultSessionTTL.
func NewSessions(quoter Quoter, submitter Submitter, carts CartClearer, log *zap.Logger, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sessions{
		quoter:    quoter,
		submitter: submitter,
		carts:     carts,
		log:       log,
		ttl:       ttl,
		nowFunc:   time.Now,
		byID:      make(map[string]*sessionEntry),
	}
}

// Start opens a checkout for the cart and returns its id.
func (s *Sessions) Start(session Session, c *cart.Cart) (string, *Checkout) {
	id := uuid.NewString()
	co := New(session, c, s.quoter, s.submitter, s.carts, s.log.With(zap.String("checkout_id", id)))
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.byID[id] = &sessionEntry{checkout: co, lastUsed: now}
	return id, co
}

// Get returns a live checkout and refreshes its expiry.
func (s *Sessions) Get(id string) (*Checkout, error) {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || now.Sub(e.lastUsed) > s.ttl {
		delete(s.byID, id)
		return nil, ErrSessionNotFound
	}
	e.lastUsed = now
	return e.checkout, nil
}

// Len reports the number of tracked sessions, expired ones included until pruned.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Sessions) pruneLocked(now time.Time) {
	for id, e := range s.byID {
		if now.Sub(e.lastUsed) > s.ttl {
			delete(s.byID, id)
		}
	}
}
