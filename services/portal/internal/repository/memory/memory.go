// Package memory provides in-process storage for single-replica deployments
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
)

// CartStorage keeps carts in a map and notifies subscribers synchronously.
type CartStorage struct {
	mu          sync.RWMutex
	carts       map[string]*domain.Cart
	subscribers map[string]func(repository.CartChange)
}

// NewCartStorage creates an empty in-memory cart storage.
func NewCartStorage() *CartStorage {
	return &CartStorage{
		carts:       make(map[string]*domain.Cart),
		subscribers: make(map[string]func(repository.CartChange)),
	}
}

// Load returns a copy of the stored cart.
func (s *CartStorage) Load(_ context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.carts[sessionID]; ok {
		return c.Clone(), nil
	}
	return domain.NewCart(sessionID), nil
}

// Save stores a copy of cart and fans the change out.
func (s *CartStorage) Save(_ context.Context, cart *domain.Cart) error {
	stored := cart.Clone()

	s.mu.Lock()
	if len(stored.Lines) == 0 {
		delete(s.carts, cart.SessionID)
	} else {
		s.carts[cart.SessionID] = stored
	}
	subs := make([]func(repository.CartChange), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	change := repository.CartChange{
		SessionID: stored.SessionID,
		Revision:  stored.Revision,
		Origin:    stored.Origin,
		Lines:     stored.Lines,
	}
	for _, fn := range subs {
		fn(change)
	}
	return nil
}

// Subscribe registers fn until cancel is called or ctx ends.
func (s *CartStorage) Subscribe(ctx context.Context, fn func(repository.CartChange)) (func(), error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, cancel)
	return cancel, nil
}

// ContactRepository keeps contact fields in a map. Entries expire after ttl.
type ContactRepository struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]contactEntry
}

type contactEntry struct {
	contact   domain.Contact
	expiresAt time.Time
}

// NewContactRepository creates an in-memory contact repository.
func NewContactRepository(ttl time.Duration) *ContactRepository {
	return &ContactRepository{ttl: ttl, now: time.Now, entries: make(map[string]contactEntry)}
}

// SaveContact implements repository.ContactRepository.
func (r *ContactRepository) SaveContact(_ context.Context, sessionID string, c domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = contactEntry{contact: c, expiresAt: r.now().Add(r.ttl)}
	return nil
}

// LoadContact implements repository.ContactRepository.
func (r *ContactRepository) LoadContact(_ context.Context, sessionID string) (domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok || (r.ttl > 0 && r.now().After(e.expiresAt)) {
		return domain.Contact{}, nil
	}
	return e.contact, nil
}

// SubmissionGuard is a per-session mutex with expiry.
type SubmissionGuard struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]lockEntry
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// NewSubmissionGuard creates an in-memory submission guard.
func NewSubmissionGuard() *SubmissionGuard {
	return &SubmissionGuard{now: time.Now, locks: make(map[string]lockEntry)}
}

// Acquire implements repository.SubmissionGuard.
func (g *SubmissionGuard) Acquire(_ context.Context, sessionID string, ttl time.Duration) (func(context.Context) error, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if held, ok := g.locks[sessionID]; ok && g.now().Before(held.expiresAt) {
		return nil, repository.ErrLockHeld
	}
	token := uuid.NewString()
	g.locks[sessionID] = lockEntry{token: token, expiresAt: g.now().Add(ttl)}

	return func(context.Context) error {
		g.mu.Lock()
		defer g.mu.Unlock()
		if held, ok := g.locks[sessionID]; ok && held.token == token {
			delete(g.locks, sessionID)
		}
		return nil
	}, nil
}
