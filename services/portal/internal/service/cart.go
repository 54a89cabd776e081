package service

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
)

const sessionLockStripes = 64

// CartView is a cart together with its freshly derived totals.
type CartView struct {
	SessionID string            `json:"session_id"`
	Lines     []domain.CartLine `json:"lines"`
	Totals    domain.Totals     `json:"totals"`
	ItemCount int               `json:"item_count"`
	Revision  int64             `json:"revision"`
}

type cachedCart struct {
	cart     *domain.Cart
	loadedAt time.Time
}

// CartStore owns this replica's view of every session's cart. Writes go
// through to storage; changes written by other replicas arrive through the
// storage subscription and win when their revision is newer.
type CartStore struct {
	storage  repository.CartStorage
	pricing  domain.Pricing
	cacheTTL time.Duration
	origin   string
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]*cachedCart

	locks [sessionLockStripes]sync.Mutex

	cancelSub func()
}

// NewCartStore creates a cart store. cacheTTL bounds how long a local view is
// trusted without re-reading storage.
func NewCartStore(storage repository.CartStorage, pricing domain.Pricing, cacheTTL time.Duration, logger *slog.Logger) *CartStore {
	return &CartStore{
		storage:  storage,
		pricing:  pricing,
		cacheTTL: cacheTTL,
		origin:   uuid.NewString(),
		now:      time.Now,
		logger:   logger,
		cache:    make(map[string]*cachedCart),
	}
}

// Origin identifies this replica in change notifications.
func (s *CartStore) Origin() string {
	return s.origin
}

// Start subscribes to cart changes from other replicas.
func (s *CartStore) Start(ctx context.Context) error {
	cancel, err := s.storage.Subscribe(ctx, s.applyRemote)
	if err != nil {
		return err
	}
	s.cancelSub = cancel
	return nil
}

// Close stops the change subscription.
func (s *CartStore) Close() {
	if s.cancelSub != nil {
		s.cancelSub()
	}
}

// Get returns the session's cart with totals.
func (s *CartStore) Get(ctx context.Context, sessionID string) (CartView, error) {
	cart, err := s.current(ctx, sessionID, false)
	if err != nil {
		return CartView{}, err
	}
	return s.view(cart), nil
}

// Totals derives the price breakdown from the current lines.
func (s *CartStore) Totals(ctx context.Context, sessionID string) (domain.Totals, error) {
	cart, err := s.current(ctx, sessionID, false)
	if err != nil {
		return domain.Totals{}, err
	}
	return s.pricing.Totals(cart.Lines), nil
}

// AddOrUpdate sets the quantity of a product line. A non-positive quantity
// removes the line.
func (s *CartStore) AddOrUpdate(ctx context.Context, sessionID, productID, productName string, unitPrice decimal.Decimal, quantity int) (CartView, error) {
	return s.mutate(ctx, sessionID, "add_or_update", func(c *domain.Cart) bool {
		return c.AddOrUpdate(productID, productName, unitPrice, quantity)
	})
}

// Remove deletes a product line. Missing lines are a no-op.
func (s *CartStore) Remove(ctx context.Context, sessionID, productID string) (CartView, error) {
	return s.mutate(ctx, sessionID, "remove", func(c *domain.Cart) bool {
		return c.Remove(productID)
	})
}

// Clear empties the session's cart.
func (s *CartStore) Clear(ctx context.Context, sessionID string) (CartView, error) {
	return s.mutate(ctx, sessionID, "clear", func(c *domain.Cart) bool {
		return c.Clear()
	})
}

// Snapshot re-reads storage and returns an immutable priced copy of the cart.
func (s *CartStore) Snapshot(ctx context.Context, sessionID string) (domain.CartSnapshot, error) {
	cart, err := s.current(ctx, sessionID, true)
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	return cart.Snapshot(s.pricing, s.now().UTC()), nil
}

func (s *CartStore) mutate(ctx context.Context, sessionID, op string, fn func(*domain.Cart) bool) (CartView, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.current(ctx, sessionID, false)
	if err != nil {
		return CartView{}, err
	}

	cart := current.Clone()
	if !fn(cart) {
		return s.view(cart), nil
	}

	now := s.now().UTC()
	cart.Revision = max(now.UnixNano(), current.Revision+1)
	cart.Origin = s.origin
	cart.UpdatedAt = now

	if err := s.storage.Save(ctx, cart); err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to save cart",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return CartView{}, apperrors.ServiceUnavailable("cart storage is unavailable, please try again")
	}

	s.store(cart)
	CartMutations.WithLabelValues(op).Inc()
	return s.view(cart), nil
}

// current returns the local view, reloading from storage when it is missing,
// stale, or when fresh is set.
func (s *CartStore) current(ctx context.Context, sessionID string, fresh bool) (*domain.Cart, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	if !fresh {
		s.mu.RLock()
		entry, ok := s.cache[sessionID]
		s.mu.RUnlock()
		if ok && s.now().Sub(entry.loadedAt) < s.cacheTTL {
			return entry.cart.Clone(), nil
		}
	}

	cart, err := s.storage.Load(ctx, sessionID)
	if err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to load cart",
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("cart storage is unavailable, please try again")
	}
	return s.store(cart).Clone(), nil
}

// store caches cart unless the cache already holds a newer revision, which
// happens when a remote change lands while a load is in flight. It returns
// the cart that is cached afterwards.
func (s *CartStore) store(cart *domain.Cart) *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.cache[cart.SessionID]; ok && entry.cart.Revision > cart.Revision {
		return entry.cart
	}
	s.cache[cart.SessionID] = &cachedCart{cart: cart.Clone(), loadedAt: s.now()}
	return cart
}

// applyRemote merges a change published by any replica. Echoes of our own
// writes and changes not newer than the local view are ignored. Sessions
// without a local view are left to load lazily.
func (s *CartStore) applyRemote(change repository.CartChange) {
	if change.Origin == s.origin {
		CartRemoteChanges.WithLabelValues("own").Inc()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[change.SessionID]
	if !ok {
		CartRemoteChanges.WithLabelValues("not_cached").Inc()
		return
	}
	if change.Revision <= entry.cart.Revision {
		CartRemoteChanges.WithLabelValues("stale").Inc()
		return
	}

	cart := &domain.Cart{
		SessionID: change.SessionID,
		Lines:     append([]domain.CartLine(nil), change.Lines...),
		Revision:  change.Revision,
		Origin:    change.Origin,
		UpdatedAt: time.Unix(0, change.Revision).UTC(),
	}
	cart.Normalize()
	s.cache[change.SessionID] = &cachedCart{cart: cart, loadedAt: s.now()}
	CartRemoteChanges.WithLabelValues("applied").Inc()
}

func (s *CartStore) view(cart *domain.Cart) CartView {
	lines := cart.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartView{
		SessionID: cart.SessionID,
		Lines:     lines,
		Totals:    s.pricing.Totals(lines),
		ItemCount: cart.ItemCount(),
		Revision:  cart.Revision,
	}
}

func (s *CartStore) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%sessionLockStripes]
}
