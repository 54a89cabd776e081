package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
)

const (
	cartKeyPrefix = "portal:cart:"
	// ChangesChannel carries repository.CartChange messages between replicas.
	ChangesChannel = "portal:cart:changes"
)

func cartKey(sessionID string) string {
	return cartKeyPrefix + sessionID
}

func revisionKey(sessionID string) string {
	return cartKeyPrefix + sessionID + ":rev"
}

// CartStorage implements repository.CartStorage on Redis. Lines are stored
// as a JSON array under portal:cart:<session>; the revision lives next to it.
type CartStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCartStorage creates a Redis-backed cart storage.
func NewCartStorage(client *redis.Client, ttl time.Duration, logger *slog.Logger) *CartStorage {
	return &CartStorage{client: client, ttl: ttl, logger: logger}
}

// Load reads the stored lines and revision.
func (s *CartStorage) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	vals, err := s.client.MGet(ctx, cartKey(sessionID), revisionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load cart: %w", err)
	}

	cart := domain.NewCart(sessionID)
	raw, ok := vals[0].(string)
	if !ok {
		return cart, nil
	}
	if err := json.Unmarshal([]byte(raw), &cart.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart lines: %w", err)
	}
	if rev, ok := vals[1].(string); ok {
		cart.Revision, _ = strconv.ParseInt(rev, 10, 64)
	}
	cart.Normalize()
	return cart, nil
}

// Save writes the lines and revision atomically and publishes the change.
func (s *CartStorage) Save(ctx context.Context, cart *domain.Cart) error {
	lines := cart.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart lines: %w", err)
	}
	change, err := json.Marshal(repository.CartChange{
		SessionID: cart.SessionID,
		Revision:  cart.Revision,
		Origin:    cart.Origin,
		Lines:     lines,
	})
	if err != nil {
		return fmt.Errorf("marshal cart change: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(lines) == 0 {
			pipe.Del(ctx, cartKey(cart.SessionID), revisionKey(cart.SessionID))
		} else {
			pipe.Set(ctx, cartKey(cart.SessionID), data, s.ttl)
			pipe.Set(ctx, revisionKey(cart.SessionID), cart.Revision, s.ttl)
		}
		pipe.Publish(ctx, ChangesChannel, change)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save cart: %w", err)
	}
	return nil
}

// Subscribe listens on ChangesChannel. Malformed messages are logged and
// skipped.
func (s *CartStorage) Subscribe(ctx context.Context, fn func(repository.CartChange)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, ChangesChannel)
	// Wait for the subscription confirmation so no change published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", ChangesChannel, err)
	}

	var once sync.Once
	stop := func() { once.Do(func() { _ = pubsub.Close() }) }

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		for msg := range pubsub.Channel() {
			var change repository.CartChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.logger.Warn("dropping malformed cart change",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			fn(change)
		}
	}()

	return stop, nil
}

// Ping reports whether Redis is reachable.
func (s *CartStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
