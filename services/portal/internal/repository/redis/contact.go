package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

func phoneKey(sessionID string) string {
	return "portal:checkout:" + sessionID + ":phone"
}

func addressKey(sessionID string) string {
	return "portal:checkout:" + sessionID + ":address"
}

// ContactRepository stores checkout contact fields under separate keys.
type ContactRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewContactRepository creates a Redis-backed contact repository.
func NewContactRepository(client *redis.Client, ttl time.Duration) *ContactRepository {
	return &ContactRepository{client: client, ttl: ttl}
}

// SaveContact writes phone and address. Empty fields delete their key.
func (r *ContactRepository) SaveContact(ctx context.Context, sessionID string, c domain.Contact) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, val := range map[string]string{
			phoneKey(sessionID):   c.Phone,
			addressKey(sessionID): c.Address,
		} {
			if val == "" {
				pipe.Del(ctx, key)
				continue
			}
			pipe.Set(ctx, key, val, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save contact: %w", err)
	}
	return nil
}

// LoadContact reads both fields in one round-trip. Missing keys yield empty
// strings.
func (r *ContactRepository) LoadContact(ctx context.Context, sessionID string) (domain.Contact, error) {
	vals, err := r.client.MGet(ctx, phoneKey(sessionID), addressKey(sessionID)).Result()
	if err != nil {
		return domain.Contact{}, fmt.Errorf("redis load contact: %w", err)
	}
	var c domain.Contact
	c.Phone, _ = vals[0].(string)
	c.Address, _ = vals[1].(string)
	return c, nil
}
