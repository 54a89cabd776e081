package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
)

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func lockKey(sessionID string) string {
	return "portal:checkout:" + sessionID + ":lock"
}

// SubmissionGuard is a per-session SET NX lock.
type SubmissionGuard struct {
	client *redis.Client
}

// NewSubmissionGuard creates a Redis-backed submission guard.
func NewSubmissionGuard(client *redis.Client) *SubmissionGuard {
	return &SubmissionGuard{client: client}
}

// Acquire implements repository.SubmissionGuard.
func (g *SubmissionGuard) Acquire(ctx context.Context, sessionID string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, lockKey(sessionID), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, repository.ErrLockHeld
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, g.client, []string{lockKey(sessionID)}, token).Err(); err != nil {
			return fmt.Errorf("redis release checkout lock: %w", err)
		}
		return nil
	}
	return release, nil
}
