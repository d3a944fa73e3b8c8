package inflight

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard is the advisory per-flow mutual exclusion for network submissions: a
// SetNX lock with a TTL safety net for crashed holders. A second submission
// while the lock is held is refused, not queued.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl}
}

func key(id uuid.UUID) string {
	return "inflight:" + id.String()
}

func (g *Guard) TryAcquire(ctx context.Context, id uuid.UUID) (bool, error) {
	return g.client.SetNX(ctx, key(id), 1, g.ttl).Result()
}

func (g *Guard) Release(ctx context.Context, id uuid.UUID) error {
	return g.client.Del(ctx, key(id)).Err()
}
