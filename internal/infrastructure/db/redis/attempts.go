package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter keeps enrollment failure counts in Redis so they survive
// restarts and are shared between replicas. Key format:
// fleetbot:attempts:<principal_id>
type AttemptCounter struct {
	client *redis.Client
	window time.Duration
}

// NewAttemptCounter returns a counter whose keys expire window after the
// first failure. A zero window keeps counts until reset.
func NewAttemptCounter(client *redis.Client, window time.Duration) *AttemptCounter {
	return &AttemptCounter{client: client, window: window}
}

func (c *AttemptCounter) Increment(ctx context.Context, id string) (int, error) {
	key := c.key(id)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if c.window > 0 {
		pipe.ExpireNX(ctx, key, c.window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return int(incr.Val()), nil
}

func (c *AttemptCounter) Reset(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

func (c *AttemptCounter) key(id string) string {
	return "fleetbot:attempts:" + id
}
