package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 24 * time.Hour

// DedupChecker claims chat update ids so a redelivered update is handled
// once. Key format: fleetbot:update:<update_id>
type DedupChecker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
func NewDedupChecker(client *redis.Client) *DedupChecker {
	return &DedupChecker{client: client, ttl: dedupTTL}
}

// Claim marks updateID as seen. It reports false when another delivery
// already claimed it.
func (d *DedupChecker) Claim(ctx context.Context, updateID int) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(updateID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

func (d *DedupChecker) key(updateID int) string {
	return fmt.Sprintf("fleetbot:update:%d", updateID)
}
