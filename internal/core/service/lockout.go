package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

// DefaultMaxAttempts is the number of failed enrollment codes that blocks a
// principal.
const DefaultMaxAttempts = 5

const lockoutReason = "enrollment code attempts exhausted"

// LockoutTracker counts failed enrollment attempts and writes the principal
// to the blocklist when the limit is reached.
type LockoutTracker struct {
	counter   ports.AttemptCounter
	blocklist ports.Blocklist
	gate      *AccessGate
	max       int
	now       func() time.Time
	log       zerolog.Logger
}

// NewLockoutTracker returns a tracker that blocks on the max-th failure.
func NewLockoutTracker(counter ports.AttemptCounter, blocklist ports.Blocklist, gate *AccessGate, max int, log zerolog.Logger) *LockoutTracker {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return &LockoutTracker{
		counter:   counter,
		blocklist: blocklist,
		gate:      gate,
		max:       max,
		now:       time.Now,
		log:       log,
	}
}

// IsBlocked reports whether the principal is on the blocklist.
func (t *LockoutTracker) IsBlocked(ctx context.Context, id string) bool {
	return t.gate.Standing(ctx, id).Blocked
}

// RecordFailure counts one failure. When the count reaches the limit the
// principal is blocked and locked is true.
func (t *LockoutTracker) RecordFailure(ctx context.Context, p domain.Principal) (attempts int, locked bool, err error) {
	attempts, err = t.counter.Increment(ctx, p.ID)
	if err != nil {
		return 0, false, fmt.Errorf("record failure: %w", err)
	}
	if attempts < t.max {
		t.log.Info().Str("principal", p.ID).Int("attempts", attempts).Msg("enrollment attempt rejected")
		return attempts, false, nil
	}

	entry := domain.BlockedUser{
		ID:        p.ID,
		Name:      p.Name,
		Reason:    lockoutReason,
		BlockedAt: t.now().UTC(),
	}
	if err := t.blocklist.Block(ctx, entry); err != nil {
		return attempts, false, fmt.Errorf("record failure: block: %w", err)
	}
	t.gate.Refresh(ctx)
	metrics.LockoutsTotal.Inc()
	t.log.Warn().Str("principal", p.ID).Int("attempts", attempts).Msg("principal blocked")
	return attempts, true, nil
}

// Reset clears the failure count. Called after a successful redemption.
func (t *LockoutTracker) Reset(ctx context.Context, id string) {
	if err := t.counter.Reset(ctx, id); err != nil {
		t.log.Warn().Err(err).Str("principal", id).Msg("failed to reset attempt counter")
	}
}

// Unblock removes the principal from the blocklist and clears its counter so
// it starts again from zero.
func (t *LockoutTracker) Unblock(ctx context.Context, id string) (*domain.BlockedUser, error) {
	entry, err := t.blocklist.Unblock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("unblock: %w", err)
	}
	t.Reset(ctx, id)
	t.gate.Refresh(ctx)
	return entry, nil
}
