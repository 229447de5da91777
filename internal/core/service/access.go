package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

// AccessSource is the subset of the credential store the gate reads.
type AccessSource interface {
	ListIdentityIDs(ctx context.Context) ([]string, error)
	ListModerators(ctx context.Context) ([]domain.Moderator, error)
	ListBlocked(ctx context.Context) ([]domain.BlockedUser, error)
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)
	GetModerator(ctx context.Context, id string) (*domain.Moderator, error)
	IsBlocked(ctx context.Context, id string) (bool, error)
}

// AccessGate answers capability questions from an in-memory snapshot of user,
// moderator and blocked ids. The snapshot is rebuilt after every mutation. If
// a rebuild fails the gate falls back to per-id reads until the next
// successful reload, and a failed read denies.
type AccessGate struct {
	src AccessSource
	log zerolog.Logger

	// reloadMu spans the reads and the swap so an older snapshot can never
	// replace a newer one.
	reloadMu sync.Mutex

	mu      sync.RWMutex
	users   map[string]struct{}
	mods    map[string]struct{}
	blocked map[string]struct{}
	stale   bool
}

// NewAccessGate returns a gate that is stale until the first Reload.
func NewAccessGate(src AccessSource, log zerolog.Logger) *AccessGate {
	return &AccessGate{src: src, log: log, stale: true}
}

// Reload rebuilds the snapshot from the store. Concurrent reloads run one at
// a time.
func (g *AccessGate) Reload(ctx context.Context) error {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	ids, err := g.src.ListIdentityIDs(ctx)
	if err != nil {
		return g.markStale(fmt.Errorf("reload access: identities: %w", err))
	}
	mods, err := g.src.ListModerators(ctx)
	if err != nil {
		return g.markStale(fmt.Errorf("reload access: moderators: %w", err))
	}
	blocked, err := g.src.ListBlocked(ctx)
	if err != nil {
		return g.markStale(fmt.Errorf("reload access: blocklist: %w", err))
	}

	users := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		users[id] = struct{}{}
	}
	modSet := make(map[string]struct{}, len(mods))
	for _, m := range mods {
		modSet[m.ID] = struct{}{}
	}
	blockSet := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		blockSet[b.ID] = struct{}{}
	}

	g.mu.Lock()
	g.users, g.mods, g.blocked, g.stale = users, modSet, blockSet, false
	g.mu.Unlock()

	metrics.GateReloadsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (g *AccessGate) markStale(err error) error {
	g.mu.Lock()
	g.stale = true
	g.mu.Unlock()
	metrics.GateReloadsTotal.WithLabelValues("error").Inc()
	g.log.Error().Err(err).Msg("access snapshot is stale, falling back to store reads")
	return err
}

// Refresh reloads and only logs on failure. Mutating flows call it after a
// successful commit.
func (g *AccessGate) Refresh(ctx context.Context) {
	_ = g.Reload(ctx)
}

// Standing resolves the principal's position at the gate.
func (g *AccessGate) Standing(ctx context.Context, id string) domain.Standing {
	g.mu.RLock()
	if !g.stale {
		_, user := g.users[id]
		_, mod := g.mods[id]
		_, blocked := g.blocked[id]
		g.mu.RUnlock()
		return domain.Standing{User: user, Moderator: mod, Blocked: blocked}
	}
	g.mu.RUnlock()
	return g.readStanding(ctx, id)
}

func (g *AccessGate) readStanding(ctx context.Context, id string) domain.Standing {
	blocked, err := g.src.IsBlocked(ctx, id)
	if err != nil {
		g.log.Warn().Err(err).Str("principal", id).Msg("blocklist read failed, denying")
		return domain.Standing{Blocked: true}
	}
	var st domain.Standing
	st.Blocked = blocked
	if _, err := g.src.GetIdentity(ctx, id); err == nil {
		st.User = true
	}
	if _, err := g.src.GetModerator(ctx, id); err == nil {
		st.Moderator = true
	}
	return st
}

// Capability returns the highest tier the principal holds.
func (g *AccessGate) Capability(ctx context.Context, id string) domain.Capability {
	return g.Standing(ctx, id).Capability()
}

// Allows reports whether the principal meets the required tier. Blocked
// principals are never allowed, even for CapabilityNone.
func (g *AccessGate) Allows(ctx context.Context, id string, required domain.Capability) bool {
	st := g.Standing(ctx, id)
	if st.Blocked {
		return false
	}
	return st.Capability().Satisfies(required)
}
