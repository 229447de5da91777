package service

import (
	"context"
	"sync"
	"time"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

// DefaultIdleTimeout is how long a dialog may wait for input.
const DefaultIdleTimeout = 10 * time.Minute

// MessageRef identifies a delivered chat message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Sessions holds at most one pending dialog per principal, plus the
// ephemeral messages that must be deleted once that dialog ends. Dialogs idle
// for longer than the timeout are discarded.
type Sessions struct {
	mu        sync.Mutex
	dialogs   map[string]domain.Dialog
	ephemeral map[string][]MessageRef
	idle      time.Duration
	now       func() time.Time
}

// NewSessions returns an empty session store. A non-positive idle timeout
// disables expiry.
func NewSessions(idle time.Duration) *Sessions {
	return &Sessions{
		dialogs:   make(map[string]domain.Dialog),
		ephemeral: make(map[string][]MessageRef),
		idle:      idle,
		now:       time.Now,
	}
}

func (s *Sessions) expired(d domain.Dialog) bool {
	return s.idle > 0 && s.now().Sub(d.UpdatedAt) > s.idle
}

// Get returns the principal's pending dialog. An expired dialog is removed
// and reported as absent.
func (s *Sessions) Get(id string) (domain.Dialog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogs[id]
	if !ok {
		return domain.Dialog{}, false
	}
	if s.expired(d) {
		delete(s.dialogs, id)
		metrics.DialogsExpiredTotal.Inc()
		return domain.Dialog{}, false
	}
	return d, true
}

// Put stores d as the principal's only pending dialog, replacing any other.
func (s *Sessions) Put(id string, d domain.Dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.UpdatedAt = s.now()
	s.dialogs[id] = d
}

// Clear drops the principal's pending dialog and reports whether one existed.
func (s *Sessions) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dialogs[id]
	delete(s.dialogs, id)
	return ok
}

// Track remembers an ephemeral message for later deletion.
func (s *Sessions) Track(id string, ref MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ephemeral[id] = append(s.ephemeral[id], ref)
}

// TakeEphemeral returns and forgets the principal's tracked messages.
func (s *Sessions) TakeEphemeral(id string) []MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := s.ephemeral[id]
	delete(s.ephemeral, id)
	return refs
}

// Sweep removes every expired dialog and returns the ids of principals left
// with no dialog but still holding tracked ephemeral messages.
func (s *Sessions) Sweep() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.dialogs {
		if s.expired(d) {
			delete(s.dialogs, id)
			metrics.DialogsExpiredTotal.Inc()
		}
	}
	var ids []string
	for id := range s.ephemeral {
		if _, pending := s.dialogs[id]; !pending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run sweeps on every tick until ctx is done and hands each expired
// principal to onExpire.
func (s *Sessions) Run(ctx context.Context, interval time.Duration, onExpire func(id string)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, id := range s.Sweep() {
				onExpire(id)
			}
		}
	}
}
