package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen map[string][]int
	done chan struct{}
	want int
}

func newRecordingHandler(want int) *recordingHandler {
	return &recordingHandler{seen: make(map[string][]int), done: make(chan struct{}), want: want}
}

func (h *recordingHandler) Handle(_ context.Context, ev ports.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[ev.Principal.ID] = append(h.seen[ev.Principal.ID], ev.UpdateID)
	total := 0
	for _, ids := range h.seen {
		total += len(ids)
	}
	if total == h.want {
		close(h.done)
	}
	return nil
}

func (h *recordingHandler) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}
}

type stubDedup struct {
	mu   sync.Mutex
	seen map[int]bool
	err  error
}

func (s *stubDedup) Claim(_ context.Context, id int) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[id] {
		return false, nil
	}
	s.seen[id] = true
	return true, nil
}

func event(principal string, updateID int) ports.Event {
	return ports.Event{UpdateID: updateID, Principal: domain.Principal{ID: principal}, Kind: ports.EventText}
}

func TestDispatcher_PreservesPerPrincipalOrder(t *testing.T) {
	h := newRecordingHandler(60)
	d := NewDispatcher(4, h, zerolog.Nop(), WithRateLimit(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	for i := 1; i <= 20; i++ {
		for _, p := range []string{"100", "200", "300"} {
			d.Enqueue(ctx, event(p, i))
		}
	}
	h.wait(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	for p, ids := range h.seen {
		for i, id := range ids {
			if id != i+1 {
				t.Fatalf("principal %s: events out of order: %v", p, ids)
			}
		}
	}
}

func TestDispatcher_SkipsDuplicates(t *testing.T) {
	h := newRecordingHandler(2)
	d := NewDispatcher(2, h, zerolog.Nop(), WithDeduper(&stubDedup{seen: map[int]bool{}}), WithRateLimit(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Enqueue(ctx, event("100", 1))
	d.Enqueue(ctx, event("100", 1))
	d.Enqueue(ctx, event("100", 2))
	h.wait(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	if got := h.seen["100"]; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v, want [1 2]", got)
	}
}

func TestDispatcher_DedupFailureStillHandles(t *testing.T) {
	h := newRecordingHandler(1)
	d := NewDispatcher(1, h, zerolog.Nop(), WithDeduper(&stubDedup{err: errors.New("redis down")}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Enqueue(ctx, event("100", 7))
	h.wait(t)
}

func TestDispatcher_RateLimitsPerPrincipal(t *testing.T) {
	d := NewDispatcher(1, newRecordingHandler(-1), zerolog.Nop(), WithRateLimit(0.001, 2))

	if !d.allow("1") || !d.allow("1") {
		t.Fatal("burst must be allowed")
	}
	if d.allow("1") {
		t.Fatal("third event inside the burst window must be dropped")
	}
	if !d.allow("2") {
		t.Fatal("limits are per principal")
	}
}

func TestDispatcher_PruneDropsIdleLimiters(t *testing.T) {
	d := NewDispatcher(1, newRecordingHandler(-1), zerolog.Nop(), WithRateLimit(0.001, 1))
	now := time.Now()
	d.now = func() time.Time { return now }

	d.allow("1")
	now = now.Add(defaultLimiterIdle / 2)
	d.allow("2")
	if d.allow("2") {
		t.Fatal("second event must exhaust the bucket")
	}

	now = now.Add(defaultLimiterIdle/2 + time.Second)
	if got := d.Prune(); got != 1 {
		t.Fatalf("pruned %d limiters, want 1", got)
	}
	if _, ok := d.limiters["1"]; ok {
		t.Fatal("idle limiter must be dropped")
	}
	if _, ok := d.limiters["2"]; !ok {
		t.Fatal("recently used limiter must be kept")
	}
	if d.allow("2") {
		t.Fatal("kept limiter must keep its state")
	}
}

func TestDispatcher_ShardIndexStable(t *testing.T) {
	d := NewDispatcher(8, newRecordingHandler(-1), zerolog.Nop())
	first := d.shardIndex("424242")
	for range 10 {
		if got := d.shardIndex("424242"); got != first {
			t.Fatalf("shard changed: %d then %d", first, got)
		}
	}
	if first < 0 || first >= 8 {
		t.Fatalf("shard %d out of range", first)
	}
}
