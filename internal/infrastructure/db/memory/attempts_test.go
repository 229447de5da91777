package memory

import (
	"context"
	"testing"
	"time"
)

func TestAttemptCounter_Unbounded(t *testing.T) {
	c := NewAttemptCounter(0)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		now = now.Add(24 * time.Hour)
		got, _ := c.Increment(ctx, "1")
		if got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
	_ = c.Reset(ctx, "1")
	if got, _ := c.Increment(ctx, "1"); got != 1 {
		t.Fatalf("reset must restart at 1, got %d", got)
	}
}

func TestAttemptCounter_Window(t *testing.T) {
	c := NewAttemptCounter(time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = c.Increment(ctx, "1")
	now = now.Add(30 * time.Minute)
	if got, _ := c.Increment(ctx, "1"); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	now = now.Add(time.Hour)
	if got, _ := c.Increment(ctx, "1"); got != 1 {
		t.Fatalf("count must decay after the window, got %d", got)
	}
	if got, _ := c.Increment(ctx, "2"); got != 1 {
		t.Fatalf("principals are counted separately, got %d", got)
	}
}

func TestAttemptCounter_Prune(t *testing.T) {
	c := NewAttemptCounter(time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = c.Increment(ctx, "old")
	now = now.Add(45 * time.Minute)
	_, _ = c.Increment(ctx, "fresh")
	now = now.Add(30 * time.Minute)

	if got := c.Prune(); got != 1 {
		t.Fatalf("pruned %d, want 1", got)
	}
	if _, ok := c.entries["old"]; ok {
		t.Fatal("expired count must be dropped")
	}
	if got, _ := c.Increment(ctx, "fresh"); got != 2 {
		t.Fatalf("live count must survive pruning, got %d", got)
	}

	unbounded := NewAttemptCounter(0)
	_, _ = unbounded.Increment(ctx, "1")
	if got := unbounded.Prune(); got != 0 || len(unbounded.entries) != 1 {
		t.Fatalf("counts without a window must be kept, pruned %d", got)
	}
}
