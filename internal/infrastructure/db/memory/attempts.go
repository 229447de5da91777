// Package memory holds process-local implementations of core ports.
package memory

import (
	"context"
	"sync"
	"time"
)

// AttemptCounter counts failures in process memory. With a positive window a
// count older than the window starts over; with zero it never decays.
type AttemptCounter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]attempt
	now     func() time.Time
}

type attempt struct {
	count int
	first time.Time
}

// NewAttemptCounter returns an empty counter.
func NewAttemptCounter(window time.Duration) *AttemptCounter {
	return &AttemptCounter{window: window, entries: make(map[string]attempt), now: time.Now}
}

func (c *AttemptCounter) Increment(_ context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e := c.entries[id]
	if c.window > 0 && e.count > 0 && now.Sub(e.first) > c.window {
		e = attempt{}
	}
	if e.count == 0 {
		e.first = now
	}
	e.count++
	c.entries[id] = e
	return e.count, nil
}

func (c *AttemptCounter) Reset(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// Prune drops counts whose window has passed and returns how many were
// dropped. Without a window nothing decays, so nothing is dropped.
func (c *AttemptCounter) Prune() int {
	if c.window <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for id, e := range c.entries {
		if now.Sub(e.first) > c.window {
			delete(c.entries, id)
			n++
		}
	}
	return n
}
