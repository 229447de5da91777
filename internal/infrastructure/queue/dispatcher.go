// Package queue fans inbound chat events out to sharded workers.
package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256

	// defaultRate and defaultBurst bound how fast one principal may drive
	// the bot. Events over the limit are dropped.
	defaultRate  = rate.Limit(2)
	defaultBurst = 10

	// defaultLimiterIdle is how long a principal's bucket survives without
	// events before Prune drops it.
	defaultLimiterIdle = 10 * time.Minute
)

type limiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// Deduper claims update ids so a redelivered update is handled once.
type Deduper interface {
	Claim(ctx context.Context, updateID int) (bool, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeduper skips updates whose id was already claimed.
func WithDeduper(d Deduper) Option {
	return func(disp *Dispatcher) { disp.dedup = d }
}

// WithRateLimit overrides the per-principal limit. A zero limit disables it.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(disp *Dispatcher) {
		disp.limit = limit
		disp.burst = burst
	}
}

// Dispatcher routes chat events to a fixed set of workers using consistent
// hashing on the principal id, so one principal's events are handled in
// arrival order and never concurrently.
type Dispatcher struct {
	workers []chan ports.Event
	handler ports.EventHandler
	dedup   Deduper
	log     zerolog.Logger

	limit       rate.Limit
	burst       int
	limiterIdle time.Duration
	mu          sync.Mutex
	limiters    map[string]*limiter
	now         func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, handler ports.EventHandler, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.Event, numWorkers),
		handler:  handler,
		log:      log,
		limit:       defaultRate,
		burst:       defaultBurst,
		limiterIdle: defaultLimiterIdle,
		limiters:    make(map[string]*limiter),
		now:         time.Now,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Event, channelBuffer)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runWorker(ctx, i, ch)
		}()
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue sends an event to the worker responsible for its principal.
// Duplicate and rate-limited events are dropped here. The call blocks when
// the worker's buffer is full, or returns when ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, event ports.Event) {
	metrics.UpdatesTotal.WithLabelValues(kindLabel(event.Kind)).Inc()

	if d.dedup != nil && event.UpdateID != 0 {
		fresh, err := d.dedup.Claim(ctx, event.UpdateID)
		switch {
		case err != nil:
			// Handle it anyway; a lost dedup check is better than a lost update.
			d.log.Warn().Err(err).Int("update_id", event.UpdateID).Msg("dedup check failed")
		case !fresh:
			metrics.UpdatesDedupTotal.WithLabelValues("hit").Inc()
			d.log.Debug().Int("update_id", event.UpdateID).Msg("duplicate update skipped")
			return
		default:
			metrics.UpdatesDedupTotal.WithLabelValues("miss").Inc()
		}
	}

	if !d.allow(event.Principal.ID) {
		d.log.Warn().Str("principal", event.Principal.ID).Msg("update rate limited")
		return
	}

	idx := d.shardIndex(event.Principal.ID)
	select {
	case d.workers[idx] <- event:
		metrics.UpdatesQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	case <-ctx.Done():
	}
}

// allow consults the principal's token bucket.
func (d *Dispatcher) allow(principal string) bool {
	if d.limit == 0 {
		return true
	}
	d.mu.Lock()
	now := d.now()
	l, ok := d.limiters[principal]
	if !ok {
		l = &limiter{Limiter: rate.NewLimiter(d.limit, d.burst)}
		d.limiters[principal] = l
	}
	l.lastSeen = now
	d.mu.Unlock()
	return l.AllowN(now, 1)
}

// Prune drops the buckets of principals idle for longer than the limiter
// idle period and returns how many were dropped. A dropped bucket comes back
// full, which an idle bucket already is.
func (d *Dispatcher) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	n := 0
	for id, l := range d.limiters {
		if now.Sub(l.lastSeen) > d.limiterIdle {
			delete(d.limiters, id)
			n++
		}
	}
	return n
}

// shardIndex maps a principal id deterministically to a worker index.
func (d *Dispatcher) shardIndex(principal string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principal))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Event) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			metrics.UpdatesQueueDepth.WithLabelValues(label).Set(float64(len(ch)))

			start := time.Now()
			outcome := "ok"
			if err := d.handler.Handle(ctx, event); err != nil {
				outcome = "error"
				d.log.Error().Err(err).
					Str("principal", event.Principal.ID).
					Int("update_id", event.UpdateID).
					Int("worker_id", id).
					Msg("update handling failed")
			}
			metrics.UpdateProcessingDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		}
	}
}

func kindLabel(k ports.EventKind) string {
	switch k {
	case ports.EventCommand:
		return "command"
	case ports.EventCallback:
		return "callback"
	default:
		return "text"
	}
}
