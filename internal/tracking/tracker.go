// Package tracking polls GPS fixes for a load on a task owned by its editing
// session. The task handle is explicit: Start spawns it, Stop cancels it and
// waits for it to exit.
package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"shipnorth/internal/metrics"
	"shipnorth/internal/model"
)

// Locator fetches the latest fix for a load.
type Locator interface {
	LoadLocation(ctx context.Context, loadID string) (model.Location, error)
}

// Sink receives every successful fix.
type Sink func(model.Location)

type Tracker struct {
	loadID  string
	locator Locator
	cache   *LocationCache
	sink    Sink
	timeout time.Duration

	opMu     sync.Mutex // serializes Start and Stop
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

func NewTracker(loadID string, locator Locator, cache *LocationCache, sink Sink) *Tracker {
	if cache == nil {
		cache = NewLocationCache()
	}
	return &Tracker{loadID: loadID, locator: locator, cache: cache, sink: sink, timeout: 10 * time.Second}
}

// Start begins polling every interval. Calling Start while running restarts
// the task with the new interval.
func (t *Tracker) Start(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("tracking: interval must be > 0")
	}
	t.opMu.Lock()
	defer t.opMu.Unlock()
	t.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel, t.done, t.interval = cancel, done, interval
	t.mu.Unlock()

	go t.run(ctx, interval, done)
	log.Printf("[TRACKING] started load=%s interval=%s", t.loadID, interval)
	return nil
}

// Stop cancels the polling task and waits for it. Safe to call when stopped.
func (t *Tracker) Stop() {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	t.stop()
}

func (t *Tracker) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("[TRACKING] stopped load=%s", t.loadID)
}

// Running reports whether the polling task is live.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Interval returns the polling interval of the live task, or 0 when stopped.
func (t *Tracker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return 0
	}
	return t.interval
}

// Latest returns the most recent fix, if any.
func (t *Tracker) Latest() (model.Location, bool) { return t.cache.Get(t.loadID) }

func (t *Tracker) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	t.pollOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

func (t *Tracker) pollOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	loc, err := t.locator.LoadLocation(pctx, t.loadID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.TrackingPolls.WithLabelValues("error").Inc()
		log.Printf("[TRACKING] poll load=%s err=%v", t.loadID, err)
		return
	}
	metrics.TrackingPolls.WithLabelValues("ok").Inc()
	if !t.cache.Upsert(loc) {
		return
	}
	if t.sink != nil {
		t.sink(loc)
	}
}
