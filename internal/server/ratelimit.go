package server

import (
	"sync"
	"time"

	"github.com/watzon/authhook/internal/config"
	"github.com/watzon/authhook/internal/metrics"
	"github.com/watzon/authhook/internal/webhooks"
)

// RateLimiter implements a fixed-window counter per client key. A window
// opens on a key's first request and admits rule.Max requests until
// rule.Window has elapsed, so a client can send up to 2×Max requests
// across a window boundary.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	rule    config.RateLimitRule
	now     func() time.Time
	cleanup *time.Ticker
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stop    sync.Once
}

type window struct {
	mu    sync.Mutex
	count int
	start time.Time
	dead  bool
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

// NewRateLimiter creates a rate limiter with the given rule and starts its
// background sweep of idle windows. Call Stop to end the sweep.
func NewRateLimiter(rule config.RateLimitRule, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		rule:    rule,
		now:     time.Now,
		cleanup: time.NewTicker(rule.Window * 2),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}

	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		rl.cleanupLoop()
	}()

	return rl
}

// Allow reports whether a request from key is admitted.
func (rl *RateLimiter) Allow(key string) bool {
	_, ok := rl.Take(key)
	return ok
}

// Take counts a request from key against its window and reports the
// resulting quota.
func (rl *RateLimiter) Take(key string) (webhooks.Quota, bool) {
	for {
		if quota, ok, live := rl.take(rl.window(key)); live {
			return quota, ok
		}
	}
}

func (rl *RateLimiter) window(key string) *window {
	rl.mu.RLock()
	w, exists := rl.windows[key]
	rl.mu.RUnlock()
	if exists {
		return w
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	// Double-check after acquiring write lock
	if w, exists = rl.windows[key]; !exists {
		w = &window{}
		rl.windows[key] = w
	}
	return w
}

// take counts against w. live is false when w was swept between lookup and
// lock, in which case nothing was counted and the caller looks the key up
// again.
func (rl *RateLimiter) take(w *window) (quota webhooks.Quota, ok, live bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead {
		return webhooks.Quota{}, false, false
	}

	now := rl.now()
	if w.count == 0 || now.Sub(w.start) >= rl.rule.Window {
		w.start = now
		w.count = 0
	}
	w.count++

	quota = webhooks.Quota{
		Limit:     rl.rule.Max,
		Remaining: max(rl.rule.Max-w.count, 0),
		Reset:     w.start.Add(rl.rule.Window),
	}

	if w.count > rl.rule.Max {
		// Rejected requests don't extend the count past the limit.
		w.count = rl.rule.Max + 1
		metrics.RecordRateLimited()
		return quota, false, true
	}
	return quota, true, true
}

// Len returns the number of tracked client keys.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.windows)
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.sweep()
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops windows that have been idle for two window lengths.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	now := rl.now()
	for key, w := range rl.windows {
		w.mu.Lock()
		if now.Sub(w.start) > rl.rule.Window*2 {
			w.dead = true
			delete(rl.windows, key)
		}
		w.mu.Unlock()
	}
	n := len(rl.windows)
	rl.mu.Unlock()

	metrics.SetRateLimitKeys(n)
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() {
		close(rl.stopCh)
		rl.cleanup.Stop()
		rl.wg.Wait()
	})
}
