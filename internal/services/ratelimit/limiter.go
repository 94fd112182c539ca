// Package ratelimit provides the sliding-window request throttle and the
// exponential-backoff policy applied to rate-limited source API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	// window is the trailing interval the per-minute quota is defined
	// over.
	window = 60 * time.Second
	// margin pads the computed sleep so a wake-up just inside the window
	// boundary does not bust the quota.
	margin = 250 * time.Millisecond
)

// Limiter enforces a requests-per-minute ceiling over a trailing 60-second
// window. Enforcement is proactive: Acquire sleeps before the request that
// would exceed the ceiling, rather than reacting to a 429.
//
// The limiter is the only shared mutable state in the engine. All methods
// are safe for concurrent use; the window check is serialized under one
// mutex so the invariant holds even with concurrent callers.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	stamps []time.Time // timestamps inside the window, oldest first

	// now and sleep are swapped out in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	logger arbor.ILogger
}

// NewLimiter creates a limiter with the given per-minute ceiling.
func NewLimiter(requestsPerMinute int, logger arbor.ILogger) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &Limiter{
		limit:  requestsPerMinute,
		stamps: make([]time.Time, 0, requestsPerMinute),
		now:    time.Now,
		sleep:  sleepCtx,
		logger: logger,
	}
}

// Acquire blocks until issuing one request would not exceed the ceiling,
// then records the request time. Returns early only on context
// cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := l.now()
		l.prune(now)

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			return nil
		}

		// Window is full: sleep until the oldest stamp ages out, then
		// re-evaluate. The sleep may be inexact, so the loop never
		// assumes it was.
		wait := window - now.Sub(l.stamps[0]) + margin
		l.logger.Debug().
			Int("in_window", len(l.stamps)).
			Dur("wait", wait).
			Msg("Rate limit window full, waiting")

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow returns the number of requests currently inside the trailing
// window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// prune drops timestamps older than the window. Caller holds the mutex.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
