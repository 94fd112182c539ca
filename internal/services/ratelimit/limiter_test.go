package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.current = c.current.Add(d)
	return nil
}

func newTestLimiter(limit int, clock *fakeClock) *Limiter {
	l := NewLimiter(limit, arbor.NewLogger())
	l.now = clock.now
	l.sleep = clock.sleep
	return l
}

func TestLimiterAllowsUpToCeiling(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(5, clock)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Empty(t, clock.slept, "first %d acquires must not sleep", 5)
	assert.Equal(t, 5, l.InWindow())
}

func TestLimiterSleepsWhenWindowFull(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(3, clock)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, clock.slept, 1)
	assert.Equal(t, window+margin, clock.slept[0])
	assert.LessOrEqual(t, l.InWindow(), 3)
}

func TestLimiterNeverExceedsCeilingInAnyTrailingWindow(t *testing.T) {
	clock := newFakeClock()
	limit := 10
	l := newTestLimiter(limit, clock)

	// Issue far more requests than one window holds, with a small fixed gap
	// between them, and record when each one was granted.
	var granted []time.Time
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background()))
		granted = append(granted, clock.current)
		clock.current = clock.current.Add(500 * time.Millisecond)
	}

	// Any request and the one `limit` positions later must be at least one
	// window apart, otherwise some trailing window held limit+1 requests.
	for i := 0; i+limit < len(granted); i++ {
		gap := granted[i+limit].Sub(granted[i])
		assert.GreaterOrEqual(t, gap, window,
			"requests %d and %d are %s apart, window ceiling violated", i, i+limit, gap)
	}
}

func TestLimiterAcquireHonorsContextCancellation(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(1, clock)
	l.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	require.NoError(t, l.Acquire(context.Background()))
	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, l.InWindow(), "cancelled acquire must not record a request")
}

func TestLimiterPrunesAgedStamps(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(2, clock)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 2, l.InWindow())

	clock.current = clock.current.Add(window + time.Second)
	assert.Equal(t, 0, l.InWindow())

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.slept)
}
