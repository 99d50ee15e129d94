package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowRateLimiter_UnderLimit(t *testing.T) {
	limiter := NewSlidingWindowRateLimiter(3, time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}

	assert.Less(t, time.Since(start), 100*time.Millisecond, "acquires under the limit should not block")
}

func TestSlidingWindowRateLimiter_BlocksOverLimit(t *testing.T) {
	interval := 200 * time.Millisecond
	limiter := NewSlidingWindowRateLimiter(2, interval)

	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, interval/2, "third acquire should wait for the window to slide")
}

func TestSlidingWindowRateLimiter_EvictsOldTimestamps(t *testing.T) {
	interval := 50 * time.Millisecond
	limiter := NewSlidingWindowRateLimiter(1, interval)

	require.NoError(t, limiter.Acquire(context.Background()))
	time.Sleep(interval + 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Less(t, time.Since(start), interval, "expired timestamps should free the window")
}

func TestSlidingWindowRateLimiter_ContextCancelled(t *testing.T) {
	limiter := NewSlidingWindowRateLimiter(1, time.Minute)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSlidingWindowRateLimiter_ClampsInvalidArgs(t *testing.T) {
	limiter := NewSlidingWindowRateLimiter(0, 0)

	// Must still admit a caller instead of deadlocking
	require.NoError(t, limiter.Acquire(context.Background()))
}
