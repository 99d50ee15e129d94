package concurrency

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowRateLimiter throttles callers to at most limit acquisitions
// within any trailing interval. Fairness under contention is not strict
// FIFO; waiters re-check the window when the oldest slot expires.
type SlidingWindowRateLimiter struct {
	mu         sync.Mutex
	limit      int
	interval   time.Duration
	timestamps []time.Time
}

// NewSlidingWindowRateLimiter creates a limiter allowing limit acquisitions
// per rolling interval.
func NewSlidingWindowRateLimiter(limit int, interval time.Duration) *SlidingWindowRateLimiter {
	if limit < 1 {
		limit = 1
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return &SlidingWindowRateLimiter{
		limit:    limit,
		interval: interval,
	}
}

// Acquire blocks until a slot is free in the trailing window, records the
// acquisition and returns. It only fails when ctx is cancelled.
func (l *SlidingWindowRateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		for len(l.timestamps) > 0 && now.Sub(l.timestamps[0]) >= l.interval {
			l.timestamps = l.timestamps[1:]
		}

		if len(l.timestamps) < l.limit {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}

		// Wait until the oldest recorded acquisition leaves the window.
		wait := l.interval - now.Sub(l.timestamps[0])
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
