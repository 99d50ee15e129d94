package serviceimpl

import (
	"context"
	"time"

	"findme-api/infrastructure/facepp"
	"findme-api/pkg/concurrency"
	"findme-api/pkg/logger"
)

// retrier invokes recognition calls through the shared rate limiter and
// retries concurrency-limit rejections with a linearly growing delay. Every
// attempt, retries included, acquires a limiter slot first.
type retrier struct {
	limiter     *concurrency.SlidingWindowRateLimiter
	maxRetries  int
	retryDelay  time.Duration
	isRetryable func(error) bool
}

func newRetrier(limiter *concurrency.SlidingWindowRateLimiter, maxRetries int, retryDelay time.Duration) *retrier {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &retrier{
		limiter:     limiter,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		isRetryable: facepp.IsConcurrencyLimit,
	}
}

func (r *retrier) do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if err := r.limiter.Acquire(ctx); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.isRetryable(lastErr) {
			return lastErr
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.retryDelay * time.Duration(attempt)
		logger.Warn(logger.CategoryFace, "retry_backoff", "Recognition call hit the concurrency limit, backing off", map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
