package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
)

// MapWithConcurrency runs fn over items with at most concurrency invocations
// in flight and returns results such that results[i] corresponds to items[i]
// regardless of completion order. A shared cursor hands the next unclaimed
// index to a fixed pool of workers.
//
// There is no partial-result mode: if any invocation fails, in-flight sibling
// invocations are allowed to finish, no further items are claimed, and the
// first error is returned.
func MapWithConcurrency[T, R any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, item T, index int) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	workers := concurrency
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))
	cursor := int64(-1)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		failed   atomic.Bool
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if failed.Load() {
					return
				}
				index := int(atomic.AddInt64(&cursor, 1))
				if index >= len(items) {
					return
				}

				result, err := fn(ctx, items[index], index)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					failed.Store(true)
					return
				}
				results[index] = result
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
