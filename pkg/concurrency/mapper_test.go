package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWithConcurrency_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	results, err := MapWithConcurrency(context.Background(), items, 3,
		func(ctx context.Context, item int, index int) (int, error) {
			// Finish out of order to prove results land by index
			time.Sleep(time.Duration(8-item) * time.Millisecond)
			return item * 10, nil
		})

	require.NoError(t, err)
	require.Len(t, results, len(items))
	for i, item := range items {
		assert.Equal(t, item*10, results[i])
	}
}

func TestMapWithConcurrency_EmptyInput(t *testing.T) {
	results, err := MapWithConcurrency(context.Background(), []string{}, 4,
		func(ctx context.Context, item string, index int) (string, error) {
			return item, nil
		})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMapWithConcurrency_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	results, err := MapWithConcurrency(context.Background(), items, 4,
		func(ctx context.Context, item int, index int) (int, error) {
			if item == 5 {
				return 0, boom
			}
			return item, nil
		})

	require.ErrorIs(t, err, boom)
	assert.Nil(t, results)
}

func TestMapWithConcurrency_StopsClaimingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	var processed int64

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	_, err := MapWithConcurrency(context.Background(), items, 2,
		func(ctx context.Context, item int, index int) (int, error) {
			atomic.AddInt64(&processed, 1)
			if index == 0 {
				return 0, boom
			}
			time.Sleep(time.Millisecond)
			return item, nil
		})

	require.ErrorIs(t, err, boom)
	assert.Less(t, atomic.LoadInt64(&processed), int64(100), "workers should stop claiming items after a failure")
}

func TestMapWithConcurrency_ConcurrencyClamped(t *testing.T) {
	var active, maxActive int64

	items := make([]int, 10)
	_, err := MapWithConcurrency(context.Background(), items, 3,
		func(ctx context.Context, item int, index int) (int, error) {
			current := atomic.AddInt64(&active, 1)
			for {
				observed := atomic.LoadInt64(&maxActive)
				if current <= observed || atomic.CompareAndSwapInt64(&maxActive, observed, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return item, nil
		})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxActive), int64(3))
}
