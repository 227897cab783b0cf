package concurrent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessKeepsOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}
	out, err := Process(context.Background(), &ProcessorConfig{MaxWorkers: 3}, items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * n, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{25, 16, 9, 4, 1}, out)
}

func TestProcessRespectsWorkerLimit(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 20)

	_, err := Process(context.Background(), &ProcessorConfig{MaxWorkers: 2}, items, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestProcessReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Process(context.Background(), &ProcessorConfig{MaxWorkers: 1}, []string{"ok", "bad", "late"}, func(_ context.Context, s string) (string, error) {
		if s == "bad" {
			return "", boom
		}
		return s, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestProcessItemTimeout(t *testing.T) {
	cfg := &ProcessorConfig{MaxWorkers: 1, ItemTimeout: 10 * time.Millisecond}
	_, err := Process(context.Background(), cfg, []int{1}, func(ctx context.Context, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessOnComplete(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	cfg := &ProcessorConfig{MaxWorkers: 4, OnComplete: func(i int) {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	}}

	_, err := Process(context.Background(), cfg, []string{"a", "b", "c"}, func(_ context.Context, s string) (string, error) {
		return s, nil
	})

	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestProcessEmpty(t *testing.T) {
	out, err := Process(context.Background(), nil, []int{}, func(_ context.Context, n int) (int, error) { return n, nil })
	require.NoError(t, err)
	assert.Empty(t, out)
}
