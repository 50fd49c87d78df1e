package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnqueueDequeue_Success tests enqueueing and dequeueing.
func TestEnqueueDequeue_Success(t *testing.T) {
	t.Parallel()

	q := New[string]()
	assert.False(t, q.HasRemainingItems())

	q.Enqueue("a", "b")
	assert.True(t, q.HasRemainingItems())

	item, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", item)

	item, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "b", item)

	_, ok = q.Dequeue()
	assert.False(t, ok)

	assert.Equal(t, 2, q.Stats().InProgress)
}

// TestProcess_Success tests concurrent processing with skips and requeues.
func TestProcess_Success(t *testing.T) {
	t.Parallel()

	q := New[int]()

	const itemCount = 60
	for i := 1; i <= itemCount; i++ {
		q.Enqueue(i)
	}

	var inFlight atomic.Int32
	var peak atomic.Int32
	var mu sync.Mutex
	attempts := map[int]int{}

	processFunc := func(_ context.Context, item int) Decision {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		attempts[item]++
		tries := attempts[item]
		mu.Unlock()

		switch {
		case item%7 == 0 && tries < 3:
			return Requeue
		case item%5 == 0:
			return Skipped
		default:
			return Success
		}
	}

	require.NoError(t, q.Process(t.Context(), 4, processFunc))

	stats := q.Stats()
	assert.Equal(t, itemCount, stats.Total)
	assert.Equal(t, 12, stats.Skipped)
	assert.Equal(t, itemCount-12, stats.Success)
	assert.Equal(t, 0, stats.InProgress)
	assert.Len(t, q.Successful(), itemCount-12)
	assert.Len(t, q.Skipped(), 12)
	assert.Equal(t, 3, attempts[7])
	assert.Equal(t, 3, attempts[35])
	assert.LessOrEqual(t, int(peak.Load()), 4)
	assert.False(t, q.HasRemainingItems())
}

// TestProcess_Fail_CtxCancel tests cancellation during processing.
func TestProcess_Fail_CtxCancel(t *testing.T) {
	t.Parallel()

	q := New[int]()
	for i := range 50 {
		q.Enqueue(i)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	err := q.Process(ctx, 2, func(context.Context, int) Decision {
		time.Sleep(10 * time.Millisecond)

		return Success
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, q.HasRemainingItems())
}
