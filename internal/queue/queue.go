// Package queue provides a FIFO work queue with success and skip accounting
// and bounded concurrent processing.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome a process function reports for an item.
type Decision int

const (
	// Skipped is returned when an item was not processed.
	Skipped Decision = iota
	// Success is returned when an item was processed.
	Success
	// Requeue is returned when an item needs another attempt.
	Requeue
)

// Queue holds items of any comparable type.
type Queue[T comparable] struct {
	sync.RWMutex
	started    time.Time
	finished   time.Time
	head       int
	items      []T
	success    []T
	skipped    []T
	inProgress map[T]struct{}
}

// New returns a pointer to a new, empty [Queue].
func New[T comparable]() *Queue[T] {
	return &Queue[T]{
		inProgress: make(map[T]struct{}),
	}
}

// Enqueue adds items to the queue.
func (q *Queue[T]) Enqueue(items ...T) {
	q.Lock()
	defer q.Unlock()

	q.finished = time.Time{}

	for _, item := range items {
		delete(q.inProgress, item)
		q.items = append(q.items, item)
	}
}

// Dequeue returns the next item and advances the queue head.
func (q *Queue[T]) Dequeue() (T, bool) { //nolint:ireturn
	q.Lock()
	defer q.Unlock()

	if q.head >= len(q.items) {
		var zeroVal T

		return zeroVal, false
	}

	if q.started.IsZero() {
		q.started = time.Now()
	}

	item := q.items[q.head]
	q.head++

	q.inProgress[item] = struct{}{}

	return item, true
}

// HasRemainingItems returns whether items wait to be dequeued.
func (q *Queue[T]) HasRemainingItems() bool {
	q.RLock()
	defer q.RUnlock()

	return q.head < len(q.items)
}

// Successful returns a copy of the successfully processed items.
func (q *Queue[T]) Successful() []T {
	q.RLock()
	defer q.RUnlock()

	result := make([]T, len(q.success))
	copy(result, q.success)

	return result
}

// Skipped returns a copy of the skipped items.
func (q *Queue[T]) Skipped() []T {
	q.RLock()
	defer q.RUnlock()

	result := make([]T, len(q.skipped))
	copy(result, q.skipped)

	return result
}

func (q *Queue[T]) settle(item T, d Decision) {
	q.Lock()
	defer q.Unlock()

	delete(q.inProgress, item)

	switch d {
	case Requeue:
		q.items = append(q.items, item)
	case Success:
		q.success = append(q.success, item)
	case Skipped:
		q.skipped = append(q.skipped, item)
	}

	if q.head >= len(q.items) && len(q.inProgress) == 0 {
		q.finished = time.Now()
	}
}

// Stats summarizes the queue.
type Stats struct {
	Total      int           `yaml:"total"`
	Success    int           `yaml:"success"`
	Skipped    int           `yaml:"skipped"`
	InProgress int           `yaml:"in_progress"`
	Elapsed    time.Duration `yaml:"elapsed"`
}

// Stats returns the current [Stats] of the queue.
func (q *Queue[T]) Stats() Stats {
	q.RLock()
	defer q.RUnlock()

	var elapsed time.Duration

	switch {
	case q.started.IsZero():
	case q.finished.IsZero():
		elapsed = time.Since(q.started)
	default:
		elapsed = q.finished.Sub(q.started)
	}

	return Stats{
		Total:      len(q.success) + len(q.skipped) + len(q.inProgress) + len(q.items) - q.head,
		Success:    len(q.success),
		Skipped:    len(q.skipped),
		InProgress: len(q.inProgress),
		Elapsed:    elapsed,
	}
}

// Process dequeues and processes items with at most maxWorkers calls of
// processFunc running at once. An error is only returned when ctx is
// cancelled; items still queued then stay queued.
//
// processFunc must be safe for concurrent use; the queue only guarantees
// its own thread-safety.
func (q *Queue[T]) Process(ctx context.Context, maxWorkers int, processFunc func(context.Context, T) Decision) error {
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, max(maxWorkers, 1))

	for {
		for {
			select {
			case <-ctx.Done():
				wg.Wait()

				return fmt.Errorf("(queue-process) %w", ctx.Err())
			case semaphore <- struct{}{}:
			}

			item, ok := q.Dequeue()
			if !ok {
				<-semaphore

				break
			}

			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				defer func() { <-semaphore }()

				q.settle(item, processFunc(ctx, item))
			}(item)
		}

		wg.Wait()

		if ctx.Err() != nil {
			return fmt.Errorf("(queue-process) %w", ctx.Err())
		}

		// Requeued items may arrive after all workers have left.
		if !q.HasRemainingItems() {
			return nil
		}
	}
}
