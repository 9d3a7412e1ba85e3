// Package queue provides the bounded FIFO used between pipeline stages.
package queue

import (
	"context"
)

// DefaultCapacity is the depth of each inter-stage queue.
const DefaultCapacity = 8

// Bounded is a single-producer/single-consumer FIFO with a fixed capacity.
// Producers never block: TrySend reports a drop instead. Consumers block in
// Recv until an item arrives or the context ends.
type Bounded[T any] struct {
	ch chan T
}

// New creates a queue. A non-positive capacity falls back to
// DefaultCapacity.
func New[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded[T]{ch: make(chan T, capacity)}
}

// TrySend enqueues v if there is room and reports whether it did.
func (q *Bounded[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Recv blocks for the next item in producer order.
func (q *Bounded[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int { return cap(q.ch) }
