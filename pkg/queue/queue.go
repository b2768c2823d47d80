// Package queue provides the bounded blocking FIFO that connects the
// stages of the request pipeline: the listener hands connections to the
// session workers through one instance, and session workers hand tasks to
// the file workers through another.
package queue

import (
	"errors"
	"sync"
)

// ErrShutdown is returned by Push and Pop once the queue has been shut
// down. Pop only fails after all remaining items have been drained.
var ErrShutdown = errors.New("queue: shutting down")

// ErrFull is returned by TryPush when the queue is at capacity.
var ErrFull = errors.New("queue: full")

// Bounded is a fixed-capacity FIFO safe for concurrent producers and
// consumers.
//
// Push blocks while the queue is full; Pop blocks while it is empty.
// Shutdown wakes every blocked producer and consumer: producers fail with
// ErrShutdown immediately, consumers keep draining until the queue is
// empty and only then fail. No item is delivered twice and no item is
// lost unless the caller abandons the drain.
type Bounded[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items    []T
	head     int
	count    int
	capacity int
	shutdown bool
}

// NewBounded creates a queue holding at most capacity items.
// Capacity must be at least 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Bounded[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends item, blocking while the queue is full.
// Returns ErrShutdown if the queue is (or becomes) shut down while waiting.
func (q *Bounded[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == q.capacity && !q.shutdown {
		q.notFull.Wait()
	}
	if q.shutdown {
		return ErrShutdown
	}

	q.pushLocked(item)
	q.notEmpty.Signal()
	return nil
}

// TryPush appends item without blocking. Returns ErrFull when the queue
// is at capacity and ErrShutdown after shutdown. The listener uses this
// so that an overloaded server rejects connections instead of queueing
// them without bound.
func (q *Bounded[T]) TryPush(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return ErrShutdown
	}
	if q.count == q.capacity {
		return ErrFull
	}

	q.pushLocked(item)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest item, blocking while the queue is
// empty. After Shutdown, Pop drains remaining items and then returns
// ErrShutdown so consumers can exit.
func (q *Bounded[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, ErrShutdown
	}

	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero // release reference
	q.head = (q.head + 1) % q.capacity
	q.count--

	q.notFull.Signal()
	return item, nil
}

// Shutdown marks the queue closed and wakes every blocked producer and
// consumer. Idempotent.
func (q *Bounded[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return
	}
	q.shutdown = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Len returns the number of items currently resident.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// pushLocked stores item at the tail. Caller holds q.mu.
func (q *Bounded[T]) pushLocked(item T) {
	q.items[(q.head+q.count)%q.capacity] = item
	q.count++
}
