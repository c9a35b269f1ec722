// Package queue provides the bounded blocking hand-off queue that sits between
// the listener and the worker pool.
//
// The bounded capacity is the server's backpressure mechanism: when every slot
// is taken, Enqueue parks the listener, which in turn stops calling Accept and
// leaves further clients waiting in the kernel backlog.
package queue

import (
	"fmt"
	"sync"
)

// DefaultCapacity is the number of buffered connections used when no capacity
// is configured.
const DefaultCapacity = 5

// Policy controls what Dequeue does with buffered items once the queue has
// been shut down.
type Policy int

const (
	// Abandon makes Dequeue return immediately after shutdown even if items
	// remain buffered. The owner collects the leftovers with Drain.
	Abandon Policy = iota

	// DrainFirst keeps handing out buffered items after shutdown and only
	// reports "no item" once the buffer is empty.
	DrainFirst
)

func (p Policy) String() string {
	switch p {
	case Abandon:
		return "abandon"
	case DrainFirst:
		return "drain"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abandon":
		return Abandon, nil
	case "drain":
		return DrainFirst, nil
	default:
		return Abandon, fmt.Errorf("unknown shutdown policy %q", s)
	}
}

// Queue is a fixed-capacity FIFO with blocking Enqueue/Dequeue and a one-way
// shutdown transition.
//
// All state is guarded by mu. notFull parks producers while the buffer is at
// capacity, notEmpty parks consumers while it is empty. Shutdown broadcasts on
// both so that nobody stays parked.
//
// Thread safety:
// All methods are safe for concurrent use. The Queue must outlive every
// goroutine that may still call into it.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf      ring[T]
	shutdown bool
	policy   Policy
}

// New creates a queue holding at most capacity items, using the Abandon policy.
//
// Panics if capacity is not positive.
func New[T any](capacity int) *Queue[T] {
	return NewWithPolicy[T](capacity, Abandon)
}

// NewWithPolicy creates a queue with an explicit shutdown policy.
//
// Panics if capacity is not positive.
func NewWithPolicy[T any](capacity int, policy Policy) *Queue[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("queue: capacity must be positive, got %d", capacity))
	}

	q := &Queue[T]{
		buf:    newRing[T](capacity),
		policy: policy,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item, blocking while the queue is full.
//
// Returns false without inserting if the queue is, or becomes, shut down
// while waiting. In that case ownership of item stays with the caller.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.buf.full() && !q.shutdown {
		q.notFull.Wait()
	}

	if q.shutdown {
		// Pass the wake-up along in case another consumer is parked.
		q.notEmpty.Signal()
		return false
	}

	q.buf.push(item)
	q.notEmpty.Signal()
	return true
}

// Dequeue removes the oldest item, blocking while the queue is empty.
//
// The boolean is false when the queue has been shut down and, depending on the
// policy, either unconditionally (Abandon) or once the buffer is empty
// (DrainFirst). Callers treat false as "no connection, stop".
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.buf.empty() && !q.shutdown {
		q.notEmpty.Wait()
	}

	if q.shutdown && (q.policy == Abandon || q.buf.empty()) {
		q.notFull.Signal()
		var zero T
		return zero, false
	}

	item := q.buf.pop()
	q.notFull.Signal()
	return item, true
}

// Shutdown marks the queue as shut down and wakes every parked producer and
// consumer. Calling it more than once has no further effect.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()

	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Drain removes and returns every buffered item in FIFO order. Before
// Shutdown it returns nil.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.shutdown || q.buf.empty() {
		return nil
	}

	items := make([]T, 0, q.buf.size)
	for !q.buf.empty() {
		items = append(items, q.buf.pop())
	}
	return items
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.size
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf.items)
}

// IsShutdown reports whether Shutdown has been called.
func (q *Queue[T]) IsShutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}

// Policy returns the shutdown policy the queue was created with.
func (q *Queue[T]) Policy() Policy {
	return q.policy
}
