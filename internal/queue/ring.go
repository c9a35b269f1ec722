package queue

// ring is a fixed-capacity FIFO buffer. It is not safe for concurrent use;
// Queue serializes all access to it.
type ring[T any] struct {
	items []T
	head  int // next slot to read
	tail  int // next slot to write
	size  int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) full() bool  { return r.size == len(r.items) }
func (r *ring[T]) empty() bool { return r.size == 0 }

// push appends item at the tail. It panics if the buffer is full.
func (r *ring[T]) push(item T) {
	if r.full() {
		panic("queue: push on full ring")
	}
	r.items[r.tail] = item
	r.tail = r.next(r.tail)
	r.size++
}

// pop removes the item at the head. It panics if the buffer is empty.
func (r *ring[T]) pop() T {
	if r.empty() {
		panic("queue: pop on empty ring")
	}
	var zero T
	item := r.items[r.head]
	r.items[r.head] = zero // drop the reference so the slot does not pin it
	r.head = r.next(r.head)
	r.size--
	return item
}

func (r *ring[T]) next(i int) int {
	i++
	if i == len(r.items) {
		return 0
	}
	return i
}
