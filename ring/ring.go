// Package ring provides bounded single-producer/single-consumer queues for
// moving data across the real-time boundary. Producers never block and never
// allocate; on a full queue the incoming item is rejected so the real-time
// side keeps its timing guarantees.
//
// The single-producer/single-consumer discipline is fixed at construction:
// exactly one goroutine (or audio callback) may push and exactly one may pop.
package ring

import "sync/atomic"

// Ring is a bounded SPSC queue of plain values. Capacity is rounded up to a
// power of two and never changes after construction. Delivery is FIFO for
// everything that is not rejected.
type Ring[T any] struct {
	buf  []T
	mask uint64

	// head is only advanced by the consumer, tail only by the producer.
	head atomic.Uint64
	tail atomic.Uint64
}

// New creates a ring with at least the requested capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// TryPush appends v and reports whether it was accepted. A full ring rejects
// the item immediately; it never blocks the producer.
func (r *Ring[T]) TryPush(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() > r.mask {
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// TryPop removes the oldest item. The second return is false when the ring
// is empty.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Len returns the number of buffered items. Only advisory when both sides
// are active.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
