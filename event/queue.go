// Package event carries inbound envelopes from transport goroutines to the update loop
package event

import (
	"fmt"
	"sync/atomic"
)

// DefaultCapacity is the inbound ring size used by transports
const DefaultCapacity = 1024

// Queue is a lock-free MPSC ring buffer
// Thread-Safety:
//   - Push: lock-free CAS, multiple producers OK
//   - Pop/Drain: single consumer (update loop)
//   - Published flags prevent reading partial writes
//
// Overflow: Push fails when full; the newest item is dropped, never an unread one
type Queue[T any] struct {
	items     []T
	published []atomic.Bool // true = slot fully written
	mask      uint64
	head      atomic.Uint64 // read index, consumer only
	tail      atomic.Uint64 // write reservation index
	dropped   atomic.Uint64
}

// NewQueue creates a ring; capacity must be a power of two
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("event: queue capacity %d is not a power of two", capacity))
	}
	return &Queue[T]{
		items:     make([]T, capacity),
		published: make([]atomic.Bool, capacity),
		mask:      uint64(capacity - 1),
	}
}

// Push reserves a slot with CAS and publishes the item
// Returns false if the ring is full
func (q *Queue[T]) Push(item T) bool {
	size := q.mask + 1
	for {
		tail := q.tail.Load()
		if tail-q.head.Load() >= size {
			q.dropped.Add(1)
			return false
		}
		if q.tail.CompareAndSwap(tail, tail+1) {
			idx := tail & q.mask
			q.items[idx] = item
			q.published[idx].Store(true) // MUST be after write
			return true
		}
	}
}

// Pop removes the oldest published item
// Returns false when empty or when the next producer has not finished writing
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	idx := head & q.mask
	if !q.published[idx].Load() {
		return zero, false
	}
	item := q.items[idx]
	q.items[idx] = zero
	q.published[idx].Store(false)
	q.head.Store(head + 1)
	return item, true
}

// Drain pops everything currently published in FIFO order
func (q *Queue[T]) Drain() []T {
	var out []T
	for {
		item, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

// Ready reports whether Pop would succeed
func (q *Queue[T]) Ready() bool {
	head := q.head.Load()
	if head == q.tail.Load() {
		return false
	}
	return q.published[head&q.mask].Load()
}

// Len returns approximate pending count
func (q *Queue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// Dropped returns the number of pushes rejected because the ring was full
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
