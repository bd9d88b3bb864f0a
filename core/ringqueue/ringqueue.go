// File: core/ringqueue/ringqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package ringqueue implements a bounded FIFO: a fixed-capacity ring of
// frames with a drop-oldest overflow policy and peek/drop operations
// from either end. This queue backs a vocket's application mailbox, the
// one resource legitimately shared across the driver loop and
// application goroutines, so a plain mutex (not CAS) is the right tool
// over a head/tail-indexed array: contention is low (one producer, one
// consumer) and the drop-oldest path needs to move both head and the
// stored frame atomically with respect to a concurrent
// PeekNewest/DropNewest from the consumer side.

package ringqueue

import (
	"sync"

	"github.com/momentics/vtx/api"
)

var _ api.FrameQueue = (*RingQueue)(nil)

// RingQueue is a bounded FIFO of api.Frame with drop-oldest overflow.
type RingQueue struct {
	mu    sync.Mutex
	slots []api.Frame
	head  int // index of oldest element
	size  int // number of elements currently stored
}

// New allocates a ring queue of the given capacity (at least 1).
func New(capacity int) *RingQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &RingQueue{slots: make([]api.Frame, capacity)}
}

// Store enqueues f, dropping the oldest frame first if the queue is full.
func (q *RingQueue) Store(f api.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.slots) {
		q.head = (q.head + 1) % len(q.slots)
		q.size--
	}
	tail := (q.head + q.size) % len(q.slots)
	q.slots[tail] = f
	q.size++
}

// PeekOldest returns the oldest stored frame without removing it.
func (q *RingQueue) PeekOldest() (api.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return api.Frame{}, false
	}
	return q.slots[q.head], true
}

// PeekNewest returns the newest stored frame without removing it.
func (q *RingQueue) PeekNewest() (api.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return api.Frame{}, false
	}
	idx := (q.head + q.size - 1) % len(q.slots)
	return q.slots[idx], true
}

// DropOldest removes and returns the oldest stored frame.
func (q *RingQueue) DropOldest() (api.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return api.Frame{}, false
	}
	f := q.slots[q.head]
	q.slots[q.head] = api.Frame{}
	q.head = (q.head + 1) % len(q.slots)
	q.size--
	return f, true
}

// DropNewest removes and returns the newest stored frame.
func (q *RingQueue) DropNewest() (api.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return api.Frame{}, false
	}
	idx := (q.head + q.size - 1) % len(q.slots)
	f := q.slots[idx]
	q.slots[idx] = api.Frame{}
	q.size--
	return f, true
}

// Len returns the number of frames currently stored.
func (q *RingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *RingQueue) Cap() int {
	return len(q.slots)
}
