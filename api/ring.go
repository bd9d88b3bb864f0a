// Package api
// Author: momentics
//
// Ring contracts: a plain bounded FIFO with no overflow policy, and the
// frame queue with its drop-oldest overflow policy and peek/drop
// operations. The codec's batch-descriptor ring is its own slice and does
// not implement Ring.

package api

// Ring is a bounded FIFO. Enqueue fails (returns false) when full; it does
// not implement any overflow policy of its own.
type Ring[T any] interface {
	Enqueue(item T) bool
	Dequeue() (T, bool)
	Len() int
	Cap() int
}

// FrameQueue is a bounded FIFO of frames with drop-oldest overflow, plus
// the peek/drop operations the vocket mailbox needs.
type FrameQueue interface {
	// Store enqueues a frame, dropping the oldest stored frame if full.
	Store(f Frame)

	// PeekOldest returns the oldest stored frame without removing it.
	PeekOldest() (Frame, bool)

	// PeekNewest returns the newest stored frame without removing it.
	PeekNewest() (Frame, bool)

	// DropOldest removes and returns the oldest stored frame.
	DropOldest() (Frame, bool)

	// DropNewest removes and returns the newest stored frame.
	DropNewest() (Frame, bool)

	Len() int
	Cap() int
}
