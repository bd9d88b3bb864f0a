// Package api
// Author: momentics
//
// TaskQueue contract for deferred callbacks inside a single-threaded
// event loop: no locks on driver-internal state, since deferred work
// runs on the same goroutine that queued it, never on a separate
// worker.

package api

// TaskQueue defers callbacks to run later on the owning event loop,
// e.g. to avoid mutating a peering table while iterating it.
type TaskQueue interface {
	// Submit enqueues fn; returns an error if the queue is closed.
	Submit(fn func()) error

	// Drain runs every queued callback in FIFO order and empties the queue.
	Drain()

	// Len reports the number of callbacks currently queued.
	Len() int
}
