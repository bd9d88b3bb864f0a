// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deferred-callback queue for a single-threaded driver event loop. This
// never spawns a goroutine: every callback runs on the loop goroutine
// that calls Drain, so driver-internal state (peering tables, route
// lists) never needs a lock.

package taskqueue

import (
	"github.com/eapache/queue"

	"github.com/momentics/vtx/api"
)

var _ api.TaskQueue = (*Queue)(nil)

// Queue defers callbacks raised mid-iteration (e.g. "unfocus this
// peering") until the current pass over a table finishes.
type Queue struct {
	q      *queue.Queue
	closed bool
}

// New creates an empty deferred-callback queue.
func New() *Queue {
	return &Queue{q: queue.New()}
}

// Submit enqueues fn for the next Drain call.
func (t *Queue) Submit(fn func()) error {
	if t.closed {
		return ErrQueueClosed
	}
	t.q.Add(fn)
	return nil
}

// Drain runs every queued callback in FIFO order and empties the queue.
// Callbacks submitted by a callback running during Drain are included in
// the same Drain (they're appended while q.Length() still counts them).
func (t *Queue) Drain() {
	for t.q.Length() > 0 {
		fn := t.q.Remove().(func())
		fn()
	}
}

// Len reports the number of callbacks currently queued.
func (t *Queue) Len() int {
	return t.q.Length()
}

// Close marks the queue closed; further Submit calls fail.
func (t *Queue) Close() {
	t.closed = true
}
