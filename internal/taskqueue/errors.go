// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the taskqueue package.

package taskqueue

import "errors"

// ErrQueueClosed indicates the queue has been closed and rejects new work.
var ErrQueueClosed = errors.New("taskqueue: closed")
