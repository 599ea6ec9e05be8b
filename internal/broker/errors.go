package broker

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned (wrapped in a QueueError) when an operation is
// attempted while the manager has no usable broker channel, either because the
// initial connection failed or because the manager was shut down.
var ErrNotConnected = errors.New("broker not connected")

// QueueError describes a failed broker operation. Callers must not assume a
// message was durably queued, consumed or acknowledged when one is returned.
type QueueError struct {
	// Op is the operation that failed ("declare", "publish", "consume", "cancel").
	Op string
	// Queue is the queue the operation targeted.
	Queue string
	// Err is the underlying cause.
	Err error
}

// Error returns the error message.
func (e *QueueError) Error() string {
	if e.Queue == "" {
		return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("broker %s on queue %q: %v", e.Op, e.Queue, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueueError) Unwrap() error {
	return e.Err
}

// newQueueError wraps err with the failed operation and queue name.
func newQueueError(op, queue string, err error) *QueueError {
	return &QueueError{Op: op, Queue: queue, Err: err}
}
