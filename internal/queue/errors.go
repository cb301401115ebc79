package queue

import (
	"errors"
	"fmt"
)

// ErrNotBound is returned by Client operations invoked before a
// successful Resolve or Create.
var ErrNotBound = errors.New("queue: client not bound to a queue")

// ErrQueueNotFound reports an operation against a queue that does not
// exist in the backend.
var ErrQueueNotFound = errors.New("queue: queue not found")

// ErrUnknownReceipt reports a delete with a stale or unknown receipt
// handle. Callers treat it as a no-op.
var ErrUnknownReceipt = errors.New("queue: unknown receipt handle")

// ErrNoDLQ reports that the bound queue has no dead-letter companion.
var ErrNoDLQ = errors.New("queue: no dead-letter queue configured")

// QueueError wraps a failed backend call with the operation and queue
// it targeted.
type QueueError struct {
	Op    string
	Queue string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %s: %v", e.Queue, e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

func opErr(op, queue string, err error) *QueueError {
	return &QueueError{Op: op, Queue: queue, Err: err}
}
