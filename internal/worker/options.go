package worker

import (
	"context"
	"time"

	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
)

// PollingType selects the default receive wait.
type PollingType string

const (
	// PollingLong waits up to 20s per receive call.
	PollingLong PollingType = "long"
	// PollingShort returns immediately when the queue is empty.
	PollingShort PollingType = "short"
)

// Handler processes one message. A nil return acknowledges the
// message; an error (or panic) counts as a failed attempt.
type Handler func(ctx context.Context, msg *queue.Message) error

// ErrorHandler observes a failed handler invocation. It runs after the
// failure is logged and does not influence the retry decision.
type ErrorHandler func(ctx context.Context, msg *queue.Message, err error)

// Options configures a Worker.
type Options struct {
	// PollingType defaults to PollingLong.
	PollingType PollingType
	// MaxMessages per receive, clamped to 1..10. Default 10.
	MaxMessages int
	// WaitSeconds bounds the long poll (0..20). Defaults by PollingType:
	// 20 for long, 0 for short.
	WaitSeconds int
	// VisibilityTimeout overrides the queue default when positive.
	VisibilityTimeout time.Duration
	// Concurrency bounds parallel handler invocations drawn from one
	// batch. Dispatch stays serial per message group. Default 1.
	Concurrency int
	// MaxRetries is the delivery-attempt budget before dead-lettering.
	// Default 3.
	MaxRetries int
	// RetryDelay pauses after a failed serial invocation, spacing out
	// redeliveries of a struggling group. Optional.
	RetryDelay time.Duration
	// ManualAck leaves acknowledgment and dead-letter handoff to the
	// handler. By default successful messages are deleted automatically
	// and exhausted ones are moved to the dead-letter queue.
	ManualAck bool
	// ErrorHandler, when set, observes every failed invocation.
	ErrorHandler ErrorHandler
	// ShutdownTimeout bounds how long Run waits for the in-flight
	// batch after cancellation. Default 30s.
	ShutdownTimeout time.Duration
	// ReceiveBackoff is the pause after a receive-level fault.
	// Default 5s.
	ReceiveBackoff time.Duration
	// IdleDelay is the pause after an empty zero-wait receive, keeping
	// short polling from spinning on an empty queue. Default 250ms.
	IdleDelay time.Duration
}

// withDefaults normalizes zero values to documented defaults.
func (o Options) withDefaults() Options {
	if o.PollingType == "" {
		o.PollingType = PollingLong
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = 10
	}
	if o.MaxMessages > 10 {
		o.MaxMessages = 10
	}
	if o.WaitSeconds < 0 {
		o.WaitSeconds = 0
	}
	if o.WaitSeconds > 20 {
		o.WaitSeconds = 20
	}
	if o.WaitSeconds == 0 && o.PollingType == PollingLong {
		o.WaitSeconds = 20
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.ReceiveBackoff <= 0 {
		o.ReceiveBackoff = 5 * time.Second
	}
	if o.IdleDelay <= 0 {
		o.IdleDelay = 250 * time.Millisecond
	}
	return o
}
