package queue

import "time"

// FifoSuffix is appended to queue names that do not already carry it.
const FifoSuffix = ".fifo"

// DLQSuffix names the companion dead-letter queue: <base>-dlq.fifo.
const DLQSuffix = "-dlq"

// Default queue attributes applied by Client.Create when the caller
// does not override them.
const (
	DefaultRetentionPeriod   = 14 * 24 * time.Hour
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultReceiveWaitTime   = 20 * time.Second
	DefaultMaxReceiveCount   = 5

	// DedupWindow is the span during which a repeated deduplication id
	// (or identical content hash) is treated as the same message.
	DedupWindow = 5 * time.Minute

	// MaxBatchSize is the upper bound on SendBatch entries per call.
	MaxBatchSize = 10
)

// RedrivePolicy routes messages that exhausted their delivery attempts
// to a dead-letter queue.
type RedrivePolicy struct {
	// DeadLetterQueue is the name of the companion queue.
	DeadLetterQueue string `json:"deadLetterQueue"`
	// MaxReceiveCount is the delivery-attempt threshold after which a
	// message is moved.
	MaxReceiveCount int `json:"maxReceiveCount"`
}

// Attributes describes a queue's configuration.
type Attributes struct {
	RetentionPeriod   time.Duration  `json:"retentionPeriod"`
	VisibilityTimeout time.Duration  `json:"visibilityTimeout"`
	ReceiveWaitTime   time.Duration  `json:"receiveWaitTime"`
	ContentBasedDedup bool           `json:"contentBasedDedup"`
	Redrive           *RedrivePolicy `json:"redrive,omitempty"`
}

// withDefaults fills zero-valued attributes with the documented defaults.
func (a Attributes) withDefaults() Attributes {
	if a.RetentionPeriod <= 0 {
		a.RetentionPeriod = DefaultRetentionPeriod
	}
	if a.VisibilityTimeout <= 0 {
		a.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if a.ReceiveWaitTime <= 0 {
		a.ReceiveWaitTime = DefaultReceiveWaitTime
	}
	return a
}

// DLQSpec asks Create to provision a dead-letter companion queue.
type DLQSpec struct {
	// Name of the DLQ. Defaults to <queue>-dlq.fifo.
	Name string
	// MaxReceiveCount before redrive. Defaults to DefaultMaxReceiveCount.
	MaxReceiveCount int
}

// SendRequest is one outgoing message.
type SendRequest struct {
	Body    []byte
	GroupID string
	// DedupID is the idempotency key. Empty with content-based dedup
	// enabled means the backend derives it from the body.
	DedupID string
	// Delay holds the message back before it becomes receivable.
	Delay      time.Duration
	Attributes map[string]string
}

// Message is one received message.
type Message struct {
	ID      string
	Body    []byte
	GroupID string
	DedupID string
	// ReceiptHandle is the consumer-local token required to delete the
	// message. It is minted per delivery; handles from earlier
	// deliveries are stale.
	ReceiptHandle string
	// ReceiveCount is the total number of deliveries including this one.
	ReceiveCount int
	Attributes   map[string]string
	SentAt       time.Time
}

// BatchResult reports the outcome for one SendBatch entry.
type BatchResult struct {
	Index     int
	MessageID string
	Err       error
}

// ReceiveOptions tunes a single receive call.
type ReceiveOptions struct {
	// MaxMessages in 1..10.
	MaxMessages int
	// Wait bounds the long poll. Zero means a single non-blocking pass.
	Wait time.Duration
	// VisibilityTimeout overrides the queue default for the returned
	// messages. Zero keeps the queue's configured value.
	VisibilityTimeout time.Duration
}

// QueueStats is the attribute-introspection view of a queue.
type QueueStats struct {
	Name            string
	Attributes      Attributes
	ApproxAvailable int
	ApproxInFlight  int
	ApproxDelayed   int
}
