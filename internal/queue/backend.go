package queue

import "context"

// Backend is the outbound contract against the queue service. Any
// implementation with FIFO-per-group ordering, visibility timeouts,
// and deduplication windows satisfies the pipeline; the in-process
// Pebble implementation lives in internal/queue/local.
type Backend interface {
	// CreateQueue idempotently provisions a queue and returns its URL.
	CreateQueue(ctx context.Context, name string, attrs Attributes) (string, error)

	// QueueURL resolves a queue name. A queue that does not exist is
	// (_, false, nil), not an error.
	QueueURL(ctx context.Context, name string) (string, bool, error)

	// Send submits one message and returns its message id.
	Send(ctx context.Context, queueURL string, req SendRequest) (string, error)

	// SendBatch submits up to MaxBatchSize messages with per-entry results.
	SendBatch(ctx context.Context, queueURL string, reqs []SendRequest) ([]BatchResult, error)

	// Receive long-polls for up to opts.Wait and returns zero or more
	// messages. An empty result is success.
	Receive(ctx context.Context, queueURL string, opts ReceiveOptions) ([]Message, error)

	// DeleteMessage acknowledges one delivery. A stale handle returns
	// ErrUnknownReceipt.
	DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error

	// QueueStats returns attributes and approximate message counts.
	QueueStats(ctx context.Context, queueURL string) (QueueStats, error)

	// TagQueue merges tags onto the queue.
	TagQueue(ctx context.Context, queueURL string, tags map[string]string) error

	// QueueTags lists the queue's tags.
	QueueTags(ctx context.Context, queueURL string) (map[string]string, error)

	// DeleteQueue removes the queue and all of its messages.
	DeleteQueue(ctx context.Context, queueURL string) error
}
