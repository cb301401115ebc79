package queue

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// dlqTag marks a queue with the name of its dead-letter companion.
const dlqTag = "dead-letter-queue"

// Client binds to one named FIFO queue on a Backend.
type Client struct {
	backend Backend
	logger  *zap.Logger

	name string
	url  string
}

// NewClient returns a Client targeting name. The name is normalized to
// carry the .fifo suffix. The client is unbound until Resolve or
// Create succeeds.
func NewClient(backend Backend, name string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{backend: backend, logger: logger.With(zap.String("component", "queue-client"))}
	c.SetTarget(name)
	return c
}

// NormalizeName appends the .fifo suffix when absent.
func NormalizeName(name string) string {
	if strings.HasSuffix(name, FifoSuffix) {
		return name
	}
	return name + FifoSuffix
}

// DLQNameFor returns the default dead-letter queue name for a primary
// queue name: <base>-dlq.fifo.
func DLQNameFor(name string) string {
	base := strings.TrimSuffix(NormalizeName(name), FifoSuffix)
	return base + DLQSuffix + FifoSuffix
}

// Name returns the normalized queue name the client targets.
func (c *Client) Name() string { return c.name }

// Bound reports whether the client holds a resolved queue URL.
func (c *Client) Bound() bool { return c.url != "" }

// SetTarget rebinds the client to a (possibly not-yet-created) queue,
// invalidating any cached URL.
func (c *Client) SetTarget(name string) {
	c.name = NormalizeName(name)
	c.url = ""
}

// Resolve looks up the backend handle for the current name. A queue
// that does not exist yet is (false, nil), not an error.
func (c *Client) Resolve(ctx context.Context) (bool, error) {
	url, found, err := c.backend.QueueURL(ctx, c.name)
	if err != nil {
		return false, opErr("resolve", c.name, err)
	}
	if !found {
		return false, nil
	}
	c.url = url
	return true, nil
}

// Create idempotently provisions the queue with FIFO ordering and
// content-based deduplication enabled by default, merging attrs over
// the documented defaults. When dlq is non-nil a companion FIFO queue
// is provisioned first and a redrive policy referencing it is set on
// the primary queue.
func (c *Client) Create(ctx context.Context, attrs Attributes, dlq *DLQSpec) error {
	attrs = attrs.withDefaults()
	attrs.ContentBasedDedup = true

	if dlq != nil {
		dlqName := dlq.Name
		if dlqName == "" {
			dlqName = DLQNameFor(c.name)
		}
		dlqName = NormalizeName(dlqName)
		maxReceive := dlq.MaxReceiveCount
		if maxReceive <= 0 {
			maxReceive = DefaultMaxReceiveCount
		}
		dlqAttrs := Attributes{
			RetentionPeriod:   attrs.RetentionPeriod,
			VisibilityTimeout: attrs.VisibilityTimeout,
			ReceiveWaitTime:   attrs.ReceiveWaitTime,
			ContentBasedDedup: true,
		}
		if _, err := c.backend.CreateQueue(ctx, dlqName, dlqAttrs); err != nil {
			return opErr("create-dlq", dlqName, err)
		}
		attrs.Redrive = &RedrivePolicy{DeadLetterQueue: dlqName, MaxReceiveCount: maxReceive}
	}

	url, err := c.backend.CreateQueue(ctx, c.name, attrs)
	if err != nil {
		return opErr("create", c.name, err)
	}
	c.url = url

	if attrs.Redrive != nil {
		if err := c.backend.TagQueue(ctx, c.url, map[string]string{dlqTag: attrs.Redrive.DeadLetterQueue}); err != nil {
			return opErr("tag", c.name, err)
		}
	}
	return nil
}

// Send submits one message. GroupID is required.
func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	if !c.Bound() {
		return "", ErrNotBound
	}
	if req.GroupID == "" {
		return "", opErr("send", c.name, errors.New("group id required"))
	}
	msgID, err := c.backend.Send(ctx, c.url, req)
	if err != nil {
		return "", opErr("send", c.name, err)
	}
	return msgID, nil
}

// SendBatch submits up to MaxBatchSize messages. The per-entry results
// carry individual failures; the call itself fails only on a
// batch-level fault.
func (c *Client) SendBatch(ctx context.Context, reqs []SendRequest) ([]BatchResult, error) {
	if !c.Bound() {
		return nil, ErrNotBound
	}
	if len(reqs) > MaxBatchSize {
		return nil, opErr("send-batch", c.name, errors.New("batch exceeds limit"))
	}
	results, err := c.backend.SendBatch(ctx, c.url, reqs)
	if err != nil {
		return nil, opErr("send-batch", c.name, err)
	}
	return results, nil
}

// Receive long-polls up to opts.Wait and returns zero or more
// messages. No messages after the wait is success with an empty slice.
func (c *Client) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	if !c.Bound() {
		return nil, ErrNotBound
	}
	msgs, err := c.backend.Receive(ctx, c.url, opts)
	if err != nil {
		return nil, opErr("receive", c.name, err)
	}
	return msgs, nil
}

// Delete acknowledges one message. A stale receipt handle is tolerated
// as a no-op and logged.
func (c *Client) Delete(ctx context.Context, receiptHandle string) error {
	if !c.Bound() {
		return ErrNotBound
	}
	err := c.backend.DeleteMessage(ctx, c.url, receiptHandle)
	if errors.Is(err, ErrUnknownReceipt) {
		c.logger.Warn("delete with stale receipt handle ignored",
			zap.String("queue", c.name))
		return nil
	}
	if err != nil {
		return opErr("delete", c.name, err)
	}
	return nil
}

// Stats returns the queue's attributes and approximate counts.
func (c *Client) Stats(ctx context.Context) (QueueStats, error) {
	if !c.Bound() {
		return QueueStats{}, ErrNotBound
	}
	st, err := c.backend.QueueStats(ctx, c.url)
	if err != nil {
		return QueueStats{}, opErr("stats", c.name, err)
	}
	return st, nil
}

// DLQFor returns a bound Client for the companion dead-letter queue,
// or (nil, nil) when none is tagged on this queue.
func (c *Client) DLQFor(ctx context.Context) (*Client, error) {
	if !c.Bound() {
		return nil, ErrNotBound
	}
	tags, err := c.backend.QueueTags(ctx, c.url)
	if err != nil {
		return nil, opErr("list-tags", c.name, err)
	}
	dlqName, ok := tags[dlqTag]
	if !ok || dlqName == "" {
		return nil, nil
	}
	dlq := NewClient(c.backend, dlqName, c.logger)
	found, err := dlq.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, opErr("resolve-dlq", dlqName, ErrQueueNotFound)
	}
	return dlq, nil
}

// Destroy removes the queue and, when cascade is set, its dead-letter
// companion.
func (c *Client) Destroy(ctx context.Context, cascade bool) error {
	if !c.Bound() {
		if found, err := c.Resolve(ctx); err != nil {
			return err
		} else if !found {
			return nil
		}
	}
	var dlq *Client
	if cascade {
		var err error
		dlq, err = c.DLQFor(ctx)
		if err != nil {
			c.logger.Warn("dead-letter lookup failed during destroy", zap.Error(err))
		}
	}
	if err := c.backend.DeleteQueue(ctx, c.url); err != nil {
		return opErr("destroy", c.name, err)
	}
	c.url = ""
	if dlq != nil {
		if err := dlq.backend.DeleteQueue(ctx, dlq.url); err != nil {
			return opErr("destroy", dlq.name, err)
		}
	}
	return nil
}
