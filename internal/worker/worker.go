package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
)

// Worker drives the poll→process→ack/retry→DLQ loop for one queue.
type Worker struct {
	client  *queue.Client
	handler Handler
	opts    Options
	logger  *zap.Logger

	dlqMu       sync.Mutex
	dlqResolved bool
	dlq         *queue.Client
}

// New returns a Worker consuming client with handler.
func New(client *queue.Client, handler Handler, opts Options, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		client:  client,
		handler: handler,
		opts:    opts.withDefaults(),
		logger:  logger.With(zap.String("component", "worker"), zap.String("queue", client.Name())),
	}
}

// Run consumes until ctx is cancelled. Cancellation is observed
// between batches; the in-flight batch finishes within
// ShutdownTimeout. Run returns nil on a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		zap.Int("max_messages", w.opts.MaxMessages),
		zap.Int("wait_seconds", w.opts.WaitSeconds),
		zap.Int("max_retries", w.opts.MaxRetries),
		zap.Int("concurrency", w.opts.Concurrency))

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		msgs, err := w.client.Receive(ctx, queue.ReceiveOptions{
			MaxMessages:       w.opts.MaxMessages,
			Wait:              time.Duration(w.opts.WaitSeconds) * time.Second,
			VisibilityTimeout: w.opts.VisibilityTimeout,
		})
		if err != nil {
			// Receive-level fault: back off so a broken backend is not
			// hammered in a tight loop.
			w.logger.Error("receive failed, backing off",
				zap.Duration("backoff", w.opts.ReceiveBackoff), zap.Error(err))
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopped")
				return nil
			case <-time.After(w.opts.ReceiveBackoff):
			}
			continue
		}
		if len(msgs) == 0 {
			// A zero-wait receive returns immediately on an empty queue;
			// pause before the next poll instead of spinning on the
			// backend.
			if w.opts.WaitSeconds == 0 {
				select {
				case <-ctx.Done():
					w.logger.Info("worker stopped")
					return nil
				case <-time.After(w.opts.IdleDelay):
				}
			}
			continue
		}
		w.processBatch(ctx, msgs)
	}
}

// processBatch dispatches one received batch. Messages sharing a group
// are handled serially in delivery order; distinct groups run in
// parallel bounded by Concurrency. The batch is allowed to finish
// after cancellation, bounded by ShutdownTimeout.
func (w *Worker) processBatch(ctx context.Context, msgs []queue.Message) {
	batchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(w.opts.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-batchCtx.Done():
		}
	})
	defer stop()

	groups := make(map[string][]queue.Message)
	var order []string
	for _, m := range msgs {
		if _, ok := groups[m.GroupID]; !ok {
			order = append(order, m.GroupID)
		}
		groups[m.GroupID] = append(groups[m.GroupID], m)
	}

	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(w.opts.Concurrency)
	for _, groupID := range order {
		batch := groups[groupID]
		g.Go(func() error {
			for i := range batch {
				w.processOne(gctx, &batch[i])
			}
			return nil
		})
	}
	_ = g.Wait()
}

// processOne runs the per-message state machine.
func (w *Worker) processOne(ctx context.Context, msg *queue.Message) {
	err := w.invoke(ctx, msg)
	if err == nil {
		if !w.opts.ManualAck {
			if derr := w.client.Delete(ctx, msg.ReceiptHandle); derr != nil {
				w.logger.Error("ack failed", zap.String("message_id", msg.ID), zap.Error(derr))
			}
		}
		return
	}

	w.logger.Error("handler failed",
		zap.String("message_id", msg.ID),
		zap.String("group_id", msg.GroupID),
		zap.Int("receive_count", msg.ReceiveCount),
		zap.Error(err))
	if w.opts.ErrorHandler != nil {
		w.opts.ErrorHandler(ctx, msg, err)
	}

	if msg.ReceiveCount >= w.opts.MaxRetries {
		w.deadLetter(ctx, msg)
		return
	}

	// RetryPending: the message stays un-deleted; visibility-timeout
	// expiry makes it eligible for redelivery.
	if w.opts.RetryDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(w.opts.RetryDelay):
		}
	}
}

// invoke runs the handler, converting a panic into an error.
func (w *Worker) invoke(ctx context.Context, msg *queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, msg)
}

// deadLetter logs the transition and hands the message to the
// dead-letter queue, then deletes it from the primary queue so it
// cannot loop. With ManualAck the backend's redrive policy moves it
// once the visibility timeout expires.
func (w *Worker) deadLetter(ctx context.Context, msg *queue.Message) {
	w.logger.Warn("delivery attempts exhausted",
		zap.String("message_id", msg.ID),
		zap.String("group_id", msg.GroupID),
		zap.Int("receive_count", msg.ReceiveCount))
	if w.opts.ManualAck {
		return
	}

	dlq, err := w.dlqClient(ctx)
	if err != nil {
		w.logger.Error("dead-letter queue lookup failed", zap.Error(err))
		return
	}
	if dlq != nil {
		if _, err := dlq.Send(ctx, queue.SendRequest{
			Body:       msg.Body,
			GroupID:    msg.GroupID,
			DedupID:    msg.ID,
			Attributes: msg.Attributes,
		}); err != nil {
			// Keep the message on the primary queue; the backend
			// redrive will retry the move.
			w.logger.Error("dead-letter handoff failed", zap.String("message_id", msg.ID), zap.Error(err))
			return
		}
	}
	if err := w.client.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("delete after dead-letter failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// dlqClient resolves the companion dead-letter client once.
func (w *Worker) dlqClient(ctx context.Context) (*queue.Client, error) {
	w.dlqMu.Lock()
	defer w.dlqMu.Unlock()
	if w.dlqResolved {
		return w.dlq, nil
	}
	dlq, err := w.client.DLQFor(ctx)
	if err != nil {
		return nil, err
	}
	w.dlqResolved = true
	w.dlq = dlq
	return dlq, nil
}

// DLQResult reports the outcome of one dead-letter message during a
// drain pass.
type DLQResult struct {
	MessageID string
	Err       error
}

// ProcessDLQ drains the dead-letter queue once: receive up to
// maxMessages, invoke handler, delete on success. Individual failures
// are collected, not raised. It fails only when the bound queue has no
// dead-letter queue configured or the receive itself faults.
func (w *Worker) ProcessDLQ(ctx context.Context, handler Handler, maxMessages int) ([]DLQResult, error) {
	dlq, err := w.dlqClient(ctx)
	if err != nil {
		return nil, err
	}
	if dlq == nil {
		return nil, queue.ErrNoDLQ
	}
	if maxMessages <= 0 {
		maxMessages = w.opts.MaxMessages
	}
	msgs, err := dlq.Receive(ctx, queue.ReceiveOptions{MaxMessages: maxMessages, Wait: time.Second})
	if err != nil {
		return nil, err
	}
	results := make([]DLQResult, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		herr := w.invoke(ctx, msg)
		if herr == nil {
			if derr := dlq.Delete(ctx, msg.ReceiptHandle); derr != nil {
				herr = derr
			}
		}
		if herr != nil {
			w.logger.Error("dead-letter reprocess failed", zap.String("message_id", msg.ID), zap.Error(herr))
		}
		results = append(results, DLQResult{MessageID: msg.ID, Err: herr})
	}
	return results, nil
}
