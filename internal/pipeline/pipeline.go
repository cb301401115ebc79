package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dynamisch-arpit/RT-shared-component/internal/audit"
	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
	"github.com/dynamisch-arpit/RT-shared-component/internal/tenant"
)

// Envelope is the wire form of one queue message: the tenant that owns
// the change plus the normalized records.
type Envelope struct {
	ClientID string         `json:"clientId"`
	Records  []audit.Record `json:"records"`
}

// PublishResult reports one accepted publish.
type PublishResult struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
	Records   int    `json:"records"`
}

// ConsumeResult reports one drain pass.
type ConsumeResult struct {
	Messages  int `json:"messages"`
	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
}

// Pipeline wires the queue client, the tenant connection registry, and
// the audit store into the publish/consume flow.
type Pipeline struct {
	client   *queue.Client
	registry *tenant.ConnectionRegistry
	dialect  audit.Dialect
	logger   *zap.Logger

	mu     sync.Mutex
	stores map[string]*audit.Store
}

// New builds a Pipeline over an already-bound queue client.
func New(client *queue.Client, registry *tenant.ConnectionRegistry, dialect audit.Dialect, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		client:   client,
		registry: registry,
		dialect:  dialect,
		logger:   logger.With(zap.String("component", "pipeline")),
		stores:   make(map[string]*audit.Store),
	}
}

// storeFor returns the per-tenant audit store, ensuring the schema on
// first use of each tenant.
func (p *Pipeline) storeFor(ctx context.Context, clientID string) (*audit.Store, error) {
	p.mu.Lock()
	if st, ok := p.stores[clientID]; ok {
		p.mu.Unlock()
		return st, nil
	}
	p.mu.Unlock()

	db, err := p.registry.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	st := audit.NewStore(db, p.dialect, clientID, p.logger)
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.stores[clientID]; ok {
		return existing, nil
	}
	p.stores[clientID] = st
	return st, nil
}

// Publish normalizes payload and enqueues one message for clientID.
// All records in a payload travel in a single message under the FIFO
// group of the first record, so a batch is applied atomically in order.
// The deduplication id is a content hash over tenant and records,
// letting the queue absorb producer retries of the same payload.
func (p *Pipeline) Publish(ctx context.Context, clientID string, payload []byte) (PublishResult, error) {
	if clientID == "" {
		return PublishResult{}, &audit.ValidationError{Field: "clientId", Reason: "must not be empty"}
	}
	records, err := audit.Normalize(payload, time.Now().UTC())
	if err != nil {
		return PublishResult{}, err
	}

	env := Envelope{ClientID: clientID, Records: records}
	body, err := json.Marshal(env)
	if err != nil {
		return PublishResult{}, fmt.Errorf("encode envelope: %w", err)
	}

	groupID := records[0].GroupKey()
	msgID, err := p.client.Send(ctx, queue.SendRequest{
		Body:    body,
		GroupID: groupID,
		DedupID: contentHash(clientID, body),
	})
	if err != nil {
		return PublishResult{}, err
	}

	p.logger.Info("published audit batch",
		zap.String("client_id", clientID),
		zap.String("message_id", msgID),
		zap.String("group_id", groupID),
		zap.Int("records", len(records)))
	return PublishResult{MessageID: msgID, GroupID: groupID, Records: len(records)}, nil
}

// ProcessDirect persists a payload for clientID without touching the
// queue. Used by callers that need synchronous confirmation.
func (p *Pipeline) ProcessDirect(ctx context.Context, clientID string, payload []byte) ([]bool, error) {
	if clientID == "" {
		return nil, &audit.ValidationError{Field: "clientId", Reason: "must not be empty"}
	}
	records, err := audit.Normalize(payload, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	st, err := p.storeFor(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return st.InsertBulk(ctx, records)
}

// Handler returns the queue message handler that persists an Envelope
// into its tenant's database. A handler error leaves the message
// un-acked so the retry machinery takes over. Each record carries a
// dedup key derived from the message id, so a redelivery of a
// persisted-but-unacked message reuses the existing rows instead of
// inserting them again.
func (p *Pipeline) Handler() func(ctx context.Context, msg *queue.Message) error {
	return func(ctx context.Context, msg *queue.Message) error {
		var env Envelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		if env.ClientID == "" {
			return &audit.ValidationError{Field: "clientId", Reason: "missing from envelope"}
		}
		if len(env.Records) == 0 {
			return &audit.ValidationError{Field: "records", Reason: "empty envelope"}
		}
		for i := range env.Records {
			if env.Records[i].DedupKey == "" {
				env.Records[i].DedupKey = fmt.Sprintf("%s-%d", msg.ID, i)
			}
		}

		st, err := p.storeFor(ctx, env.ClientID)
		if err != nil {
			return err
		}
		results, err := st.InsertBulk(ctx, env.Records)
		if err != nil {
			return err
		}
		for _, ok := range results {
			if !ok {
				return fmt.Errorf("audit batch for %s persisted partially", env.ClientID)
			}
		}
		return nil
	}
}

// Consume drains up to max messages once and persists each. Messages
// that persist fully are acked; failures stay on the queue for retry.
func (p *Pipeline) Consume(ctx context.Context, max int, wait time.Duration) (ConsumeResult, error) {
	if max <= 0 {
		max = queue.MaxBatchSize
	}
	msgs, err := p.client.Receive(ctx, queue.ReceiveOptions{MaxMessages: max, Wait: wait})
	if err != nil {
		return ConsumeResult{}, err
	}

	res := ConsumeResult{Messages: len(msgs)}
	handle := p.Handler()
	for i := range msgs {
		msg := &msgs[i]
		if herr := handle(ctx, msg); herr != nil {
			p.logger.Error("consume failed",
				zap.String("message_id", msg.ID),
				zap.Int("receive_count", msg.ReceiveCount),
				zap.Error(herr))
			res.Failed++
			continue
		}
		if derr := p.client.Delete(ctx, msg.ReceiptHandle); derr != nil {
			p.logger.Error("ack failed", zap.String("message_id", msg.ID), zap.Error(derr))
			res.Failed++
			continue
		}
		res.Persisted++
	}
	return res, nil
}

// DrainDLQ reprocesses up to max dead-letter messages once, persisting
// and acking the ones that now succeed. Queues without a dead-letter
// companion get queue.ErrNoDLQ.
func (p *Pipeline) DrainDLQ(ctx context.Context, max int) (ConsumeResult, error) {
	dlq, err := p.client.DLQFor(ctx)
	if err != nil {
		return ConsumeResult{}, err
	}
	if dlq == nil {
		return ConsumeResult{}, queue.ErrNoDLQ
	}
	if max <= 0 {
		max = queue.MaxBatchSize
	}
	msgs, err := dlq.Receive(ctx, queue.ReceiveOptions{MaxMessages: max, Wait: time.Second})
	if err != nil {
		return ConsumeResult{}, err
	}

	res := ConsumeResult{Messages: len(msgs)}
	handle := p.Handler()
	for i := range msgs {
		msg := &msgs[i]
		if herr := handle(ctx, msg); herr != nil {
			p.logger.Error("dead-letter reprocess failed",
				zap.String("message_id", msg.ID), zap.Error(herr))
			res.Failed++
			continue
		}
		if derr := dlq.Delete(ctx, msg.ReceiptHandle); derr != nil {
			res.Failed++
			continue
		}
		res.Persisted++
	}
	return res, nil
}

// Trail returns the stored change history for one (table, key) pair,
// newest first.
func (p *Pipeline) Trail(ctx context.Context, clientID, tableName, primaryKeyValue string, limit int) ([]audit.Record, error) {
	st, err := p.storeFor(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return st.FindByKey(ctx, tableName, primaryKeyValue, limit)
}

// TrailRange returns stored changes inside [start, end], optionally
// restricted to one table.
func (p *Pipeline) TrailRange(ctx context.Context, clientID string, start, end time.Time, tableName string) ([]audit.Record, error) {
	st, err := p.storeFor(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return st.FindByDateRange(ctx, start, end, tableName)
}

// Count returns the number of stored records matching the filters.
func (p *Pipeline) Count(ctx context.Context, clientID string, f audit.CountFilters) (int64, error) {
	st, err := p.storeFor(ctx, clientID)
	if err != nil {
		return 0, err
	}
	return st.Count(ctx, f)
}

// Cleanup deletes records older than days for one tenant.
func (p *Pipeline) Cleanup(ctx context.Context, clientID string, days int) (int64, error) {
	st, err := p.storeFor(ctx, clientID)
	if err != nil {
		return 0, err
	}
	return st.PurgeOlderThan(ctx, days)
}

// CleanupAll runs retention for every tenant that has a live store.
// Tenants never touched since startup have nothing cached to purge.
func (p *Pipeline) CleanupAll(ctx context.Context, days int) map[string]int64 {
	p.mu.Lock()
	ids := make([]string, 0, len(p.stores))
	for id := range p.stores {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		n, err := p.Cleanup(ctx, id, days)
		if err != nil {
			p.logger.Error("retention pass failed", zap.String("client_id", id), zap.Error(err))
			continue
		}
		out[id] = n
	}
	return out
}

// Stats exposes the bound queue's counters.
func (p *Pipeline) Stats(ctx context.Context) (queue.QueueStats, error) {
	return p.client.Stats(ctx)
}

// Forget drops the cached store for a tenant, forcing schema and
// connection re-resolution on next use. Called when tenant config is
// invalidated.
func (p *Pipeline) Forget(clientID string) {
	p.mu.Lock()
	delete(p.stores, clientID)
	p.mu.Unlock()
}

// contentHash derives a deterministic deduplication id from the tenant
// and the exact message body.
func contentHash(clientID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(clientID))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
