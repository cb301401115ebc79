package local

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
	"github.com/dynamisch-arpit/RT-shared-component/internal/storage/kv"
	"github.com/dynamisch-arpit/RT-shared-component/pkg/id"
)

const (
	// pollTick is the readiness check interval during a long poll.
	defaultPollTick = 50 * time.Millisecond
	// maintainBatch bounds index sweeps per receive pass.
	maintainBatch = 256
)

// lease is the persisted record of one in-flight delivery.
type lease struct {
	MessageID string `json:"messageId"`
	Group     string `json:"group"`
	ExpiresMs int64  `json:"expiresMs"`
}

// dedupEntry is one deduplication window record.
type dedupEntry struct {
	MessageID string `json:"messageId"`
	ExpiresMs int64  `json:"expiresMs"`
}

// Backend implements queue.Backend on an embedded Pebble store.
type Backend struct {
	store  *kv.Store
	gen    *id.Generator
	logger *zap.Logger

	// mu serializes state transitions across queues. Long-poll waits
	// sleep outside the lock.
	mu sync.Mutex

	now      func() time.Time
	pollTick time.Duration
}

var _ queue.Backend = (*Backend)(nil)

// NewBackend returns a Backend persisting into store.
func NewBackend(store *kv.Store, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		store:    store,
		gen:      id.NewGenerator(),
		logger:   logger.With(zap.String("component", "queue-local")),
		now:      time.Now,
		pollTick: defaultPollTick,
	}
}

// CreateQueue idempotently provisions a queue. Re-creating an existing
// queue rewrites its attributes and is not an error.
func (b *Backend) CreateQueue(ctx context.Context, name string, attrs queue.Attributes) (string, error) {
	cfg, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	if err := b.store.Set(cfgKey(name), cfg); err != nil {
		return "", err
	}
	return urlFor(name), nil
}

// QueueURL resolves a queue name; absence is (_, false, nil).
func (b *Backend) QueueURL(ctx context.Context, name string) (string, bool, error) {
	ok, err := b.store.Has(cfgKey(name))
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return urlFor(name), true, nil
}

// resolve maps a queue URL to its name and loads its attributes.
func (b *Backend) resolve(url string) (string, queue.Attributes, error) {
	name, ok := nameFromURL(url)
	if !ok {
		return "", queue.Attributes{}, fmt.Errorf("%w: bad url %q", queue.ErrQueueNotFound, url)
	}
	raw, err := b.store.Get(cfgKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return "", queue.Attributes{}, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, name)
	}
	if err != nil {
		return "", queue.Attributes{}, err
	}
	var attrs queue.Attributes
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return "", queue.Attributes{}, err
	}
	return name, attrs, nil
}

// Send submits one message, honoring the deduplication window.
func (b *Backend) Send(ctx context.Context, queueURL string, req queue.SendRequest) (string, error) {
	name, attrs, err := b.resolve(queueURL)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send(ctx, name, attrs, req)
}

// send performs the locked enqueue path.
func (b *Backend) send(ctx context.Context, name string, attrs queue.Attributes, req queue.SendRequest) (string, error) {
	if req.GroupID == "" {
		return "", errors.New("local: group id required")
	}
	dedupID := req.DedupID
	if dedupID == "" {
		if !attrs.ContentBasedDedup {
			return "", errors.New("local: deduplication id required")
		}
		sum := sha256.Sum256(req.Body)
		dedupID = hex.EncodeToString(sum[:])
	}
	now := b.now()
	nowMs := now.UnixMilli()

	// Duplicate within the window: accept without enqueueing.
	if raw, err := b.store.Get(dedupKey(name, req.GroupID, dedupID)); err == nil {
		var entry dedupEntry
		if json.Unmarshal(raw, &entry) == nil && entry.ExpiresMs > nowMs {
			return entry.MessageID, nil
		}
	}

	msgID := b.gen.Next()
	meta := recordMeta{
		ID:         msgID.String(),
		GroupID:    req.GroupID,
		DedupID:    dedupID,
		SentAtMs:   nowMs,
		Attributes: req.Attributes,
	}
	rec, err := encodeRecord(meta, req.Body)
	if err != nil {
		return "", err
	}

	batch := b.store.NewBatch()
	defer batch.Close()
	if err := batch.Set(msgKey(name, msgID), rec, nil); err != nil {
		return "", err
	}
	if req.Delay > 0 {
		fire := nowMs + req.Delay.Milliseconds()
		if err := batch.Set(delayKey(name, fire, msgID), []byte(req.GroupID), nil); err != nil {
			return "", err
		}
	} else {
		if err := batch.Set(readyKey(name, req.GroupID, msgID), nil, nil); err != nil {
			return "", err
		}
	}
	dedupExp := nowMs + queue.DedupWindow.Milliseconds()
	entry, err := json.Marshal(dedupEntry{MessageID: meta.ID, ExpiresMs: dedupExp})
	if err != nil {
		return "", err
	}
	if err := batch.Set(dedupKey(name, req.GroupID, dedupID), entry, nil); err != nil {
		return "", err
	}
	if err := batch.Set(dedupIdxKey(name, dedupExp, req.GroupID, dedupID), dedupKey(name, req.GroupID, dedupID), nil); err != nil {
		return "", err
	}
	if err := b.store.CommitBatch(ctx, batch); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// SendBatch submits entries individually, reporting per-entry results.
func (b *Backend) SendBatch(ctx context.Context, queueURL string, reqs []queue.SendRequest) ([]queue.BatchResult, error) {
	name, attrs, err := b.resolve(queueURL)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	results := make([]queue.BatchResult, 0, len(reqs))
	for i, req := range reqs {
		msgID, err := b.send(ctx, name, attrs, req)
		results = append(results, queue.BatchResult{Index: i, MessageID: msgID, Err: err})
	}
	return results, nil
}

// Receive long-polls for up to opts.Wait, returning zero or more
// messages in FIFO order per group.
func (b *Backend) Receive(ctx context.Context, queueURL string, opts queue.ReceiveOptions) ([]queue.Message, error) {
	name, attrs, err := b.resolve(queueURL)
	if err != nil {
		return nil, err
	}
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = 1
	}
	if maxMessages > queue.MaxBatchSize {
		maxMessages = queue.MaxBatchSize
	}
	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = attrs.VisibilityTimeout
	}
	if visibility <= 0 {
		visibility = queue.DefaultVisibilityTimeout
	}
	deadline := b.now().Add(opts.Wait)

	for {
		b.mu.Lock()
		b.maintain(ctx, name, attrs)
		msgs, err := b.collect(ctx, name, maxMessages, visibility)
		b.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
		if opts.Wait <= 0 || !b.now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			// Shutdown during a long poll is an empty result, not a fault.
			return nil, nil
		case <-time.After(b.pollTick):
		}
	}
}

// collect leases up to max ready messages. Groups with an in-flight
// message are skipped so FIFO order holds per group.
func (b *Backend) collect(ctx context.Context, name string, max int, visibility time.Duration) ([]queue.Message, error) {
	lower, upper := kv.PrefixBounds(readyPrefix(name))
	iter, err := b.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	now := b.now()
	nowMs := now.UnixMilli()
	batch := b.store.NewBatch()
	defer batch.Close()

	inflight := map[string]uint32{}
	blocked := map[string]bool{}
	var msgs []queue.Message

	for ok := iter.First(); ok && len(msgs) < max; ok = iter.Next() {
		group, msgID, ok2 := parseReadyKey(name, iter.Key())
		if !ok2 {
			continue
		}
		if _, seen := blocked[group]; !seen {
			blocked[group] = b.inflightCount(name, group) > 0
		}
		if blocked[group] {
			continue
		}
		raw, err := b.store.Get(msgKey(name, msgID))
		if errors.Is(err, kv.ErrNotFound) {
			// Orphaned index entry, drop it.
			_ = batch.Delete(iter.Key(), nil)
			continue
		}
		if err != nil {
			return nil, err
		}
		meta, body, err := decodeRecord(raw)
		if err != nil {
			b.logger.Warn("dropping corrupt message record",
				zap.String("queue", name), zap.String("group", group))
			_ = batch.Delete(iter.Key(), nil)
			_ = batch.Delete(msgKey(name, msgID), nil)
			continue
		}

		meta.ReceiveCount++
		rec, err := encodeRecord(meta, body)
		if err != nil {
			return nil, err
		}
		receipt := uuid.NewString()
		expires := nowMs + visibility.Milliseconds()
		ls, err := json.Marshal(lease{MessageID: meta.ID, Group: group, ExpiresMs: expires})
		if err != nil {
			return nil, err
		}
		if err := batch.Set(msgKey(name, msgID), rec, nil); err != nil {
			return nil, err
		}
		if err := batch.Set(leaseKey(name, receipt), ls, nil); err != nil {
			return nil, err
		}
		if err := batch.Set(leaseIdxKey(name, expires, receipt), nil, nil); err != nil {
			return nil, err
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return nil, err
		}
		inflight[group]++

		msgs = append(msgs, queue.Message{
			ID:            meta.ID,
			Body:          body,
			GroupID:       group,
			DedupID:       meta.DedupID,
			ReceiptHandle: receipt,
			ReceiveCount:  meta.ReceiveCount,
			Attributes:    meta.Attributes,
			SentAt:        time.UnixMilli(meta.SentAtMs),
		})
	}

	for group, n := range inflight {
		count := b.inflightCount(name, group) + n
		if err := b.setInflightCount(batch, name, group, count); err != nil {
			return nil, err
		}
	}
	if len(msgs) == 0 && batch.Len() == 0 {
		return nil, nil
	}
	if err := b.store.CommitBatch(ctx, batch); err != nil {
		return nil, err
	}
	return msgs, nil
}

// maintain promotes due delayed messages, reclaims expired leases
// (redriving exhausted messages to the DLQ), sweeps the dedup window,
// and purges messages past retention. Called under mu.
func (b *Backend) maintain(ctx context.Context, name string, attrs queue.Attributes) {
	now := b.now().UnixMilli()
	if err := b.promoteDelayed(ctx, name, now); err != nil {
		b.logger.Warn("delay promotion failed", zap.String("queue", name), zap.Error(err))
	}
	if err := b.reclaimExpired(ctx, name, attrs, now); err != nil {
		b.logger.Warn("lease reclaim failed", zap.String("queue", name), zap.Error(err))
	}
	if err := b.sweepDedup(ctx, name, now); err != nil {
		b.logger.Warn("dedup sweep failed", zap.String("queue", name), zap.Error(err))
	}
	if attrs.RetentionPeriod > 0 {
		if err := b.purgeExpired(ctx, name, now-attrs.RetentionPeriod.Milliseconds()); err != nil {
			b.logger.Warn("retention purge failed", zap.String("queue", name), zap.Error(err))
		}
	}
}

// promoteDelayed moves due delayed messages into the ready index.
func (b *Backend) promoteDelayed(ctx context.Context, name string, nowMs int64) error {
	prefix := delayPrefix(name)
	lower, upper := kv.PrefixBounds(prefix)
	iter, err := b.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := b.store.NewBatch()
	defer batch.Close()
	promoted := 0
	for ok := iter.First(); ok && promoted < maintainBatch; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8+16 {
			continue
		}
		fire := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		if fire > nowMs {
			break
		}
		var msgID [16]byte
		copy(msgID[:], key[len(key)-16:])
		group := string(iter.Value())
		if err := batch.Set(readyKey(name, group, msgID), nil, nil); err != nil {
			return err
		}
		if err := batch.Delete(key, nil); err != nil {
			return err
		}
		promoted++
	}
	if promoted == 0 {
		return nil
	}
	return b.store.CommitBatch(ctx, batch)
}

// reclaimExpired returns expired leases to the head of their group, or
// moves the message to the dead-letter queue once its delivery
// attempts reached the redrive threshold.
func (b *Backend) reclaimExpired(ctx context.Context, name string, attrs queue.Attributes, nowMs int64) error {
	prefix := leaseIdxPrefix(name)
	lower, upper := kv.PrefixBounds(prefix)
	iter, err := b.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := b.store.NewBatch()
	defer batch.Close()
	reclaimed := 0
	delta := map[string]uint32{}

	for ok := iter.First(); ok && reclaimed < maintainBatch; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8+1 {
			continue
		}
		expires := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		if expires > nowMs {
			break
		}
		receipt := string(key[len(prefix)+8:])
		_ = batch.Delete(key, nil)

		raw, err := b.store.Get(leaseKey(name, receipt))
		if errors.Is(err, kv.ErrNotFound) {
			continue // already acked; index entry was stale
		}
		if err != nil {
			return err
		}
		var ls lease
		if err := json.Unmarshal(raw, &ls); err != nil {
			_ = batch.Delete(leaseKey(name, receipt), nil)
			continue
		}
		_ = batch.Delete(leaseKey(name, receipt), nil)
		delta[ls.Group]++
		reclaimed++

		msgID, err := id.Parse(ls.MessageID)
		if err != nil {
			continue
		}
		raw, err = b.store.Get(msgKey(name, [16]byte(msgID)))
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		meta, body, err := decodeRecord(raw)
		if err != nil {
			_ = batch.Delete(msgKey(name, [16]byte(msgID)), nil)
			continue
		}

		if attrs.Redrive != nil && meta.ReceiveCount >= attrs.Redrive.MaxReceiveCount {
			if err := b.redrive(batch, name, attrs.Redrive.DeadLetterQueue, meta, body, nowMs); err != nil {
				b.logger.Warn("dead-letter redrive failed, returning message to queue",
					zap.String("queue", name), zap.String("message_id", meta.ID), zap.Error(err))
				_ = batch.Set(readyKey(name, ls.Group, [16]byte(msgID)), nil, nil)
				continue
			}
			b.logger.Info("message moved to dead-letter queue",
				zap.String("queue", name),
				zap.String("dlq", attrs.Redrive.DeadLetterQueue),
				zap.String("message_id", meta.ID),
				zap.Int("receive_count", meta.ReceiveCount))
			_ = batch.Delete(msgKey(name, [16]byte(msgID)), nil)
		} else {
			_ = batch.Set(readyKey(name, ls.Group, [16]byte(msgID)), nil, nil)
		}
	}

	for group, n := range delta {
		count := b.inflightCount(name, group)
		if count > n {
			count -= n
		} else {
			count = 0
		}
		if err := b.setInflightCount(batch, name, group, count); err != nil {
			return err
		}
	}
	if reclaimed == 0 && batch.Len() == 0 {
		return nil
	}
	return b.store.CommitBatch(ctx, batch)
}

// redrive appends a message to the dead-letter queue inside batch.
// The moved copy starts a fresh delivery count; its dedup id is the
// original message id, which is unique by construction.
func (b *Backend) redrive(batch *pebble.Batch, name, dlqName string, meta recordMeta, body []byte, nowMs int64) error {
	if ok, err := b.store.Has(cfgKey(dlqName)); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", queue.ErrQueueNotFound, dlqName)
	}
	moved := recordMeta{
		ID:       b.gen.Next().String(),
		GroupID:  meta.GroupID,
		DedupID:  meta.ID,
		SentAtMs: nowMs,
	}
	if len(meta.Attributes) > 0 {
		moved.Attributes = meta.Attributes
	}
	rec, err := encodeRecord(moved, body)
	if err != nil {
		return err
	}
	movedID, err := id.Parse(moved.ID)
	if err != nil {
		return err
	}
	if err := batch.Set(msgKey(dlqName, [16]byte(movedID)), rec, nil); err != nil {
		return err
	}
	return batch.Set(readyKey(dlqName, moved.GroupID, [16]byte(movedID)), nil, nil)
}

// sweepDedup drops deduplication entries whose window elapsed.
func (b *Backend) sweepDedup(ctx context.Context, name string, nowMs int64) error {
	prefix := dedupIdxPrefix(name)
	lower, upper := kv.PrefixBounds(prefix)
	iter, err := b.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := b.store.NewBatch()
	defer batch.Close()
	swept := 0
	for ok := iter.First(); ok && swept < maintainBatch; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8 {
			continue
		}
		expires := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		if expires > nowMs {
			break
		}
		_ = batch.Delete(append([]byte(nil), iter.Value()...), nil)
		_ = batch.Delete(key, nil)
		swept++
	}
	if swept == 0 {
		return nil
	}
	return b.store.CommitBatch(ctx, batch)
}

// purgeExpired removes ready messages sent before cutoffMs. Leased and
// delayed messages are left for their own lifecycle to resolve.
func (b *Backend) purgeExpired(ctx context.Context, name string, cutoffMs int64) error {
	if cutoffMs <= 0 {
		return nil
	}
	prefix := []byte(queuePrefix(name) + "msg/")
	lower, upper := kv.PrefixBounds(prefix)
	iter, err := b.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := b.store.NewBatch()
	defer batch.Close()
	purged := 0
	for ok := iter.First(); ok && purged < maintainBatch; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+16 {
			continue
		}
		var msgID [16]byte
		copy(msgID[:], key[len(key)-16:])
		meta, _, err := decodeRecord(iter.Value())
		if err != nil {
			_ = batch.Delete(key, nil)
			purged++
			continue
		}
		if meta.SentAtMs >= cutoffMs {
			continue
		}
		ready, err := b.store.Has(readyKey(name, meta.GroupID, msgID))
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		_ = batch.Delete(readyKey(name, meta.GroupID, msgID), nil)
		_ = batch.Delete(key, nil)
		purged++
	}
	if purged == 0 {
		return nil
	}
	return b.store.CommitBatch(ctx, batch)
}

// DeleteMessage acknowledges one delivery by receipt handle.
func (b *Backend) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	name, _, err := b.resolve(queueURL)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := b.store.Get(leaseKey(name, receiptHandle))
	if errors.Is(err, kv.ErrNotFound) {
		return queue.ErrUnknownReceipt
	}
	if err != nil {
		return err
	}
	var ls lease
	if err := json.Unmarshal(raw, &ls); err != nil {
		return err
	}
	msgID, err := id.Parse(ls.MessageID)
	if err != nil {
		return err
	}

	batch := b.store.NewBatch()
	defer batch.Close()
	_ = batch.Delete(leaseKey(name, receiptHandle), nil)
	_ = batch.Delete(leaseIdxKey(name, ls.ExpiresMs, receiptHandle), nil)
	_ = batch.Delete(msgKey(name, [16]byte(msgID)), nil)
	count := b.inflightCount(name, ls.Group)
	if count > 0 {
		count--
	}
	if err := b.setInflightCount(batch, name, ls.Group, count); err != nil {
		return err
	}
	return b.store.CommitBatch(ctx, batch)
}

// QueueStats reports attributes and approximate counts.
func (b *Backend) QueueStats(ctx context.Context, queueURL string) (queue.QueueStats, error) {
	name, attrs, err := b.resolve(queueURL)
	if err != nil {
		return queue.QueueStats{}, err
	}
	stats := queue.QueueStats{Name: name, Attributes: attrs}
	counts := []struct {
		prefix []byte
		dst    *int
	}{
		{readyPrefix(name), &stats.ApproxAvailable},
		{leasePrefix(name), &stats.ApproxInFlight},
		{delayPrefix(name), &stats.ApproxDelayed},
	}
	for _, c := range counts {
		lower, upper := kv.PrefixBounds(c.prefix)
		iter, err := b.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
		if err != nil {
			return queue.QueueStats{}, err
		}
		n := 0
		for ok := iter.First(); ok; ok = iter.Next() {
			n++
		}
		_ = iter.Close()
		*c.dst = n
	}
	return stats, nil
}

// TagQueue merges tags onto the queue.
func (b *Backend) TagQueue(ctx context.Context, queueURL string, tags map[string]string) error {
	name, _, err := b.resolve(queueURL)
	if err != nil {
		return err
	}
	existing := map[string]string{}
	if raw, err := b.store.Get(tagsKey(name)); err == nil {
		_ = json.Unmarshal(raw, &existing)
	} else if !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	for k, v := range tags {
		existing[k] = v
	}
	raw, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	return b.store.Set(tagsKey(name), raw)
}

// QueueTags lists the queue's tags.
func (b *Backend) QueueTags(ctx context.Context, queueURL string) (map[string]string, error) {
	name, _, err := b.resolve(queueURL)
	if err != nil {
		return nil, err
	}
	tags := map[string]string{}
	raw, err := b.store.Get(tagsKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return tags, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// DeleteQueue removes the queue and everything under it.
func (b *Backend) DeleteQueue(ctx context.Context, queueURL string) error {
	name, _, err := b.resolve(queueURL)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.DeletePrefix(ctx, []byte(queuePrefix(name)))
}

// inflightCount reads the leased-message count for a group.
func (b *Backend) inflightCount(name, group string) uint32 {
	raw, err := b.store.Get(inflightKey(name, group))
	if err != nil || len(raw) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(raw)
}

// setInflightCount writes (or clears) a group's leased-message count
// inside batch.
func (b *Backend) setInflightCount(batch *pebble.Batch, name, group string, count uint32) error {
	if count == 0 {
		return batch.Delete(inflightKey(name, group), nil)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], count)
	return batch.Set(inflightKey(name, group), buf[:], nil)
}
