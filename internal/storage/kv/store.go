package kv

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// SyncMode controls when committed batches are fsynced to the WAL.
type SyncMode int

const (
	SyncModeUnspecified SyncMode = iota
	// SyncModeAlways fsyncs the WAL on every committed batch.
	SyncModeAlways
	// SyncModeInterval lets Pebble coalesce WAL syncs within the
	// configured interval (group commit).
	SyncModeInterval
	// SyncModeNever leaves syncing entirely to Pebble's own policy.
	SyncModeNever
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = pebble.ErrNotFound

// Options configures a Store.
type Options struct {
	// DataDir is the Pebble database directory. Required.
	DataDir string
	// Sync selects the WAL fsync policy. Defaults to a short
	// group-commit interval.
	Sync SyncMode
	// SyncInterval applies when Sync is SyncModeInterval.
	SyncInterval time.Duration
}

// Store is a thin wrapper over a Pebble database.
type Store struct {
	db        *pebble.DB
	writeSync bool
}

// Open creates or opens the store at opts.DataDir.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("kv: Options.DataDir is required")
	}

	po := &pebble.Options{}
	switch opts.Sync {
	case SyncModeAlways:
		// Sync requested per commit; nothing to configure here.
	case SyncModeInterval:
		iv := opts.SyncInterval
		if iv <= 0 {
			iv = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return iv }
	case SyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, writeSync: opts.Sync == SyncModeAlways}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set writes a single key respecting the fsync policy.
func (s *Store) Set(key, value []byte) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return s.CommitBatch(context.Background(), b)
}

// Delete removes a single key respecting the fsync policy.
func (s *Store) Delete(key []byte) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return s.CommitBatch(context.Background(), b)
}

// NewBatch creates a batch for atomic multi-key updates.
func (s *Store) NewBatch() *pebble.Batch {
	return s.db.NewBatch()
}

// CommitBatch commits b with the configured fsync policy.
func (s *Store) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("kv: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mode := pebble.NoSync
	if s.writeSync {
		mode = pebble.Sync
	}
	return b.Commit(mode)
}

// NewIter creates a raw Pebble iterator.
func (s *Store) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return s.db.NewIter(opts)
}

// PrefixBounds returns [lower, upper) iterator bounds covering every key
// that starts with prefix.
func PrefixBounds(prefix []byte) ([]byte, []byte) {
	lower := append([]byte(nil), prefix...)
	upper := append(append([]byte(nil), prefix...), 0xFF)
	return lower, upper
}

// DeletePrefix removes every key under prefix in one batch.
func (s *Store) DeletePrefix(ctx context.Context, prefix []byte) error {
	lower, upper := PrefixBounds(prefix)
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(lower, upper, nil); err != nil {
		return err
	}
	return s.CommitBatch(ctx, b)
}
