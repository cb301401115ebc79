package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
)

func open(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	s, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresDataDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatal("expected error for empty DataDir")
	}
}

func TestSetGetDelete(t *testing.T) {
	s := open(t, Options{})

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("value: %q", got)
	}

	ok, err := s.Has([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("has: %v %v", ok, err)
	}

	if err := s.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err = s.Has([]byte("k"))
	if err != nil || ok {
		t.Fatalf("has after delete: %v %v", ok, err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := open(t, Options{})
	if err := s.Set([]byte("k"), []byte("abc")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got[0] = 'x'
	again, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(again) != "abc" {
		t.Fatalf("stored value mutated: %q", again)
	}
}

func TestBatchCommitIsAtomic(t *testing.T) {
	s := open(t, Options{})
	ctx := context.Background()

	b := s.NewBatch()
	for _, k := range []string{"a", "b", "c"} {
		if err := b.Set([]byte(k), []byte("1"), nil); err != nil {
			t.Fatalf("batch set: %v", err)
		}
	}
	if err := s.CommitBatch(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	for _, k := range []string{"a", "b", "c"} {
		if ok, _ := s.Has([]byte(k)); !ok {
			t.Fatalf("missing %q after commit", k)
		}
	}
}

func TestCommitBatchHonorsContext(t *testing.T) {
	s := open(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := s.NewBatch()
	defer b.Close()
	if err := b.Set([]byte("k"), []byte("v"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := s.CommitBatch(ctx, b); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCommitNilBatch(t *testing.T) {
	s := open(t, Options{})
	if err := s.CommitBatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil batch")
	}
}

func TestPrefixBounds(t *testing.T) {
	lower, upper := PrefixBounds([]byte("q/orders/"))
	if string(lower) != "q/orders/" {
		t.Fatalf("lower: %q", lower)
	}
	if string(upper) != "q/orders/\xff" {
		t.Fatalf("upper: %q", upper)
	}
}

func TestDeletePrefix(t *testing.T) {
	s := open(t, Options{})
	ctx := context.Background()

	for _, k := range []string{"q/a/1", "q/a/2", "q/b/1"} {
		if err := s.Set([]byte(k), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := s.DeletePrefix(ctx, []byte("q/a/")); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}

	iter, err := s.NewIter(&pebble.IterOptions{})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer iter.Close()
	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if len(keys) != 1 || keys[0] != "q/b/1" {
		t.Fatalf("remaining keys: %v", keys)
	}
}

func TestSyncModes(t *testing.T) {
	for _, mode := range []SyncMode{SyncModeAlways, SyncModeInterval, SyncModeNever} {
		s := open(t, Options{DataDir: t.TempDir(), Sync: mode})
		if err := s.Set([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("mode %d set: %v", mode, err)
		}
		if _, err := s.Get([]byte("k")); err != nil {
			t.Fatalf("mode %d get: %v", mode, err)
		}
	}
}

func TestCloseNil(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
