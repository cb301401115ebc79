package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
	"github.com/dynamisch-arpit/RT-shared-component/internal/queue/local"
	"github.com/dynamisch-arpit/RT-shared-component/internal/storage/kv"
)

func newQueue(t *testing.T, withDLQ bool) *queue.Client {
	t.Helper()
	store, err := kv.Open(kv.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	c := queue.NewClient(local.NewBackend(store, zap.NewNop()), "jobs", zap.NewNop())
	var dlq *queue.DLQSpec
	if withDLQ {
		dlq = &queue.DLQSpec{MaxReceiveCount: 5}
	}
	if err := c.Create(context.Background(), queue.Attributes{VisibilityTimeout: 100 * time.Millisecond}, dlq); err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

// runUntil runs the worker until check passes or the deadline hits.
func runUntil(t *testing.T, w *Worker, check func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(35 * time.Second):
		t.Fatal("worker did not stop")
	}
	if !check() {
		t.Fatal("condition not reached")
	}
}

func TestWorkerProcessesAndAcks(t *testing.T) {
	c := newQueue(t, true)
	ctx := context.Background()
	if _, err := c.Send(ctx, queue.SendRequest{Body: []byte("job-1"), GroupID: "g"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var mu sync.Mutex
	var got []string
	w := New(c, func(ctx context.Context, msg *queue.Message) error {
		mu.Lock()
		got = append(got, string(msg.Body))
		mu.Unlock()
		return nil
	}, Options{WaitSeconds: 1}, zap.NewNop())

	runUntil(t, w, func() bool {
		st, err := c.Stats(ctx)
		return err == nil && st.ApproxAvailable == 0 && st.ApproxInFlight == 0
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("handled: %v", got)
	}
}

func TestWorkerShortPollingIdles(t *testing.T) {
	c := newQueue(t, true)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	w := New(c, func(ctx context.Context, msg *queue.Message) error {
		mu.Lock()
		got = append(got, string(msg.Body))
		mu.Unlock()
		return nil
	}, Options{PollingType: PollingShort, IdleDelay: 10 * time.Millisecond}, zap.NewNop())
	if w.opts.WaitSeconds != 0 {
		t.Fatalf("short polling must not long-poll, wait=%d", w.opts.WaitSeconds)
	}

	// Start against an empty queue so the loop idles before work arrives.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = c.Send(ctx, queue.SendRequest{Body: []byte("late"), GroupID: "g"})
	}()
	runUntil(t, w, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestOptionsDefaultIdleDelay(t *testing.T) {
	o := Options{}.withDefaults()
	if o.IdleDelay != 250*time.Millisecond {
		t.Fatalf("idle delay default: %v", o.IdleDelay)
	}
	o = Options{IdleDelay: time.Second}.withDefaults()
	if o.IdleDelay != time.Second {
		t.Fatalf("idle delay override: %v", o.IdleDelay)
	}
}

func TestWorkerPreservesGroupOrder(t *testing.T) {
	c := newQueue(t, true)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Send(ctx, queue.SendRequest{Body: []byte(fmt.Sprintf("job-%d", i)), GroupID: "g"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var mu sync.Mutex
	var got []string
	w := New(c, func(ctx context.Context, msg *queue.Message) error {
		mu.Lock()
		got = append(got, string(msg.Body))
		mu.Unlock()
		return nil
	}, Options{WaitSeconds: 1, Concurrency: 4}, zap.NewNop())

	runUntil(t, w, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	for i, b := range got {
		if b != fmt.Sprintf("job-%d", i) {
			t.Fatalf("order violated: %v", got)
		}
	}
}

func TestWorkerDeadLettersAfterMaxRetries(t *testing.T) {
	c := newQueue(t, true)
	ctx := context.Background()
	if _, err := c.Send(ctx, queue.SendRequest{Body: []byte("poison"), GroupID: "g"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var failures int
	var mu sync.Mutex
	w := New(c, func(ctx context.Context, msg *queue.Message) error {
		return errors.New("boom")
	}, Options{
		WaitSeconds: 1,
		MaxRetries:  2,
		ErrorHandler: func(ctx context.Context, msg *queue.Message, err error) {
			mu.Lock()
			failures++
			mu.Unlock()
		},
	}, zap.NewNop())

	dlq, err := c.DLQFor(ctx)
	if err != nil || dlq == nil {
		t.Fatalf("dlq: %v", err)
	}
	runUntil(t, w, func() bool {
		st, err := dlq.Stats(ctx)
		return err == nil && st.ApproxAvailable == 1
	})

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.ApproxAvailable != 0 || st.ApproxInFlight != 0 {
		t.Fatalf("primary queue should be empty: %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if failures < 2 {
		t.Fatalf("expected at least 2 failed attempts, got %d", failures)
	}
}

func TestWorkerPanicCountsAsFailure(t *testing.T) {
	c := newQueue(t, true)
	ctx := context.Background()
	if _, err := c.Send(ctx, queue.SendRequest{Body: []byte("boom"), GroupID: "g"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var mu sync.Mutex
	var observed error
	w := New(c, func(ctx context.Context, msg *queue.Message) error {
		panic("handler exploded")
	}, Options{
		WaitSeconds: 1,
		MaxRetries:  1,
		ErrorHandler: func(ctx context.Context, msg *queue.Message, err error) {
			mu.Lock()
			observed = err
			mu.Unlock()
		},
	}, zap.NewNop())

	dlq, err := c.DLQFor(ctx)
	if err != nil || dlq == nil {
		t.Fatalf("dlq: %v", err)
	}
	runUntil(t, w, func() bool {
		st, err := dlq.Stats(ctx)
		return err == nil && st.ApproxAvailable == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if observed == nil {
		t.Fatal("error handler not invoked")
	}
}

func TestProcessDLQ(t *testing.T) {
	c := newQueue(t, true)
	ctx := context.Background()
	dlq, err := c.DLQFor(ctx)
	if err != nil || dlq == nil {
		t.Fatalf("dlq: %v", err)
	}
	if _, err := dlq.Send(ctx, queue.SendRequest{Body: []byte("stuck"), GroupID: "g"}); err != nil {
		t.Fatalf("seed dlq: %v", err)
	}

	w := New(c, func(ctx context.Context, msg *queue.Message) error {
		return errors.New("unused primary handler")
	}, Options{}, zap.NewNop())

	results, err := w.ProcessDLQ(ctx, func(ctx context.Context, msg *queue.Message) error {
		if string(msg.Body) != "stuck" {
			t.Fatalf("body: %s", msg.Body)
		}
		return nil
	}, 10)
	if err != nil {
		t.Fatalf("process dlq: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("results: %+v", results)
	}
	st, err := dlq.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.ApproxAvailable != 0 || st.ApproxInFlight != 0 {
		t.Fatalf("dlq should be drained: %+v", st)
	}
}

func TestProcessDLQWithoutDLQ(t *testing.T) {
	c := newQueue(t, false)
	w := New(c, func(ctx context.Context, msg *queue.Message) error { return nil }, Options{}, zap.NewNop())
	if _, err := w.ProcessDLQ(context.Background(), nil, 10); !errors.Is(err, queue.ErrNoDLQ) {
		t.Fatalf("expected ErrNoDLQ, got %v", err)
	}
}
