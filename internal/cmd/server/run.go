package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	cfgpkg "github.com/dynamisch-arpit/RT-shared-component/internal/config"
	"github.com/dynamisch-arpit/RT-shared-component/internal/runtime"
	httpserver "github.com/dynamisch-arpit/RT-shared-component/internal/server/http"
)

type Options struct {
	Config cfgpkg.Config
	Logger *zap.Logger
	// DisableWorker skips the in-process consumer; messages then wait
	// for an external drain.
	DisableWorker bool
	// DisableRetention skips the scheduled purge job.
	DisableRetention bool
}

// Run starts the runtime, worker, retention schedule, and HTTP server,
// and blocks until ctx is cancelled. The first termination signal
// starts a graceful drain; a second one terminates the process
// immediately.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers
	// without signal handling still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting audit pipeline server",
		zap.String("http", opts.Config.HTTPAddr),
		zap.String("queue", rt.Queue().Name()),
		zap.String("data_dir", opts.Config.DataDir))

	if !opts.DisableRetention {
		if err := rt.StartRetention(); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	if !opts.DisableWorker {
		w := rt.NewWorker()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(sctx); err != nil {
				logger.Error("worker exited", zap.Error(err))
			}
		}()
	}

	hsrv := httpserver.New(rt, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.Config.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server exited", zap.Error(err))
		}
	}()

	<-sctx.Done()
	// Unregister the signal handler once the drain starts: the default
	// disposition returns, so a second SIGINT/SIGTERM kills the process
	// instead of waiting on a stuck shutdown.
	stop()
	// Shut servers down before the runtime so in-flight requests do not
	// race a closing store.
	hsrv.Close()
	wg.Wait()
	return nil
}
