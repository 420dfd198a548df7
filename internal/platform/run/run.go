package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const DefaultShutdownTimeout = 10 * time.Second

// Runner owns a service's lifetime: it waits for a termination signal and
// then runs the shutdown hooks, each under its own deadline.
type Runner struct {
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
}

func New(log *zap.Logger, shutdownTimeout time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Runner{Logger: log, ShutdownTimeout: shutdownTimeout}
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives, and
// returns the process exit code. The ctx handed to start is cancelled either
// way, so the session reaper and consumers stop before the hooks run.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		return 0
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			return 0
		}
		r.Logger.Error("service exited with error", zap.Error(err))
		return 1
	}
}

// Graceful calls shutdown with a fresh deadline and logs failures.
func (r *Runner) Graceful(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()
	start := time.Now()
	if err := shutdown(ctx); err != nil {
		r.Logger.Warn("graceful shutdown failed", zap.String("component", name), zap.Error(err))
		return
	}
	r.Logger.Debug("component stopped", zap.String("component", name), zap.Duration("took", time.Since(start)))
}

func Exit(code int) {
	os.Exit(code)
}
