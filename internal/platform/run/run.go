package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// WithSignals runs every start function until SIGINT/SIGTERM or until one of
// them fails, and returns the process exit code. Each function must return
// once its context is cancelled.
func (r *Runner) WithSignals(start ...func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range start {
		g.Go(func() error { return fn(gctx) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		r.Logger.Info("shutdown signal received")
		return 0
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, grpc.ErrServerStopped) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
