// Package worker runs detached side effects on a bounded goroutine pool.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ErrPoolClosed is returned when submitting to a released pool.
var ErrPoolClosed = errors.New("worker: pool closed")

// Task receives the pool's lifecycle context bounded by the task timeout.
type Task func(ctx context.Context)

// Pool wraps ants.Pool. Tasks outlive the request that submitted them but not the pool.
type Pool struct {
	pool        *ants.Pool
	ctx         context.Context
	cancel      context.CancelFunc
	taskTimeout time.Duration
	logger      *slog.Logger
}

// Config sizes the pool.
type Config struct {
	Size        int
	TaskTimeout time.Duration
	Logger      *slog.Logger
}

// New builds a non-blocking pool. A full pool rejects work instead of stalling callers.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 16
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p, err := ants.NewPool(cfg.Size,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(30*time.Second),
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker task panic", slog.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, err
	}
	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Pool{pool: p, ctx: poolCtx, cancel: cancel, taskTimeout: cfg.TaskTimeout, logger: logger}, nil
}

// Go submits task for asynchronous execution.
func (p *Pool) Go(task Task) error {
	if p == nil || p.pool == nil || p.pool.IsClosed() {
		return ErrPoolClosed
	}
	return p.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(p.ctx, p.taskTimeout)
		defer cancel()
		task(ctx)
	})
}

// Running reports the number of busy workers.
func (p *Pool) Running() int {
	if p == nil || p.pool == nil {
		return 0
	}
	return p.pool.Running()
}

// Close waits up to timeout for in-flight tasks, then cancels the rest.
func (p *Pool) Close(timeout time.Duration) {
	if p == nil || p.pool == nil {
		return
	}
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		p.logger.Warn("worker pool release", slog.Any("error", err))
	}
	p.cancel()
}
