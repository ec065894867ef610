package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
)

// Runner ticks a pipeline on a fixed interval.
type Runner struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a stopped runner. A non-positive interval defaults to 50ms.
func NewRunner(p *Pipeline, interval time.Duration, opts ...Option) *Runner {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	o := buildOptions(opts)
	return &Runner{
		pipeline: p,
		interval: interval,
		logger:   o.logger.With("component", "runner"),
		metrics:  o.metrics,
	}
}

// Start begins ticking until Stop is called or ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(runCtx, r.done)

	r.metrics.RecordRunning(true)
	r.logger.Info("pipeline runner started", "interval", r.interval)
	return nil
}

// Stop stops ticking and waits for the current tick to finish.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return errors.ErrNotStarted
	}
	cancel()
	<-done

	r.metrics.RecordRunning(false)
	r.logger.Info("pipeline runner stopped")
	return nil
}

// Running reports whether the runner is ticking.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.pipeline.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
