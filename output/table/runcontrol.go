package table

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Runner is the part of the pipeline runner RunControl drives.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// RunControl starts and stops a Runner from the GRIP/run table entry.
type RunControl struct {
	watcher    Watcher
	runner     Runner
	headless   bool
	retryDelay time.Duration
	logger     *slog.Logger
}

// RunControlOption configures a RunControl.
type RunControlOption func(*RunControl)

// WithHeadless enables control. Outside headless mode the entry is ignored.
func WithHeadless(headless bool) RunControlOption {
	return func(rc *RunControl) { rc.headless = headless }
}

// WithRunControlLogger sets the logger.
func WithRunControlLogger(logger *slog.Logger) RunControlOption {
	return func(rc *RunControl) {
		if logger != nil {
			rc.logger = logger
		}
	}
}

// WithWatchRetryDelay sets the delay before a failed watch is restarted.
func WithWatchRetryDelay(d time.Duration) RunControlOption {
	return func(rc *RunControl) {
		if d > 0 {
			rc.retryDelay = d
		}
	}
}

// NewRunControl creates a controller for runner.
func NewRunControl(watcher Watcher, runner Runner, opts ...RunControlOption) *RunControl {
	rc := &RunControl{
		watcher:    watcher,
		runner:     runner,
		retryDelay: time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.logger = rc.logger.With("component", "run_control", "key", RunKey)
	return rc
}

// Run watches the run entry until ctx is done. A failed watch is restarted.
func (rc *RunControl) Run(ctx context.Context) error {
	for {
		err := rc.watcher.Watch(ctx, RunKey, func(value []byte) { rc.Apply(ctx, value) })
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			rc.logger.Warn("run entry watch failed, restarting", "error", err, "delay", rc.retryDelay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rc.retryDelay):
		}
	}
}

// Apply acts on one value of the run entry. Runners started here use ctx.
func (rc *RunControl) Apply(ctx context.Context, value []byte) {
	if !rc.headless {
		return
	}

	var run bool
	if err := json.Unmarshal(value, &run); err != nil {
		rc.logger.Warn("table value GRIP/run should be a boolean", "value", string(value))
		return
	}

	switch {
	case run && !rc.runner.Running():
		rc.logger.Info("starting pipeline from table")
		if err := rc.runner.Start(ctx); err != nil {
			rc.logger.Warn("start pipeline failed", "error", err)
		}
	case !run && rc.runner.Running():
		rc.logger.Info("stopping pipeline from table")
		if err := rc.runner.Stop(); err != nil {
			rc.logger.Warn("stop pipeline failed", "error", err)
		}
	}
}
