package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
)

// Step is one unit of pipeline work.
type Step interface {
	// Name identifies the kind of step, for logs and metrics.
	Name() string
	// Inputs lists the configurable sockets in display order.
	Inputs() []Input
	// Perform runs the step once with the current socket values.
	Perform(ctx context.Context) error
	// CleanUp releases the step's resources. The pipeline calls it exactly once.
	CleanUp()
}

// RunListener is notified around every pipeline tick.
type RunListener interface {
	OnRunStarted()
	OnRunStopped()
}

// Handle is a step as placed in a pipeline.
type Handle struct {
	ID      string
	Step    Step
	Witness *Witness
}

// Input returns the step input with the given label.
func (h *Handle) Input(label string) (Input, bool) {
	for _, in := range h.Step.Inputs() {
		if in.Label() == label {
			return in, true
		}
	}
	return nil, false
}

// Pipeline runs its steps sequentially, once per Tick.
type Pipeline struct {
	mu        sync.RWMutex
	steps     []*Handle
	listeners []RunListener

	// runMu serializes ticks with step removal.
	runMu sync.Mutex

	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Pipeline or Runner.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metric.Metrics
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records runs and step errors.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	o := buildOptions(opts)
	return &Pipeline{
		logger:  o.logger.With("component", "pipeline"),
		metrics: o.metrics,
	}
}

// AddStep appends a step and returns its handle.
func (p *Pipeline) AddStep(step Step) *Handle {
	h := &Handle{
		ID:      uuid.NewString(),
		Step:    step,
		Witness: &Witness{},
	}

	p.mu.Lock()
	p.steps = append(p.steps, h)
	p.mu.Unlock()

	p.logger.Debug("step added", "step", step.Name(), "id", h.ID)
	return h
}

// RemoveStep removes the step with the given id and cleans it up. It waits for a
// running tick to finish first.
func (p *Pipeline) RemoveStep(id string) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	var removed *Handle
	for i, h := range p.steps {
		if h.ID == id {
			removed = h
			p.steps = append(p.steps[:i:i], p.steps[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if removed == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: step %s", errors.ErrInvalidData, id),
			"Pipeline", "RemoveStep", "find step")
	}

	p.cleanUp(removed)
	p.logger.Debug("step removed", "step", removed.Step.Name(), "id", id)
	return nil
}

// Steps returns the current steps in order.
func (p *Pipeline) Steps() []*Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Handle, len(p.steps))
	copy(out, p.steps)
	return out
}

// AddRunListener registers l for tick notifications.
func (p *Pipeline) AddRunListener(l RunListener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// Tick performs every step once in order. Step errors are recorded on the step's
// witness and never returned.
func (p *Pipeline) Tick(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.RLock()
	steps := make([]*Handle, len(p.steps))
	copy(steps, p.steps)
	listeners := make([]RunListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, l := range listeners {
		l.OnRunStarted()
	}

	start := time.Now()
	for _, h := range steps {
		if ctx.Err() != nil {
			break
		}
		p.perform(ctx, h)
	}
	p.metrics.RecordRun(time.Since(start))

	for _, l := range listeners {
		l.OnRunStopped()
	}
}

func (p *Pipeline) perform(ctx context.Context, h *Handle) {
	err := p.safePerform(ctx, h)
	if err == nil {
		h.Witness.Clear()
		return
	}

	h.Witness.Flag(err)
	class := errors.Classify(err)
	p.metrics.RecordStepError(h.Step.Name(), class.String())
	p.logger.Warn("step failed", "step", h.Step.Name(), "id", h.ID, "class", class.String(), "error", err)
}

func (p *Pipeline) safePerform(ctx context.Context, h *Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("step panicked", "step", h.Step.Name(), "id", h.ID, "panic", r, "stack", string(debug.Stack()))
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), h.Step.Name(), "Perform", "perform step")
		}
	}()
	return h.Step.Perform(ctx)
}

func (p *Pipeline) cleanUp(h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("step cleanup panicked", "step", h.Step.Name(), "id", h.ID, "panic", r)
		}
	}()
	h.Step.CleanUp()
}

// Close removes and cleans up every step.
func (p *Pipeline) Close() {
	for _, h := range p.Steps() {
		_ = p.RemoveStep(h.ID)
	}
}
