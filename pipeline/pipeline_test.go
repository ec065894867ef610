package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
)

type fakeStep struct {
	name     string
	in       *Socket[string]
	perform  func(ctx context.Context) error
	performs atomic.Int32
	cleanups atomic.Int32

	mu    sync.Mutex
	order *[]string
}

func newFakeStep(name string, perform func(context.Context) error) *fakeStep {
	return &fakeStep{name: name, in: NewSocket("Name", ""), perform: perform}
}

func (f *fakeStep) Name() string    { return f.name }
func (f *fakeStep) Inputs() []Input { return []Input{f.in} }
func (f *fakeStep) CleanUp()        { f.cleanups.Add(1) }

func (f *fakeStep) Perform(ctx context.Context) error {
	f.performs.Add(1)
	if f.order != nil {
		f.mu.Lock()
		*f.order = append(*f.order, f.name)
		f.mu.Unlock()
	}
	if f.perform == nil {
		return nil
	}
	return f.perform(ctx)
}

type countingListener struct {
	started, stopped atomic.Int32
}

func (l *countingListener) OnRunStarted() { l.started.Add(1) }
func (l *countingListener) OnRunStopped() { l.stopped.Add(1) }

func TestPipeline_TickRunsStepsInOrder(t *testing.T) {
	p := New()
	var order []string
	a := newFakeStep("a", nil)
	b := newFakeStep("b", nil)
	a.order, b.order = &order, &order
	p.AddStep(a)
	p.AddStep(b)

	listener := &countingListener{}
	p.AddRunListener(listener)

	p.Tick(context.Background())
	p.Tick(context.Background())

	assert.Equal(t, []string{"a", "b", "a", "b"}, order)
	assert.Equal(t, int32(2), listener.started.Load())
	assert.Equal(t, int32(2), listener.stopped.Load())
}

func TestPipeline_StepErrorsGoToWitness(t *testing.T) {
	p := New(WithMetrics(metric.NewMetricsRegistry().CoreMetrics()))
	fail := true
	failing := p.AddStep(newFakeStep("failing", func(context.Context) error {
		if fail {
			return errors.WrapInvalid(errors.ErrEmptyName, "Step", "Perform", "read publish name")
		}
		return nil
	}))
	healthy := newFakeStep("healthy", nil)
	p.AddStep(healthy)

	p.Tick(context.Background())

	assert.Error(t, failing.Witness.Err())
	assert.True(t, errors.IsInvalid(failing.Witness.Err()))
	assert.Equal(t, int32(1), healthy.performs.Load(), "a failing step does not stop the run")

	fail = false
	p.Tick(context.Background())
	assert.NoError(t, failing.Witness.Err())
	assert.Equal(t, 1, failing.Witness.Health().ErrorCount)
}

func TestPipeline_PanicIsRecordedAsFatal(t *testing.T) {
	p := New()
	h := p.AddStep(newFakeStep("panics", func(context.Context) error {
		panic("kaboom")
	}))

	assert.NotPanics(t, func() { p.Tick(context.Background()) })
	require.Error(t, h.Witness.Err())
	assert.True(t, errors.IsFatal(h.Witness.Err()))
	assert.Contains(t, h.Witness.Err().Error(), "kaboom")
}

func TestPipeline_RemoveStepCleansUpOnce(t *testing.T) {
	p := New()
	step := newFakeStep("a", nil)
	h := p.AddStep(step)

	require.NoError(t, p.RemoveStep(h.ID))
	assert.Equal(t, int32(1), step.cleanups.Load())
	assert.Empty(t, p.Steps())

	err := p.RemoveStep(h.ID)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, int32(1), step.cleanups.Load())
}

func TestPipeline_RemoveStepWaitsForTick(t *testing.T) {
	p := New()
	entered := make(chan struct{})
	release := make(chan struct{})
	step := newFakeStep("slow", func(context.Context) error {
		close(entered)
		<-release
		return nil
	})
	h := p.AddStep(step)

	go p.Tick(context.Background())
	<-entered

	removed := make(chan struct{})
	go func() {
		_ = p.RemoveStep(h.ID)
		close(removed)
	}()

	select {
	case <-removed:
		t.Fatal("step removed during a tick")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, step.cleanups.Load())

	close(release)
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("step not removed after the tick")
	}
	assert.Equal(t, int32(1), step.cleanups.Load())
}

func TestPipeline_CloseCleansUpEveryStep(t *testing.T) {
	p := New()
	a, b := newFakeStep("a", nil), newFakeStep("b", nil)
	p.AddStep(a)
	p.AddStep(b)

	p.Close()
	assert.Empty(t, p.Steps())
	assert.Equal(t, int32(1), a.cleanups.Load())
	assert.Equal(t, int32(1), b.cleanups.Load())
}

func TestHandle_Input(t *testing.T) {
	p := New()
	h := p.AddStep(newFakeStep("a", nil))

	in, ok := h.Input("Name")
	require.True(t, ok)
	require.NoError(t, in.SetValue("target"))

	_, ok = h.Input("Missing")
	assert.False(t, ok)
}

func TestPipeline_CancelledContextSkipsSteps(t *testing.T) {
	p := New()
	step := newFakeStep("a", nil)
	p.AddStep(step)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Tick(ctx)
	assert.Zero(t, step.performs.Load())
}

var errSentinel = stderrors.New("sentinel")

func TestPipeline_ErrorClassPreserved(t *testing.T) {
	p := New()
	h := p.AddStep(newFakeStep("a", func(context.Context) error {
		return errors.WrapTransient(errSentinel, "Store", "Put", "write")
	}))
	p.Tick(context.Background())
	assert.ErrorIs(t, h.Witness.Err(), errSentinel)
	assert.True(t, errors.IsTransient(h.Witness.Err()))
}
