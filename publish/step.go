package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/pipeline"
)

// Socket labels of a publish step.
const (
	DataLabel = "Data"
	NameLabel = "Name"
)

// ToggleLabel returns the label of the enable toggle for key.
func ToggleLabel(key string) string {
	if key == "" {
		return "Publish"
	}
	return "Publish " + key
}

// Identity is the converter for data that is already publishable.
func Identity[P any](p P) P {
	return p
}

type toggle[P any] struct {
	provider ValueProvider[P]
	enabled  *pipeline.Socket[bool]
}

// Step publishes a pipeline value of type D through a publishable adapter P.
type Step[D, P any] struct {
	name      string
	convert   func(D) P
	publisher Publisher
	logger    *slog.Logger

	data        *pipeline.Socket[D]
	publishName *pipeline.Socket[string]
	toggles     []toggle[P]

	mu     sync.Mutex
	closed bool
}

// StepOption configures a Step.
type StepOption func(*stepConfig)

type stepConfig struct {
	name   string
	logger *slog.Logger
}

// WithStepName sets the operation name reported by Name.
func WithStepName(name string) StepOption {
	return func(c *stepConfig) { c.name = name }
}

// WithStepLogger sets the step logger.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(c *stepConfig) { c.logger = logger }
}

// NewStep discovers the providers of P, asks manager for a publisher over their
// keys and builds the step's sockets. Every toggle starts enabled.
func NewStep[D, P any](manager Manager, convert func(D) P, opts ...StepOption) (*Step[D, P], error) {
	if manager == nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: nil manager", errors.ErrMissingConfig),
			"Step", "NewStep", "create publish step")
	}
	if convert == nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: nil converter", errors.ErrMissingConfig),
			"Step", "NewStep", "create publish step")
	}

	typeName := TypeName[P]()
	cfg := stepConfig{
		name:   manager.Protocol().Acronym + "Publish " + typeName,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	providers, err := Discover[P]()
	if err != nil {
		return nil, err
	}

	publisher, err := manager.CreatePublisher(typeName, KeysOf(providers))
	if err != nil {
		return nil, errors.Wrap(err, "Step", "NewStep", "create "+manager.Protocol().ID+" publisher")
	}

	var zero D
	s := &Step[D, P]{
		name:        cfg.name,
		convert:     convert,
		publisher:   publisher,
		logger:      cfg.logger.With("step", cfg.name),
		data:        pipeline.NewSocket(DataLabel, zero),
		publishName: pipeline.NewSocket(NameLabel, ""),
		toggles:     make([]toggle[P], 0, len(providers)),
	}
	for _, p := range providers {
		s.toggles = append(s.toggles, toggle[P]{
			provider: p,
			enabled:  pipeline.NewSocket(ToggleLabel(p.Key), true),
		})
	}
	return s, nil
}

// Name implements pipeline.Step.
func (s *Step[D, P]) Name() string {
	return s.name
}

// Data is the data input.
func (s *Step[D, P]) Data() *pipeline.Socket[D] {
	return s.data
}

// PublishName is the name input.
func (s *Step[D, P]) PublishName() *pipeline.Socket[string] {
	return s.publishName
}

// Toggle returns the enable toggle for key.
func (s *Step[D, P]) Toggle(key string) (*pipeline.Socket[bool], bool) {
	for _, t := range s.toggles {
		if t.provider.Key == key {
			return t.enabled, true
		}
	}
	return nil, false
}

// Inputs implements pipeline.Step: data, name, then one toggle per provider in
// weight order.
func (s *Step[D, P]) Inputs() []pipeline.Input {
	inputs := make([]pipeline.Input, 0, len(s.toggles)+2)
	inputs = append(inputs, s.data, s.publishName)
	for _, t := range s.toggles {
		inputs = append(inputs, t.enabled)
	}
	return inputs
}

// Perform implements pipeline.Step.
func (s *Step[D, P]) Perform(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WrapInvalid(errors.ErrPublisherClosed, "Step", "Perform", "publish")
	}

	name := s.publishName.Get()
	if name == "" {
		return errors.WrapInvalid(errors.ErrEmptyName, "Step", "Perform", "read publish name")
	}

	value := s.convert(s.data.Get())

	if err := s.publisher.SetName(name); err != nil {
		return err
	}

	out := make(map[string]Value, len(s.toggles))
	for _, t := range s.toggles {
		if t.enabled.Get() {
			out[t.provider.Key] = t.provider.Get(value)
		}
	}
	return s.publisher.Publish(out)
}

// CleanUp implements pipeline.Step. It closes the publisher once.
func (s *Step[D, P]) CleanUp() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.publisher.Close()
	s.logger.Debug("publish step cleaned up", "name", s.publishName.Get())
}
