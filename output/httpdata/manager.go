package httpdata

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/publish"
)

// Protocol describes the HTTP back end.
var Protocol = publish.Protocol{ID: "http", Name: "HTTP", Acronym: "HTTP"}

// Manager creates publishers that serve their values through a DataHandler.
type Manager struct {
	handler *DataHandler
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewManager creates a manager over handler. A nil registry disables metrics.
func NewManager(handler *DataHandler, logger *slog.Logger, registry *metric.MetricsRegistry) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{handler: handler, logger: logger.With("component", "http")}
	if registry != nil {
		m.metrics = registry.CoreMetrics()
	}
	return m
}

// NewFactory returns a registry factory for a manager over handler.
func NewFactory(handler *DataHandler) publish.ManagerFactory {
	return func(deps publish.Dependencies) (publish.Manager, error) {
		return NewManager(handler, deps.Logger, deps.Metrics), nil
	}
}

// Handler returns the data handler the publishers register with.
func (m *Manager) Handler() *DataHandler {
	return m.handler
}

// Protocol implements publish.Manager.
func (m *Manager) Protocol() publish.Protocol {
	return Protocol
}

// CreatePublisher implements publish.Manager.
func (m *Manager) CreatePublisher(valueType string, keys publish.Keys) (publish.Publisher, error) {
	m.metrics.PublisherOpened(Protocol.ID)
	hooks := &publisher{manager: m}
	return publish.NewKeyValuePublisher(valueType, keys, hooks,
		publish.WithPublisherLogger(m.logger.With("type", valueType))), nil
}

// publisher keeps the last published value and registers itself as the supplier
// for its name once it has something to serve.
type publisher struct {
	manager *Manager

	mu         sync.Mutex
	latest     any
	registered bool
}

func (p *publisher) supply() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.latest.(map[string]publish.Value); ok {
		return maps.Clone(m)
	}
	return p.latest
}

func (p *publisher) store(name string, v any) error {
	p.mu.Lock()
	p.latest = v
	p.registered = true
	p.mu.Unlock()

	// Re-registering every time takes the name back after another publisher
	// sharing it has closed.
	return p.manager.handler.addSupplier(name, p.supply, p)
}

func (p *publisher) NameChanged(oldName, newName string) error {
	p.mu.Lock()
	registered := p.registered
	p.mu.Unlock()

	if oldName == "" || !registered {
		return nil
	}
	if err := p.manager.handler.addSupplier(newName, p.supply, p); err != nil {
		return errors.Wrap(err, "publisher", "NameChanged", "move data supplier")
	}
	p.manager.handler.removeSupplier(oldName, p)
	return nil
}

func (p *publisher) PublishMap(name string, values map[string]publish.Value) error {
	if err := p.store(name, values); err != nil {
		return err
	}
	p.manager.metrics.RecordPublish(Protocol.ID, "map")
	return nil
}

func (p *publisher) PublishValue(name string, value publish.Value) error {
	if err := p.store(name, value); err != nil {
		return err
	}
	p.manager.metrics.RecordPublish(Protocol.ID, "value")
	return nil
}

func (p *publisher) PublishNothing(name string) error {
	p.clear(name)
	p.manager.metrics.RecordPublish(Protocol.ID, "nothing")
	return nil
}

func (p *publisher) Close(name string) error {
	p.manager.metrics.PublisherClosed(Protocol.ID)
	if name != "" {
		p.clear(name)
	}
	return nil
}

func (p *publisher) clear(name string) {
	p.mu.Lock()
	p.latest = nil
	p.registered = false
	p.mu.Unlock()
	p.manager.handler.removeSupplier(name, p)
}
