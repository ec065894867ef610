package rosbus

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/publish"
)

// Protocol describes the robotics bus back end.
var Protocol = publish.Protocol{ID: "ros", Name: "ROS", Acronym: "ROS"}

// Transport delivers encoded messages. *natsclient.Client implements it.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Manager creates publishers that each run one node.
type Manager struct {
	ctx       context.Context
	transport Transport
	rate      rate.Limit
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu    sync.Mutex
	nodes map[*node]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithRate sets how many times per second each node republishes its topics. The
// rate must be positive and finite.
func WithRate(r rate.Limit) Option {
	return func(m *Manager) {
		if r > 0 && r != rate.Inf {
			m.rate = r
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.With("component", "ros")
		}
	}
}

// WithMetrics records publishes in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.metrics = registry.CoreMetrics()
		}
	}
}

// NewManager creates a manager whose nodes run until ctx is cancelled or Stop is
// called. Nodes republish ten times per second unless WithRate says otherwise.
func NewManager(ctx context.Context, transport Transport, opts ...Option) *Manager {
	m := &Manager{
		ctx:       ctx,
		transport: transport,
		rate:      rate.Limit(10),
		logger:    slog.Default().With("component", "ros"),
		nodes:     make(map[*node]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFactory returns a registry factory for a manager over transport.
func NewFactory(ctx context.Context, transport Transport, opts ...Option) publish.ManagerFactory {
	return func(deps publish.Dependencies) (publish.Manager, error) {
		all := append([]Option{WithLogger(deps.Logger), WithMetrics(deps.Metrics)}, opts...)
		return NewManager(ctx, transport, all...), nil
	}
}

// Protocol implements publish.Manager.
func (m *Manager) Protocol() publish.Protocol {
	return Protocol
}

// CreatePublisher implements publish.Manager.
func (m *Manager) CreatePublisher(valueType string, keys publish.Keys) (publish.Publisher, error) {
	m.metrics.PublisherOpened(Protocol.ID)
	hooks := &publisher{manager: m, single: keys.SingleValue()}
	return publish.NewKeyValuePublisher(valueType, keys, hooks,
		publish.WithPublisherLogger(m.logger.With("type", valueType))), nil
}

// Nodes returns the number of running nodes.
func (m *Manager) Nodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Stop stops every node.
func (m *Manager) Stop() {
	m.mu.Lock()
	nodes := make([]*node, 0, len(m.nodes))
	for n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.nodes = make(map[*node]struct{})
	m.mu.Unlock()

	for _, n := range nodes {
		n.stop()
	}
}

func (m *Manager) startNode(graph string) *node {
	n := startNode(m.ctx, graph, m)
	m.mu.Lock()
	m.nodes[n] = struct{}{}
	m.mu.Unlock()
	return n
}

func (m *Manager) stopNode(n *node) {
	m.mu.Lock()
	delete(m.nodes, n)
	m.mu.Unlock()
	n.stop()
}

// publisher implements publish.Hooks. In single-value mode the node sits at the
// graph root and the publisher name is its only topic. Otherwise the node is named
// after the publisher and every key is a topic.
type publisher struct {
	manager *Manager
	single  bool
	node    *node
}

func (p *publisher) NameChanged(_, newName string) error {
	if err := ValidateGraphName(newName); err != nil {
		return err
	}
	graph := GraphRoot
	if !p.single {
		graph = GraphRoot + "/" + newName
	}
	if p.node != nil {
		p.manager.stopNode(p.node)
	}
	p.node = p.manager.startNode(graph)
	return nil
}

func (p *publisher) PublishMap(_ string, values map[string]publish.Value) error {
	for key, v := range values {
		if _, err := ResolveType(v); err != nil {
			return errors.Wrap(err, "publisher", "PublishMap", "publish key "+key)
		}
		if err := ValidateGraphName(key); err != nil {
			return err
		}
	}
	p.node.set(values)
	p.manager.metrics.RecordPublish(Protocol.ID, "map")
	return nil
}

func (p *publisher) PublishValue(name string, value publish.Value) error {
	if _, err := ResolveType(value); err != nil {
		return errors.Wrap(err, "publisher", "PublishValue", "publish "+name)
	}
	p.node.set(map[string]publish.Value{name: value})
	p.manager.metrics.RecordPublish(Protocol.ID, "value")
	return nil
}

func (p *publisher) PublishNothing(_ string) error {
	p.node.set(nil)
	p.manager.metrics.RecordPublish(Protocol.ID, "nothing")
	return nil
}

func (p *publisher) Close(_ string) error {
	p.manager.metrics.PublisherClosed(Protocol.ID)
	if p.node != nil {
		p.manager.stopNode(p.node)
		p.node = nil
	}
	return nil
}
