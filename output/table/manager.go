package table

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/pkg/retry"
	"github.com/c360/netpublish/pkg/worker"
	"github.com/c360/netpublish/publish"
)

// Protocol describes the table back end.
var Protocol = publish.Protocol{ID: "nt", Name: "NetworkTables", Acronym: "NT"}

type write struct {
	path   string
	value  []byte
	delete bool
}

// batch is the store work of one publisher call.
type batch struct {
	kind   string
	name   string
	writes []write
}

// Manager creates table publishers that share one ordered write queue.
type Manager struct {
	store    Store
	pool     *worker.Pool[batch]
	retryCfg retry.Config
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// Option configures a Manager.
type Option func(*managerConfig)

type managerConfig struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	queueSize int
	retryCfg  retry.Config
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records publishes and queue metrics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *managerConfig) { c.registry = registry }
}

// WithQueueSize bounds the number of pending publishes.
func WithQueueSize(n int) Option {
	return func(c *managerConfig) { c.queueSize = n }
}

// WithRetry sets the retry policy for transient store errors.
func WithRetry(cfg retry.Config) Option {
	return func(c *managerConfig) { c.retryCfg = cfg }
}

// NewManager creates a manager over store. Start must be called before publishers
// can write.
func NewManager(store Store, opts ...Option) *Manager {
	cfg := managerConfig{
		logger:    slog.Default(),
		queueSize: 1024,
		retryCfg:  retry.Quick(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Manager{
		store:    store,
		retryCfg: cfg.retryCfg,
		logger:   cfg.logger.With("component", "table"),
	}
	m.retryCfg.RetryIf = errors.IsTransient

	poolOpts := []worker.Option[batch]{
		worker.WithLogger[batch](m.logger),
		worker.WithErrorHandler(m.writeFailed),
	}
	if cfg.registry != nil {
		m.metrics = cfg.registry.CoreMetrics()
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[batch](cfg.registry, "table_writes"))
	}
	m.pool = worker.NewPool(1, cfg.queueSize, m.apply, poolOpts...)
	return m
}

// NewFactory returns a registry factory that creates and starts a manager over store.
func NewFactory(ctx context.Context, store Store, opts ...Option) publish.ManagerFactory {
	return func(deps publish.Dependencies) (publish.Manager, error) {
		all := append([]Option{WithLogger(deps.Logger), WithMetrics(deps.Metrics)}, opts...)
		m := NewManager(store, all...)
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Start starts the write worker.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.pool.Start(ctx); err != nil {
		return errors.WrapInvalid(err, "Manager", "Start", "start write queue")
	}
	return nil
}

// Stop waits up to timeout for queued writes to reach the store.
func (m *Manager) Stop(timeout time.Duration) error {
	return m.pool.Stop(timeout)
}

// Stats returns the write queue statistics.
func (m *Manager) Stats() worker.PoolStats {
	return m.pool.Stats()
}

// Protocol implements publish.Manager.
func (m *Manager) Protocol() publish.Protocol {
	return Protocol
}

// CreatePublisher implements publish.Manager.
func (m *Manager) CreatePublisher(valueType string, keys publish.Keys) (publish.Publisher, error) {
	m.metrics.PublisherOpened(Protocol.ID)
	hooks := &publisher{manager: m, keys: publish.NewKeys(keys...)}
	return publish.NewKeyValuePublisher(valueType, keys, hooks,
		publish.WithPublisherLogger(m.logger.With("type", valueType))), nil
}

func (m *Manager) submit(b batch) error {
	if v, ok := m.store.(PathValidator); ok {
		for _, w := range b.writes {
			if w.delete {
				continue
			}
			if err := v.ValidatePath(w.path); err != nil {
				m.metrics.RecordPublishError(Protocol.ID, errors.ErrorInvalid.String())
				return err
			}
		}
	}
	if err := m.pool.Submit(b); err != nil {
		m.metrics.RecordPublishError(Protocol.ID, errors.ErrorTransient.String())
		return errors.WrapTransient(err, "Manager", "submit", fmt.Sprintf("queue %s for %q", b.kind, b.name))
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, b batch) error {
	for _, w := range b.writes {
		err := retry.Do(ctx, m.retryCfg, func() error {
			if w.delete {
				return m.store.Delete(ctx, w.path)
			}
			return m.store.Put(ctx, w.path, w.value)
		})
		if err != nil {
			return errors.Wrap(err, "Manager", "apply", "write "+w.path)
		}
	}
	if b.kind != "" {
		m.metrics.RecordPublish(Protocol.ID, b.kind)
	}
	return nil
}

func (m *Manager) writeFailed(b batch, err error) {
	m.metrics.RecordPublishError(Protocol.ID, errors.Classify(err).String())
	m.logger.Warn("table write failed", "name", b.name, "kind", b.kind, "error", err)
}

// publisher implements publish.Hooks for one table publisher.
type publisher struct {
	manager *Manager
	keys    publish.Keys
}

// encode writes v as JSON. NaN and infinities become null, as on the HTTP back end.
func encode(path string, v publish.Value) (write, error) {
	data, err := json.Marshal(finite(v))
	if err != nil {
		return write{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"publisher", "encode", "encode "+path)
	}
	return write{path: path, value: data}, nil
}

func finite(v publish.Value) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case []float64:
		if slices.ContainsFunc(t, func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }) {
			out := make([]any, len(t))
			for i, f := range t {
				out[i] = finite(f)
			}
			return out
		}
	}
	return v
}

// subtableDeletes removes every key of the set under name, then name itself.
func (p *publisher) subtableDeletes(name string) []write {
	writes := make([]write, 0, len(p.keys)+1)
	for _, key := range p.keys {
		writes = append(writes, write{path: Path(Root, name, key), delete: true})
	}
	return append(writes, write{path: Path(Root, name), delete: true})
}

func (p *publisher) NameChanged(oldName, _ string) error {
	if oldName == "" {
		return nil
	}
	return p.manager.submit(batch{name: oldName, writes: p.subtableDeletes(oldName)})
}

func (p *publisher) PublishMap(name string, values map[string]publish.Value) error {
	writes := make([]write, 0, len(p.keys))
	for _, key := range p.keys {
		path := Path(Root, name, key)
		v, ok := values[key]
		if !ok {
			writes = append(writes, write{path: path, delete: true})
			continue
		}
		w, err := encode(path, v)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}
	return p.manager.submit(batch{kind: "map", name: name, writes: writes})
}

func (p *publisher) PublishValue(name string, value publish.Value) error {
	w, err := encode(Path(Root, name), value)
	if err != nil {
		return err
	}
	return p.manager.submit(batch{kind: "value", name: name, writes: []write{w}})
}

func (p *publisher) PublishNothing(name string) error {
	return p.manager.submit(batch{kind: "nothing", name: name, writes: p.subtableDeletes(name)})
}

func (p *publisher) Close(name string) error {
	p.manager.metrics.PublisherClosed(Protocol.ID)
	if name == "" {
		return nil
	}
	return p.manager.submit(batch{name: name, writes: p.subtableDeletes(name)})
}
