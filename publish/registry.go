package publish

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/metric"
)

// Dependencies are handed to every manager factory.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry
}

// GetLogger returns a logger tagged with the component name.
func (d Dependencies) GetLogger(component string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// CoreMetrics returns the shared publishing metrics, or nil without a registry.
func (d Dependencies) CoreMetrics() *metric.Metrics {
	if d.Metrics == nil {
		return nil
	}
	return d.Metrics.CoreMetrics()
}

// ManagerFactory builds the manager for one protocol.
type ManagerFactory func(deps Dependencies) (Manager, error)

// ManagerRegistry maps protocol identifiers to manager factories and caches the
// created managers.
type ManagerRegistry struct {
	mu        sync.RWMutex
	factories map[string]ManagerFactory
	managers  map[string]Manager
}

// NewManagerRegistry creates an empty registry.
func NewManagerRegistry() *ManagerRegistry {
	return &ManagerRegistry{
		factories: make(map[string]ManagerFactory),
		managers:  make(map[string]Manager),
	}
}

// Register adds a factory for protocol id.
func (r *ManagerRegistry) Register(id string, factory ManagerFactory) error {
	if strings.TrimSpace(id) == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty protocol id", errors.ErrInvalidConfig),
			"ManagerRegistry", "Register", "validate protocol id")
	}
	if factory == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil factory for %q", errors.ErrInvalidConfig, id),
			"ManagerRegistry", "Register", "validate factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return errors.WrapInvalid(fmt.Errorf("protocol %q: %w", id, errors.ErrAlreadyRegistered),
			"ManagerRegistry", "Register", "register manager factory")
	}
	r.factories[id] = factory
	return nil
}

// Manager returns the manager for id, creating it on first use.
func (r *ManagerRegistry) Manager(id string, deps Dependencies) (Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[id]; ok {
		return m, nil
	}
	factory, ok := r.factories[id]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: protocol %q", errors.ErrConfigNotFound, id),
			"ManagerRegistry", "Manager", "look up manager factory")
	}

	m, err := factory(deps)
	if err != nil {
		return nil, errors.Wrap(err, "ManagerRegistry", "Manager", fmt.Sprintf("create %q manager", id))
	}
	r.managers[id] = m
	return m, nil
}

// Protocols returns the registered protocol ids in sorted order.
func (r *ManagerRegistry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Managers returns the managers created so far, ordered by protocol id.
func (r *ManagerRegistry) Managers() []Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Manager, len(ids))
	for i, id := range ids {
		out[i] = r.managers[id]
	}
	return out
}
