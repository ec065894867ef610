package publish

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/c360/netpublish/errors"
)

// Publisher is a protocol-specific sink owned by exactly one publish step.
type Publisher interface {
	// SetName names the publish target. Setting the current name again is a no-op.
	SetName(name string) error
	// Publish sends a key to value map. In single-value mode the only legal key is
	// the empty string. An empty map publishes nothing.
	Publish(data map[string]Value) error
	// Close releases protocol resources. It never fails and may be called twice.
	Close()
}

// Protocol identifies a publishing back end.
type Protocol struct {
	// ID is the registry key, for example "nt".
	ID string `json:"id"`
	// Name is the human-readable protocol name.
	Name string `json:"name"`
	// Acronym prefixes operation names, for example "NTPublish Point".
	Acronym string `json:"acronym"`
}

// Manager creates publishers for one protocol.
type Manager interface {
	Protocol() Protocol
	// CreatePublisher returns a publisher bound to keys. It must not block on
	// network I/O.
	CreatePublisher(valueType string, keys Keys) (Publisher, error)
}

// Hooks are the protocol operations behind a KeyValuePublisher. They are called
// with the publisher lock held and must return promptly.
type Hooks interface {
	// NameChanged is called when the name changes. oldName is empty on the first
	// call.
	NameChanged(oldName, newName string) error
	// PublishMap publishes a subset of the key set under name.
	PublishMap(name string, values map[string]Value) error
	// PublishValue publishes a single value with name as its key.
	PublishValue(name string, value Value) error
	// PublishNothing clears whatever is published under name.
	PublishNothing(name string) error
	// Close releases resources. name is empty if the publisher was never named.
	Close(name string) error
}

// KeyValuePublisher implements the Publisher lifecycle on top of protocol Hooks.
type KeyValuePublisher struct {
	valueType string
	keys      Keys
	hooks     Hooks
	logger    *slog.Logger

	mu     sync.Mutex
	name   string
	closed bool
}

// PublisherOption configures a KeyValuePublisher.
type PublisherOption func(*KeyValuePublisher)

// WithPublisherLogger sets the logger used for swallowed close errors.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *KeyValuePublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewKeyValuePublisher creates an unnamed publisher for keys.
func NewKeyValuePublisher(valueType string, keys Keys, hooks Hooks, opts ...PublisherOption) *KeyValuePublisher {
	p := &KeyValuePublisher{
		valueType: valueType,
		keys:      NewKeys(keys...),
		hooks:     hooks,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValueType returns the publishable type name the publisher was created for.
func (p *KeyValuePublisher) ValueType() string {
	return p.valueType
}

// Keys returns the publisher's key set.
func (p *KeyValuePublisher) Keys() Keys {
	return p.keys
}

// Name returns the current name, empty until SetName succeeds.
func (p *KeyValuePublisher) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// SetName implements Publisher.
func (p *KeyValuePublisher) SetName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrEmptyName, "Publisher", "SetName", "set publish name")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.WrapInvalid(errors.ErrPublisherClosed, "Publisher", "SetName", "set publish name")
	}
	if name == p.name {
		return nil
	}
	if err := p.hooks.NameChanged(p.name, name); err != nil {
		return errors.Wrap(err, "Publisher", "SetName", fmt.Sprintf("rename %q to %q", p.name, name))
	}
	p.name = name
	return nil
}

// Publish implements Publisher.
func (p *KeyValuePublisher) Publish(data map[string]Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.WrapInvalid(errors.ErrPublisherClosed, "Publisher", "Publish", "publish")
	}
	if p.name == "" {
		return errors.WrapFatal(errors.ErrNameNotSet, "Publisher", "Publish", "publish")
	}

	for key := range data {
		if !p.accepts(key) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q not in %v for %s", errors.ErrUnknownKey, key, p.keys, p.valueType),
				"Publisher", "Publish", "check publish keys")
		}
	}

	var err error
	switch {
	case len(data) == 0:
		err = p.hooks.PublishNothing(p.name)
	case p.keys.SingleValue():
		err = p.hooks.PublishValue(p.name, data[""])
	default:
		err = p.hooks.PublishMap(p.name, maps.Clone(data))
	}
	return errors.Wrap(err, "Publisher", "Publish", fmt.Sprintf("publish %q", p.name))
}

func (p *KeyValuePublisher) accepts(key string) bool {
	if p.keys.SingleValue() {
		return key == ""
	}
	return p.keys.Contains(key)
}

// Close implements Publisher. Hook errors are logged and dropped.
func (p *KeyValuePublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("publisher close panicked", "name", p.name, "type", p.valueType, "panic", r)
		}
	}()
	if err := p.hooks.Close(p.name); err != nil {
		p.logger.Debug("publisher close failed", "name", p.name, "type", p.valueType, "error", err)
	}
}
