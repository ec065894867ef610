// Package operations is the catalog of publish operations a project can place in a
// pipeline.
//
// Every protocol contributes the same seven operations, named after the protocol
// acronym and the published input type:
//
//	NTPublish Point        Publish a Point to NetworkTables
//	HTTPPublish Number     Publish a Number to HTTP
//	ROSPublish LinesReport Publish a LinesReport to ROS
package operations

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/pipeline"
	"github.com/c360/netpublish/publish"
	"github.com/c360/netpublish/publishable"
)

// Operation describes one publish operation.
type Operation struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Protocol    publish.Protocol `json:"protocol"`
	// DataType is the name of the value the operation consumes.
	DataType string `json:"data_type"`
	// Keys lists the published keys. It is empty for single-value operations.
	Keys []string `json:"keys,omitempty"`

	build func(publish.Manager, []publish.StepOption) (pipeline.Step, error)
}

// Define describes the operation that converts D values to P and publishes them
// with protocol.
func Define[D, P any](protocol publish.Protocol, dataType string, convert func(D) P) (Operation, error) {
	providers, err := publish.Discover[P]()
	if err != nil {
		return Operation{}, err
	}
	name := protocol.Acronym + "Publish " + dataType
	return Operation{
		Name:        name,
		Description: fmt.Sprintf("Publish a %s to %s", dataType, protocol.Name),
		Protocol:    protocol,
		DataType:    dataType,
		Keys:        publish.KeysOf(providers),
		build: func(m publish.Manager, opts []publish.StepOption) (pipeline.Step, error) {
			all := append([]publish.StepOption{publish.WithStepName(name)}, opts...)
			step, err := publish.NewStep(m, convert, all...)
			if err != nil {
				return nil, err
			}
			return step, nil
		},
	}, nil
}

// Standard returns the seven standard operations of protocol.
func Standard(protocol publish.Protocol) ([]Operation, error) {
	var ops []Operation
	add := func(op Operation, err error) error {
		if err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	}

	for _, err := range []error{
		add(Define(protocol, "Point", publishable.FromPoint)),
		add(Define(protocol, "Size", publishable.FromSize)),
		add(Define(protocol, "Number", publishable.FromNumber)),
		add(Define(protocol, "Boolean", publishable.FromBool)),
		add(Define(protocol, "ContoursReport", publish.Identity[publishable.ContoursReport])),
		add(Define(protocol, "LinesReport", publish.Identity[publishable.LinesReport])),
		add(Define(protocol, "BlobsReport", publish.Identity[publishable.BlobsReport])),
	} {
		if err != nil {
			return nil, errors.Wrap(err, "operations", "Standard", "define "+protocol.ID+" operations")
		}
	}
	return ops, nil
}

// Resolver returns the manager of a protocol id.
type Resolver func(protocolID string) (publish.Manager, error)

// Catalog holds operations by name and builds their steps.
type Catalog struct {
	resolve Resolver

	mu  sync.RWMutex
	ops map[string]Operation
}

// NewCatalog creates an empty catalog. Managers are resolved when a step is
// created, so a catalog can list operations of back ends that are not connected.
func NewCatalog(resolve Resolver) *Catalog {
	return &Catalog{resolve: resolve, ops: make(map[string]Operation)}
}

// NewStandardCatalog creates a catalog with the standard operations of every
// protocol.
func NewStandardCatalog(resolve Resolver, protocols ...publish.Protocol) (*Catalog, error) {
	c := NewCatalog(resolve)
	for _, protocol := range protocols {
		ops, err := Standard(protocol)
		if err != nil {
			return nil, err
		}
		if err := c.Add(ops...); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers operations. A name can be registered once.
func (c *Catalog) Add(ops ...Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, op := range ops {
		if strings.TrimSpace(op.Name) == "" || op.build == nil {
			return errors.WrapInvalid(fmt.Errorf("%w: operation %q is not defined", errors.ErrInvalidConfig, op.Name),
				"Catalog", "Add", "add operation")
		}
		if _, exists := c.ops[op.Name]; exists {
			return errors.WrapInvalid(fmt.Errorf("operation %q: %w", op.Name, errors.ErrAlreadyRegistered),
				"Catalog", "Add", "add operation")
		}
		c.ops[op.Name] = op
	}
	return nil
}

// Get returns the operation called name.
func (c *Catalog) Get(name string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[name]
	return op, ok
}

// Operations returns every operation sorted by name.
func (c *Catalog) Operations() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Operation, 0, len(c.ops))
	for _, op := range c.ops {
		out = append(out, op)
	}
	slices.SortFunc(out, func(a, b Operation) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Create builds a new step of the operation called name.
func (c *Catalog) Create(name string, opts ...publish.StepOption) (pipeline.Step, error) {
	op, ok := c.Get(name)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownOperation, name),
			"Catalog", "Create", "look up operation")
	}
	if c.resolve == nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: no manager resolver", errors.ErrMissingConfig),
			"Catalog", "Create", "create "+name)
	}
	manager, err := c.resolve(op.Protocol.ID)
	if err != nil {
		return nil, errors.Wrap(err, "Catalog", "Create", "resolve "+op.Protocol.ID+" manager")
	}
	return op.build(manager, opts)
}
