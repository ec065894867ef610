// Package publishtest provides an in-memory Manager that records every hook call,
// for testing publish steps without a network back end.
package publishtest

import (
	"maps"
	"sync"

	"github.com/c360/netpublish/publish"
)

// Call kinds recorded by Recorder.
const (
	OpRename  = "rename"
	OpMap     = "map"
	OpValue   = "value"
	OpNothing = "nothing"
	OpClose   = "close"
)

// Call is one recorded hook invocation.
type Call struct {
	Op      string
	OldName string
	Name    string
	Values  map[string]publish.Value
	Value   publish.Value
}

// Recorder implements publish.Hooks and keeps every call.
type Recorder struct {
	ValueType string
	Keys      publish.Keys

	mu    sync.Mutex
	calls []Call
	fail  error
}

// FailWith makes every following hook call return err. A nil err restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Last returns the most recent call of op.
func (r *Recorder) Last(op string) (Call, bool) {
	calls := r.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Op == op {
			return calls[i], true
		}
	}
	return Call{}, false
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.fail
}

// NameChanged implements publish.Hooks.
func (r *Recorder) NameChanged(oldName, newName string) error {
	return r.record(Call{Op: OpRename, OldName: oldName, Name: newName})
}

// PublishMap implements publish.Hooks.
func (r *Recorder) PublishMap(name string, values map[string]publish.Value) error {
	return r.record(Call{Op: OpMap, Name: name, Values: maps.Clone(values)})
}

// PublishValue implements publish.Hooks.
func (r *Recorder) PublishValue(name string, value publish.Value) error {
	return r.record(Call{Op: OpValue, Name: name, Value: value})
}

// PublishNothing implements publish.Hooks.
func (r *Recorder) PublishNothing(name string) error {
	return r.record(Call{Op: OpNothing, Name: name})
}

// Close implements publish.Hooks.
func (r *Recorder) Close(name string) error {
	return r.record(Call{Op: OpClose, Name: name})
}

// Manager is a publish.Manager whose publishers record into Recorders.
type Manager struct {
	protocol publish.Protocol

	mu        sync.Mutex
	recorders []*Recorder
	createErr error
}

// NewManager creates a recording manager for a protocol named "test".
func NewManager() *Manager {
	return &Manager{protocol: publish.Protocol{ID: "test", Name: "Test", Acronym: "Test"}}
}

// NewManagerFor creates a recording manager reporting the given protocol.
func NewManagerFor(protocol publish.Protocol) *Manager {
	return &Manager{protocol: protocol}
}

// FailCreate makes CreatePublisher return err.
func (m *Manager) FailCreate(err error) {
	m.mu.Lock()
	m.createErr = err
	m.mu.Unlock()
}

// Protocol implements publish.Manager.
func (m *Manager) Protocol() publish.Protocol {
	return m.protocol
}

// CreatePublisher implements publish.Manager.
func (m *Manager) CreatePublisher(valueType string, keys publish.Keys) (publish.Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	r := &Recorder{ValueType: valueType, Keys: keys}
	m.recorders = append(m.recorders, r)
	return publish.NewKeyValuePublisher(valueType, keys, r), nil
}

// Recorders returns the recorders of every created publisher, in creation order.
func (m *Manager) Recorders() []*Recorder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Recorder, len(m.recorders))
	copy(out, m.recorders)
	return out
}

// Last returns the most recently created recorder, or nil.
func (m *Manager) Last() *Recorder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recorders) == 0 {
		return nil
	}
	return m.recorders[len(m.recorders)-1]
}
