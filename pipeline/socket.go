package pipeline

import (
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/c360/netpublish/errors"
)

// Input is the untyped view of a socket, used by configuration loading and
// diagnostics.
type Input interface {
	Label() string
	Value() any
	SetValue(v any) error
}

// Socket is a labeled step input holding a single value of type T.
type Socket[T any] struct {
	label string
	mu    sync.RWMutex
	value T
}

// NewSocket creates a socket holding initial.
func NewSocket[T any](label string, initial T) *Socket[T] {
	return &Socket[T]{label: label, value: initial}
}

// Label returns the socket label.
func (s *Socket[T]) Label() string {
	return s.label
}

// Get returns the current value.
func (s *Socket[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the current value.
func (s *Socket[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// Value implements Input.
func (s *Socket[T]) Value() any {
	return s.Get()
}

// SetValue implements Input. Values that are not already a T are decoded with weak
// typing, so "true" sets a bool socket and {"x": 3, "y": 4} sets an image.Point.
func (s *Socket[T]) SetValue(v any) error {
	if typed, ok := v.(T); ok {
		s.Set(typed)
		return nil
	}

	var decoded T
	if err := mapstructure.WeakDecode(v, &decoded); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"Socket", "SetValue", fmt.Sprintf("decode value for %q", s.label))
	}
	s.Set(decoded)
	return nil
}
