package rosbus

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/publish"
)

// Type is a robotics message type name.
type Type string

// Supported message types.
const (
	Float64           Type = "std_msgs/Float64"
	Float64MultiArray Type = "std_msgs/Float64MultiArray"
	String            Type = "std_msgs/String"
	Bool              Type = "std_msgs/Bool"
)

// Message is the envelope published for every topic on every loop iteration.
type Message struct {
	Type  Type      `msgpack:"type"`
	Topic string    `msgpack:"topic"`
	Seq   uint64    `msgpack:"seq"`
	Stamp time.Time `msgpack:"stamp"`
	Data  any       `msgpack:"data"`
}

// ResolveType returns the message type that carries v.
func ResolveType(v publish.Value) (Type, error) {
	switch v.(type) {
	case float64:
		return Float64, nil
	case []float64:
		return Float64MultiArray, nil
	case string:
		return String, nil
	case bool:
		return Bool, nil
	default:
		return "", errors.WrapInvalid(fmt.Errorf("%w: %T has no message type", errors.ErrUnsupportedType, v),
			"rosbus", "ResolveType", "resolve message type")
	}
}

// Encode serializes m with msgpack.
func Encode(m Message) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"rosbus", "Encode", "encode "+m.Topic)
	}
	return data, nil
}

// Decode parses a message written by Encode. Float64MultiArray data decodes to
// []float64.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"rosbus", "Decode", "decode message")
	}
	if m.Type == Float64MultiArray {
		if items, ok := m.Data.([]any); ok {
			column := make([]float64, 0, len(items))
			for _, item := range items {
				f, ok := item.(float64)
				if !ok {
					return Message{}, errors.WrapInvalid(
						fmt.Errorf("%w: array element %T", errors.ErrParsingFailed, item),
						"rosbus", "Decode", "decode "+m.Topic)
				}
				column = append(column, f)
			}
			m.Data = column
		}
	}
	return m, nil
}

// graphToken is one segment of a graph name.
var graphToken = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateGraphName checks every "/"-separated segment of name.
func ValidateGraphName(name string) error {
	for _, token := range strings.Split(name, "/") {
		if !graphToken.MatchString(token) {
			return errors.WrapInvalid(fmt.Errorf("%w: %q is not a valid graph name", errors.ErrInvalidData, name),
				"rosbus", "ValidateGraphName", "validate graph name")
		}
	}
	return nil
}

// Subject maps a topic to its transport subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
