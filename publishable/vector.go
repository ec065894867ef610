package publishable

import (
	"image"

	"github.com/c360/netpublish/publish"
)

// Vector2D is a published pair of coordinates.
type Vector2D struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

// Size is a width and height.
type Size struct {
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
}

// FromPoint converts an integer point.
func FromPoint(p image.Point) Vector2D {
	return Vector2D{X: float64(p.X), Y: float64(p.Y)}
}

// FromSize publishes width as x and height as y.
func FromSize(s Size) Vector2D {
	return Vector2D{X: s.Width, Y: s.Height}
}

// NumberPublishable publishes one number under the publisher's name.
type NumberPublishable struct {
	Value float64
}

// FromNumber wraps a number.
func FromNumber(v float64) NumberPublishable {
	return NumberPublishable{Value: v}
}

// BooleanPublishable publishes one boolean under the publisher's name.
type BooleanPublishable struct {
	Value bool
}

// FromBool wraps a boolean.
func FromBool(v bool) BooleanPublishable {
	return BooleanPublishable{Value: v}
}

func init() {
	publish.MustRegister(
		publish.Provide("x", 0, func(v Vector2D) float64 { return v.X }),
		publish.Provide("y", 1, func(v Vector2D) float64 { return v.Y }),
	)
	publish.MustRegister(
		publish.Provide("", 0, func(n NumberPublishable) float64 { return n.Value }),
	)
	publish.MustRegister(
		publish.Provide("", 0, func(b BooleanPublishable) bool { return b.Value }),
	)
}
