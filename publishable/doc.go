// Package publishable holds the value types the publish operations understand and
// registers their value providers.
//
// Vector2D publishes an x/y pair, NumberPublishable and BooleanPublishable publish
// a single value under the publisher's name, and the report types publish one
// []float64 column per attribute, so index i of every column describes the same
// contour, line or blob.
package publishable
