// Package publish is the declarative key/value publishing framework.
//
// A publishable type describes its published attributes with an explicit
// registration table instead of runtime introspection:
//
//	func init() {
//	    publish.MustRegister(
//	        publish.Provide("x", 0, func(v Vector2D) float64 { return v.X }),
//	        publish.Provide("y", 1, func(v Vector2D) float64 { return v.Y }),
//	    )
//	}
//
// Registration validates the set once per type. It must not be empty. Every
// accessor must be non-nil. Keys and weights must be unique. Either every key is
// named (multi-key mode) or there is exactly one provider with the empty key
// (single-value mode). The providers are sorted by weight, and Discover returns
// them in that order every time.
//
// A Manager builds a Publisher per protocol. KeyValuePublisher implements the shared
// lifecycle and delegates the wire work to protocol Hooks. It checks the name,
// validates every published key against the key set on every call, and dispatches
// to map, single value or nothing.
//
// Step binds a pipeline data socket, a name socket and one enable toggle per
// provider to a single Publisher:
//
//	step, err := publish.NewStep(manager, publishable.FromPoint)
//	step.PublishName().Set("target")
//	step.Data().Set(image.Point{X: 3, Y: 4})
//	err = step.Perform(ctx) // publishes {"x": 3, "y": 4} under "target"
//
// The step owns its publisher. The publisher is created with the step and closed
// exactly once by CleanUp.
package publish
