package publish

// Value is a published scalar. Its dynamic type is one of the Scalar types.
type Value = any

// Scalar lists the value types every protocol back end can publish.
type Scalar interface {
	float64 | bool | string | []float64
}

// ValueProvider describes one published attribute of the publishable type P.
type ValueProvider[P any] struct {
	// Key is the wire-visible field name. An empty key means the publisher's name is
	// the only key.
	Key string
	// Weight fixes the provider's position. Weights are unique per type.
	Weight int
	// Get reads the attribute from a P.
	Get func(P) Value
}

// Provide builds a ValueProvider from a statically typed accessor.
func Provide[P any, V Scalar](key string, weight int, get func(P) V) ValueProvider[P] {
	if get == nil {
		return ValueProvider[P]{Key: key, Weight: weight}
	}
	return ValueProvider[P]{
		Key:    key,
		Weight: weight,
		Get:    func(p P) Value { return get(p) },
	}
}
