package publish

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/c360/netpublish/errors"
)

// providerTable maps a publishable type, keyed by a typed nil pointer, to its
// validated and sorted providers.
var providerTable = struct {
	sync.RWMutex
	types map[any]any
}{types: make(map[any]any)}

func typeKey[P any]() any {
	return (*P)(nil)
}

// TypeName returns the package-qualified name of P, used in errors and operation
// descriptions.
func TypeName[P any]() string {
	return strings.TrimPrefix(fmt.Sprintf("%T", (*P)(nil)), "*")
}

// Validate checks a provider set and returns a copy sorted by weight.
func Validate[P any](providers []ValueProvider[P]) ([]ValueProvider[P], error) {
	typeName := TypeName[P]()
	fail := func(sentinel error, format string, args ...any) error {
		detail := fmt.Sprintf(format, args...)
		return errors.WrapInvalid(fmt.Errorf("%s: %s: %w", typeName, detail, sentinel),
			"publish", "Validate", "validate value providers")
	}

	if len(providers) == 0 {
		return nil, fail(errors.ErrNoValueProviders, "a publishable type must expose at least one value")
	}

	keys := make(map[string]int, len(providers))
	weights := make(map[int]string, len(providers))
	emptyKeys := 0
	for i, p := range providers {
		if p.Get == nil {
			return nil, fail(errors.ErrInvalidAccessor, "provider %d (key %q) has no accessor", i, p.Key)
		}

		if p.Key == "" {
			emptyKeys++
		} else if first, dup := keys[p.Key]; dup {
			return nil, fail(errors.ErrDuplicateKey, "providers %d and %d both use key %q", first, i, p.Key)
		} else {
			keys[p.Key] = i
		}

		if other, dup := weights[p.Weight]; dup {
			return nil, fail(errors.ErrDuplicateWeight, "keys %q and %q both use weight %d", other, p.Key, p.Weight)
		}
		weights[p.Weight] = p.Key
	}

	if emptyKeys > 0 && len(providers) > 1 {
		return nil, fail(errors.ErrMixedKeyMode,
			"an empty key is only valid as the single provider, found %d empty of %d", emptyKeys, len(providers))
	}

	sorted := slices.Clone(providers)
	slices.SortFunc(sorted, func(a, b ValueProvider[P]) int {
		return cmp.Compare(a.Weight, b.Weight)
	})
	return sorted, nil
}

// Register validates the providers of P and caches them for Discover. A type can be
// registered once.
func Register[P any](providers ...ValueProvider[P]) error {
	sorted, err := Validate(providers)
	if err != nil {
		return err
	}

	providerTable.Lock()
	defer providerTable.Unlock()

	key := typeKey[P]()
	if _, exists := providerTable.types[key]; exists {
		return errors.WrapInvalid(fmt.Errorf("%s: %w", TypeName[P](), errors.ErrAlreadyRegistered),
			"publish", "Register", "register value providers")
	}
	providerTable.types[key] = sorted
	return nil
}

// MustRegister is Register for package initialization. It panics on error.
func MustRegister[P any](providers ...ValueProvider[P]) {
	if err := Register(providers...); err != nil {
		panic(err)
	}
}

// Discover returns the registered providers of P in weight order. The slice is a
// copy and may be modified by the caller.
func Discover[P any]() ([]ValueProvider[P], error) {
	providerTable.RLock()
	cached, ok := providerTable.types[typeKey[P]()]
	providerTable.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%s: no providers registered: %w", TypeName[P](), errors.ErrNoValueProviders),
			"publish", "Discover", "discover value providers")
	}
	return slices.Clone(cached.([]ValueProvider[P])), nil
}

// Keys is the sorted set of non-empty keys of a publishable type. An empty Keys
// means single-value mode.
type Keys []string

// KeysOf collects the non-empty keys of providers.
func KeysOf[P any](providers []ValueProvider[P]) Keys {
	keys := make(Keys, 0, len(providers))
	for _, p := range providers {
		if p.Key != "" {
			keys = append(keys, p.Key)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// NewKeys builds a Keys set from arbitrary strings, dropping empties and duplicates.
func NewKeys(keys ...string) Keys {
	out := make(Keys, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Contains reports whether key is in the set.
func (k Keys) Contains(key string) bool {
	_, found := slices.BinarySearch(k, key)
	return found
}

// SingleValue reports whether the set describes single-value mode.
func (k Keys) SingleValue() bool {
	return len(k) == 0
}
