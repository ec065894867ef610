package publish_test

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/publish"
)

type sample struct {
	a, b, c float64
	label   string
}

func sampleProviders() []publish.ValueProvider[sample] {
	return []publish.ValueProvider[sample]{
		publish.Provide("c", 2, func(s sample) float64 { return s.c }),
		publish.Provide("a", 0, func(s sample) float64 { return s.a }),
		publish.Provide("label", 3, func(s sample) string { return s.label }),
		publish.Provide("b", 1, func(s sample) float64 { return s.b }),
	}
}

type keyWeight struct {
	Key    string
	Weight int
}

func shape[P any](providers []publish.ValueProvider[P]) []keyWeight {
	out := make([]keyWeight, len(providers))
	for i, p := range providers {
		out[i] = keyWeight{p.Key, p.Weight}
	}
	return out
}

func TestValidate_SortsByWeight(t *testing.T) {
	sorted, err := publish.Validate(sampleProviders())
	require.NoError(t, err)

	want := []keyWeight{{"a", 0}, {"b", 1}, {"c", 2}, {"label", 3}}
	if diff := cmp.Diff(want, shape(sorted)); diff != "" {
		t.Errorf("provider order mismatch (-want +got):\n%s", diff)
	}

	v := sample{a: 1, b: 2, c: 3, label: "x"}
	assert.Equal(t, 1.0, sorted[0].Get(v))
	assert.Equal(t, "x", sorted[3].Get(v))
}

func TestValidate_DeterministicAcrossDeclarationOrder(t *testing.T) {
	base, err := publish.Validate(sampleProviders())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := sampleProviders()
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := publish.Validate(shuffled)
		require.NoError(t, err)
		if diff := cmp.Diff(shape(base), shape(got)); diff != "" {
			t.Fatalf("order depends on declaration order (-want +got):\n%s", diff)
		}
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	in := sampleProviders()
	_, err := publish.Validate(in)
	require.NoError(t, err)
	assert.Equal(t, "c", in[0].Key)
}

func TestValidate_Rejects(t *testing.T) {
	get := func(s sample) float64 { return s.a }

	tests := []struct {
		name      string
		providers []publish.ValueProvider[sample]
		sentinel  error
	}{
		{
			name:     "no providers",
			sentinel: errors.ErrNoValueProviders,
		},
		{
			name: "nil accessor",
			providers: []publish.ValueProvider[sample]{
				{Key: "a", Weight: 0},
			},
			sentinel: errors.ErrInvalidAccessor,
		},
		{
			name: "nil typed accessor",
			providers: []publish.ValueProvider[sample]{
				publish.Provide[sample, float64]("a", 0, nil),
			},
			sentinel: errors.ErrInvalidAccessor,
		},
		{
			name: "duplicate key",
			providers: []publish.ValueProvider[sample]{
				publish.Provide("a", 0, get),
				publish.Provide("a", 1, get),
			},
			sentinel: errors.ErrDuplicateKey,
		},
		{
			name: "duplicate weight",
			providers: []publish.ValueProvider[sample]{
				publish.Provide("a", 0, get),
				publish.Provide("b", 0, get),
			},
			sentinel: errors.ErrDuplicateWeight,
		},
		{
			name: "empty key mixed with named key",
			providers: []publish.ValueProvider[sample]{
				publish.Provide("", 0, get),
				publish.Provide("a", 1, get),
			},
			sentinel: errors.ErrMixedKeyMode,
		},
		{
			name: "two empty keys",
			providers: []publish.ValueProvider[sample]{
				publish.Provide("", 0, get),
				publish.Provide("", 1, get),
			},
			sentinel: errors.ErrMixedKeyMode,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := publish.Validate(test.providers)
			require.Error(t, err)
			assert.ErrorIs(t, err, test.sentinel)
			assert.True(t, errors.IsInvalid(err))
			assert.True(t, errors.IsDefinitionError(err))
			assert.Contains(t, err.Error(), "publish_test.sample", "message names the type")
		})
	}
}

func TestValidate_SingleEmptyKey(t *testing.T) {
	sorted, err := publish.Validate([]publish.ValueProvider[sample]{
		publish.Provide("", 0, func(s sample) bool { return s.a > 0 }),
	})
	require.NoError(t, err)
	require.Len(t, sorted, 1)
	assert.True(t, publish.KeysOf(sorted).SingleValue())
}

type registeredOnce struct{ v float64 }

type neverRegistered struct{}

func TestRegisterAndDiscover(t *testing.T) {
	err := publish.Register(
		publish.Provide("second", 5, func(r registeredOnce) float64 { return r.v * 2 }),
		publish.Provide("first", -1, func(r registeredOnce) float64 { return r.v }),
	)
	require.NoError(t, err)

	first, err := publish.Discover[registeredOnce]()
	require.NoError(t, err)
	second, err := publish.Discover[registeredOnce]()
	require.NoError(t, err)

	assert.Equal(t, []keyWeight{{"first", -1}, {"second", 5}}, shape(first))
	assert.Equal(t, shape(first), shape(second))

	first[0].Key = "mutated"
	again, err := publish.Discover[registeredOnce]()
	require.NoError(t, err)
	assert.Equal(t, "first", again[0].Key, "Discover returns a copy")

	err = publish.Register(publish.Provide("x", 0, func(r registeredOnce) float64 { return r.v }))
	assert.ErrorIs(t, err, errors.ErrAlreadyRegistered)
}

func TestDiscover_Unregistered(t *testing.T) {
	_, err := publish.Discover[neverRegistered]()
	assert.ErrorIs(t, err, errors.ErrNoValueProviders)
	assert.Contains(t, err.Error(), "neverRegistered")
}

func TestMustRegister_PanicsOnInvalid(t *testing.T) {
	type broken struct{}
	assert.Panics(t, func() { publish.MustRegister[broken]() })
}

func TestKeys(t *testing.T) {
	keys := publish.NewKeys("y", "", "x", "y")
	assert.Equal(t, publish.Keys{"x", "y"}, keys)
	assert.True(t, keys.Contains("x"))
	assert.False(t, keys.Contains("z"))
	assert.False(t, keys.Contains(""))
	assert.False(t, keys.SingleValue())
	assert.True(t, publish.NewKeys().SingleValue())
}
