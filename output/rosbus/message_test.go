package rosbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
)

func TestResolveType(t *testing.T) {
	tests := []struct {
		value any
		want  Type
	}{
		{1.5, Float64},
		{[]float64{1, 2}, Float64MultiArray},
		{"text", String},
		{true, Bool},
	}
	for _, tt := range tests {
		got, err := ResolveType(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	for _, v := range []any{1, nil, []int{1}, struct{}{}} {
		_, err := ResolveType(v)
		require.Error(t, err, "%T", v)
		assert.ErrorIs(t, err, errors.ErrUnsupportedType)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestEncodeDecode(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Message{
		Type:  Float64MultiArray,
		Topic: "GRIP/publisher/lines/length",
		Seq:   7,
		Stamp: stamp,
		Data:  []float64{1.5, 2.5},
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Topic, out.Topic)
	assert.Equal(t, in.Seq, out.Seq)
	assert.True(t, stamp.Equal(out.Stamp))
	assert.Equal(t, []float64{1.5, 2.5}, out.Data)

	_, err = Decode([]byte{0xc1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
}

func TestValidateGraphName(t *testing.T) {
	for _, ok := range []string{"target", "GRIP/publisher/target", "center_x", "x1"} {
		assert.NoError(t, ValidateGraphName(ok), ok)
	}
	for _, bad := range []string{"", "my target", "1x", "a//b", "a.b", "/abs"} {
		err := ValidateGraphName(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "GRIP.publisher.target.x", Subject("GRIP/publisher/target/x"))
	assert.Equal(t, "GRIP.publisher.speed", Subject("/GRIP/publisher/speed/"))
}
