package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sequencer/internal/params"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{in: "esw.test.temp", want: Key{Source: "esw.test", Name: "temp"}},
		{in: "tcs.filter", want: Key{Source: "tcs", Name: "filter"}},
		{in: "nodot", wantErr: true},
		{in: "esw.test.", wantErr: true},
		{in: ".temp", wantErr: true},
		{in: "esw/x.temp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidKey), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestMustParseKeyPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseKey("bad") })
}

func TestNewSystemEvent(t *testing.T) {
	key := MustParseKey("esw.test.temp")
	e := NewSystemEvent(key, params.IntKey("value").Set(10))

	assert.Equal(t, KindSystem, e.Kind)
	assert.Equal(t, key, e.Key())
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.IsInvalid())
	assert.False(t, e.Time.IsZero())
}

func TestInvalid(t *testing.T) {
	key := MustParseKey("esw.test.temp")
	e := Invalid(key)

	assert.True(t, e.IsInvalid())
	assert.Equal(t, key, e.Key())
	assert.Equal(t, 0, e.Params.Len())
}

func TestWithKeepsOtherParams(t *testing.T) {
	value := params.IntKey("value")
	mode := params.StringKey("mode")
	orig := NewObserveEvent(MustParseKey("esw.test.temp"), value.Set(1), mode.Set("auto"))

	next := orig.With(value.Set(2))

	assert.NotEqual(t, orig.ID, next.ID)
	assert.Equal(t, KindObserve, next.Kind)
	v, _ := value.Get(next.Params)
	assert.Equal(t, int32(2), v)
	m, ok := mode.Get(next.Params)
	require.True(t, ok)
	assert.Equal(t, "auto", m)

	v, _ = value.Get(orig.Params)
	assert.Equal(t, int32(1), v, "With must not mutate the receiver")
}

func TestWithOnInvalidProducesPublishableEvent(t *testing.T) {
	next := Invalid(MustParseKey("esw.test.temp")).With(params.IntKey("value").Set(3))
	assert.False(t, next.IsInvalid())
	assert.Equal(t, KindSystem, next.Kind)
}

func TestMarshalRoundTrip(t *testing.T) {
	value := params.IntKey("value")
	e := NewSystemEvent(MustParseKey("esw.test.temp"), value.Set(42))

	data, err := Marshal(e)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Key(), got.Key())
	assert.True(t, e.Time.Equal(got.Time))
	v, ok := value.Get(got.Params)
	require.True(t, ok)
	assert.Equal(t, int32(42), v)
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":     `{`,
		"missing key":  `{"kind":"system","id":"a","params":[]}`,
		"missing id":   `{"kind":"system","source":"esw.test","name":"temp","params":[]}`,
		"unknown kind": `{"kind":"alarm","id":"a","source":"esw.test","name":"temp","params":[]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(raw))
			assert.True(t, errors.Is(err, ErrInvalidEvent), "err = %v", err)
		})
	}
}
