package params

import (
	"encoding/json"
	"math"
)

// KeyType identifies the wire type of a parameter's values.
type KeyType string

// Supported key types.
const (
	TypeInt     KeyType = "int"
	TypeLong    KeyType = "long"
	TypeDouble  KeyType = "double"
	TypeString  KeyType = "string"
	TypeBoolean KeyType = "boolean"
)

// Valid reports whether t is a recognised key type.
func (t KeyType) Valid() bool {
	switch t {
	case TypeInt, TypeLong, TypeDouble, TypeString, TypeBoolean:
		return true
	default:
		return false
	}
}

// Key is a typed handle onto one named parameter.
//
// Keys are small values and safe to copy and share between goroutines.
type Key[T any] struct {
	name  string
	typ   KeyType
	units string
	conv  func(any) (T, bool)
}

// IntKey returns a key for 32-bit integer values. Wider values need LongKey.
func IntKey(name string) Key[int32] {
	return Key[int32]{name: name, typ: TypeInt, conv: toInt32}
}

// LongKey returns a key for 64-bit integer values.
func LongKey(name string) Key[int64] {
	return Key[int64]{name: name, typ: TypeLong, conv: toInt64}
}

// DoubleKey returns a key for floating point values.
func DoubleKey(name string) Key[float64] {
	return Key[float64]{name: name, typ: TypeDouble, conv: toFloat64}
}

// StringKey returns a key for string values.
func StringKey(name string) Key[string] {
	return Key[string]{name: name, typ: TypeString, conv: toString}
}

// BooleanKey returns a key for boolean values.
func BooleanKey(name string) Key[bool] {
	return Key[bool]{name: name, typ: TypeBoolean, conv: toBool}
}

// Name returns the parameter name this key addresses.
func (k Key[T]) Name() string { return k.name }

// Type returns the key's wire type.
func (k Key[T]) Type() KeyType { return k.typ }

// Units returns the units attached to parameters built by this key.
func (k Key[T]) Units() string { return k.units }

// WithUnits returns a copy of the key that tags encoded parameters with units.
func (k Key[T]) WithUnits(units string) Key[T] {
	k.units = units
	return k
}

// String returns "name:type", the notation used in configuration files.
func (k Key[T]) String() string {
	return k.name + ":" + string(k.typ)
}

// Set encodes values into a Parameter addressed by this key.
func (k Key[T]) Set(values ...T) Parameter {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Parameter{Name: k.name, Type: k.typ, Values: vals, Units: k.units}
}

// Get decodes the first value of this key's parameter in ps.
//
// Returns the zero value and false when the parameter is missing, was
// written with a different KeyType, is empty, or cannot be converted.
func (k Key[T]) Get(ps ParamSet) (T, bool) {
	var zero T
	p, ok := k.find(ps)
	if !ok || len(p.Values) == 0 {
		return zero, false
	}
	return k.conv(p.Values[0])
}

// Values decodes every value of this key's parameter in ps.
// A single unconvertible value makes the whole parameter absent.
func (k Key[T]) Values(ps ParamSet) ([]T, bool) {
	p, ok := k.find(ps)
	if !ok {
		return nil, false
	}
	out := make([]T, 0, len(p.Values))
	for _, raw := range p.Values {
		v, ok := k.conv(raw)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// Exists reports whether ps carries a parameter matching this key's name and type.
func (k Key[T]) Exists(ps ParamSet) bool {
	_, ok := k.find(ps)
	return ok
}

func (k Key[T]) find(ps ParamSet) (Parameter, bool) {
	p, ok := ps.Find(k.name)
	if !ok || p.Type != k.typ {
		return Parameter{}, false
	}
	return p, true
}

// =============================================================================
// Value conversion
// =============================================================================

// Values arrive either as native Go values (locally built parameters) or as
// json.Number (parameters decoded from the wire).

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, so compare against 2^63 exclusively.
		if n != math.Trunc(n) || n >= 1<<63 || n < -(1<<63) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func toInt32(v any) (int32, bool) {
	i, ok := toInt64(v)
	if !ok || i > math.MaxInt32 || i < math.MinInt32 {
		return 0, false
	}
	return int32(i), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
