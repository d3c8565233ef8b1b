package event

import (
	"fmt"
	"strings"
)

// Key identifies an event stream on the bus.
type Key struct {
	// Source is the publishing component's prefix, e.g. "esw.test".
	Source string

	// Name is the event name within the source, e.g. "temp".
	Name string
}

// NewKey builds a key from its parts.
func NewKey(source, name string) (Key, error) {
	k := Key{Source: source, Name: name}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// ParseKey parses "source.name", splitting on the last dot.
//
// Example: "esw.test.temp" → Key{Source: "esw.test", Name: "temp"}
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return Key{}, fmt.Errorf("%w: %q has no source prefix", ErrInvalidKey, s)
	}
	return NewKey(s[:i], s[i+1:])
}

// MustParseKey is like ParseKey but panics on error. Intended for
// package-level key declarations and tests.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Validate checks that both parts are present and free of separators that
// would break topic mapping.
func (k Key) Validate() error {
	if k.Source == "" || k.Name == "" {
		return fmt.Errorf("%w: source and name are required", ErrInvalidKey)
	}
	if strings.ContainsAny(k.Source+k.Name, "/#+ ") || strings.Contains(k.Name, ".") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidKey, k.String())
	}
	return nil
}

// String returns "source.name".
func (k Key) String() string {
	return k.Source + "." + k.Name
}
