package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parameter is one named, typed field of an event.
type Parameter struct {
	Name   string  `json:"name"`
	Type   KeyType `json:"type"`
	Values []any   `json:"values"`
	Units  string  `json:"units,omitempty"`
}

// First returns the first raw value, or nil for an empty parameter.
func (p Parameter) First() any {
	if len(p.Values) == 0 {
		return nil
	}
	return p.Values[0]
}

func (p Parameter) clone() Parameter {
	p.Values = append([]any(nil), p.Values...)
	return p
}

// ParamSet is an ordered set of parameters with unique names.
//
// ParamSet has value semantics: every mutating method returns a new set and
// leaves the receiver untouched, so a set can be shared between readers
// without locking.
type ParamSet struct {
	params []Parameter
}

// NewParamSet builds a set from ps. Later parameters replace earlier ones
// with the same name.
func NewParamSet(ps ...Parameter) ParamSet {
	return ParamSet{}.Add(ps...)
}

// Add returns a copy of the set with ps added. A parameter whose name is
// already present replaces the existing one in place.
func (s ParamSet) Add(ps ...Parameter) ParamSet {
	out := make([]Parameter, len(s.params), len(s.params)+len(ps))
	copy(out, s.params)
	for _, p := range ps {
		replaced := false
		for i := range out {
			if out[i].Name == p.Name {
				out[i] = p.clone()
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p.clone())
		}
	}
	return ParamSet{params: out}
}

// Remove returns a copy of the set without the named parameter.
func (s ParamSet) Remove(name string) ParamSet {
	out := make([]Parameter, 0, len(s.params))
	for _, p := range s.params {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return ParamSet{params: out}
}

// Find returns the named parameter.
func (s ParamSet) Find(name string) (Parameter, bool) {
	for _, p := range s.params {
		if p.Name == name {
			return p.clone(), true
		}
	}
	return Parameter{}, false
}

// Exists reports whether a parameter with the given name is present.
func (s ParamSet) Exists(name string) bool {
	_, ok := s.Find(name)
	return ok
}

// Names returns parameter names in insertion order.
func (s ParamSet) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of parameters.
func (s ParamSet) Len() int { return len(s.params) }

// All returns a copy of every parameter in insertion order.
func (s ParamSet) All() []Parameter {
	out := make([]Parameter, len(s.params))
	for i, p := range s.params {
		out[i] = p.clone()
	}
	return out
}

// MarshalJSON encodes the set as a JSON array of parameters.
func (s ParamSet) MarshalJSON() ([]byte, error) {
	if s.params == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.params)
}

// UnmarshalJSON decodes a JSON array of parameters. Numeric values are kept
// as json.Number so integer keys do not lose precision through float64.
func (s *ParamSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var ps []Parameter
	if err := dec.Decode(&ps); err != nil {
		return fmt.Errorf("decoding parameters: %w", err)
	}
	for _, p := range ps {
		if p.Name == "" {
			return fmt.Errorf("decoding parameters: parameter name is empty")
		}
		if !p.Type.Valid() {
			return fmt.Errorf("decoding parameters: %q has unknown type %q", p.Name, p.Type)
		}
	}
	*s = NewParamSet(ps...)
	return nil
}
