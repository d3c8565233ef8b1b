// Package params implements the typed parameter model carried inside events.
//
// An event's payload is a ParamSet: an ordered collection of named,
// typed Parameters. Application code never touches raw values; it goes
// through a typed Key, which encodes values into a Parameter and decodes
// them back out of a ParamSet.
//
// # Decoding Rules
//
// Decoding never fails. A Key reports "absent" (ok == false) when:
//   - the set has no parameter with the key's name
//   - the parameter exists but was written with another KeyType
//   - the parameter holds no values, or values of the wrong shape
//
// This is the normal state for an event written by a producer that has not
// yet included the field, so callers treat absence as data, not as an error.
//
// # Usage
//
//	temp := params.IntKey("value")
//	set := params.NewParamSet(temp.Set(21))
//	v, ok := temp.Get(set) // 21, true
package params
