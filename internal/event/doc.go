// Package event defines the events exchanged over the sequencer event bus.
//
// An event is addressed by a Key: a source prefix (the publishing component,
// e.g. "esw.test") and an event name ("temp"). Its payload is a params.ParamSet.
// The bus retains only the latest event per key.
//
// When a key has never been published, the bus answers a get request with
// an explicit invalid marker (see Invalid) rather than an error.
package event
