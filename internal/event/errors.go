package event

import "errors"

var (
	// ErrInvalidKey is returned when an event key string cannot be parsed.
	ErrInvalidKey = errors.New("event: invalid key")

	// ErrInvalidEvent is returned when a wire payload is not a well-formed event.
	ErrInvalidEvent = errors.New("event: invalid event")
)
