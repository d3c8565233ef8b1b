package eventbus

import "errors"

// Domain errors for bus operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBusUnavailable is returned when the bus cannot be reached.
	// Callers surface it; nothing in the core retries on its behalf.
	ErrBusUnavailable = errors.New("eventbus: bus unavailable")

	// ErrPublishFailure is returned when the bus rejects an event.
	// The underlying cause is wrapped alongside it.
	ErrPublishFailure = errors.New("eventbus: publish failed")

	// ErrNoKeys is returned when a subscription or get names no keys.
	ErrNoKeys = errors.New("eventbus: at least one key is required")

	// ErrClosed is returned by operations on a closed hub or bus.
	ErrClosed = errors.New("eventbus: closed")
)
