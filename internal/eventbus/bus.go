package eventbus

import (
	"context"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
)

// Handler receives events delivered to a subscription.
//
// Handlers for one subscription are invoked sequentially, in bus order.
type Handler func(ev event.Event)

// Publisher publishes events.
type Publisher interface {
	// Publish sends ev and waits for the bus acknowledgement.
	// Fails with ErrPublishFailure or ErrBusUnavailable.
	Publish(ctx context.Context, ev event.Event) error
}

// Subscriber reads events.
type Subscriber interface {
	// Subscribe registers handler for keys. Registration completes
	// asynchronously; use Subscription.Ready to wait for it.
	Subscribe(keys []event.Key, handler Handler) Subscription

	// Get returns the latest event for every key, in key order.
	// A key that was never published yields event.Invalid(key).
	Get(ctx context.Context, keys []event.Key) ([]event.Event, error)
}

// Bus is the full surface consumed by the process variable core.
type Bus interface {
	Publisher
	Subscriber
}

// Subscription is a live registration on the bus.
type Subscription interface {
	// Ready blocks until the bus has acknowledged the registration, the
	// registration failed, or ctx is done.
	Ready(ctx context.Context) error

	// Unsubscribe cancels the registration. Safe to call more than once.
	// Events already in flight may still reach the handler.
	Unsubscribe(ctx context.Context) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}
