// Package membus provides an in-process event bus.
//
// It backs scripts that run without a broker and doubles as the bus used
// by tests: failure injection hooks let a test take the bus offline, reject
// publishes, slow down gets, or hold subscription readiness.
package membus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
)

// Bus is an in-memory eventbus.Bus.
//
// Thread Safety: All methods are safe for concurrent use.
type Bus struct {
	hub *eventbus.Hub

	mu          sync.Mutex
	unavailable bool
	publishErr  error
	getDelay    time.Duration
	readyGate   chan struct{}

	published []event.Event
	getCalls  int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{hub: eventbus.NewHub()}
}

// SetLogger sets a logger for handler panics.
func (b *Bus) SetLogger(logger eventbus.Logger) {
	b.hub.SetLogger(logger)
}

// Publish implements eventbus.Publisher.
func (b *Bus) Publish(ctx context.Context, ev event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	unavailable, publishErr := b.unavailable, b.publishErr
	b.mu.Unlock()

	if unavailable {
		return eventbus.ErrBusUnavailable
	}
	if publishErr != nil {
		return fmt.Errorf("%w: %w", eventbus.ErrPublishFailure, publishErr)
	}
	if ev.IsInvalid() {
		return fmt.Errorf("%w: refusing to publish invalid marker for %s", eventbus.ErrPublishFailure, ev.Key())
	}
	if err := ev.Key().Validate(); err != nil {
		return fmt.Errorf("%w: %w", eventbus.ErrPublishFailure, err)
	}

	b.mu.Lock()
	b.published = append(b.published, ev)
	b.mu.Unlock()

	b.hub.Dispatch(ev)
	return nil
}

// Subscribe implements eventbus.Subscriber.
func (b *Bus) Subscribe(keys []event.Key, handler eventbus.Handler) eventbus.Subscription {
	if len(keys) == 0 {
		return failedSubscription{err: eventbus.ErrNoKeys}
	}

	b.mu.Lock()
	unavailable, gate := b.unavailable, b.readyGate
	b.mu.Unlock()

	if unavailable {
		return failedSubscription{err: eventbus.ErrBusUnavailable}
	}

	return &subscription{
		inner: b.hub.Subscribe(keys, handler),
		gate:  gate,
	}
}

// Get implements eventbus.Subscriber.
func (b *Bus) Get(ctx context.Context, keys []event.Key) ([]event.Event, error) {
	if len(keys) == 0 {
		return nil, eventbus.ErrNoKeys
	}

	b.mu.Lock()
	b.getCalls++
	unavailable, delay := b.unavailable, b.getDelay
	b.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if unavailable {
		return nil, eventbus.ErrBusUnavailable
	}
	return b.hub.Latest(keys), nil
}

// Close stops every subscription.
func (b *Bus) Close() {
	b.hub.Close()
}

// =============================================================================
// Failure injection and inspection
// =============================================================================

// SetUnavailable takes the bus offline (or back online).
func (b *Bus) SetUnavailable(unavailable bool) {
	b.mu.Lock()
	b.unavailable = unavailable
	b.mu.Unlock()
}

// FailPublish makes every publish fail with err wrapped in ErrPublishFailure.
// Pass nil to restore normal behaviour.
func (b *Bus) FailPublish(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

// SetGetDelay delays every Get by d, simulating bus latency.
func (b *Bus) SetGetDelay(d time.Duration) {
	b.mu.Lock()
	b.getDelay = d
	b.mu.Unlock()
}

// HoldReady makes subscriptions created from now on report ready only once
// the returned release function is called.
func (b *Bus) HoldReady() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.readyGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			b.mu.Lock()
			if b.readyGate == gate {
				b.readyGate = nil
			}
			b.mu.Unlock()
		})
	}
}

// Published returns a copy of every event accepted by Publish.
func (b *Bus) Published() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Event(nil), b.published...)
}

// GetCalls returns how many times Get has been called.
func (b *Bus) GetCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getCalls
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Bus) SubscriptionCount() int {
	return b.hub.SubscriptionCount()
}

// =============================================================================
// Subscriptions
// =============================================================================

type subscription struct {
	inner *eventbus.HubSubscription
	gate  chan struct{}
}

func (s *subscription) Ready(ctx context.Context) error {
	if s.gate != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.gate:
		}
	}
	return s.inner.Ready(ctx)
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	return s.inner.Unsubscribe(ctx)
}

type failedSubscription struct {
	err error
}

func (f failedSubscription) Ready(context.Context) error       { return f.err }
func (f failedSubscription) Unsubscribe(context.Context) error { return nil }
