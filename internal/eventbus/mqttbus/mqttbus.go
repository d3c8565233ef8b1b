// Package mqttbus provides an eventbus.Bus over the MQTT broker.
//
// Each event key maps to one retained topic, {prefix}/{source}/{name}, whose
// payload is the JSON wire form of the latest event. The bus holds a single
// wildcard subscription on {prefix}/# and feeds every decoded event into an
// eventbus.Hub, which serves subscriptions and latest-value gets locally.
//
// Events published through the bus are dispatched to the hub as soon as the
// broker accepts them, so a Get straight after Publish sees the new value.
// The broker's echo of such an event is recognised by ID and dropped.
package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/mqtt"
)

// Client is the subset of the MQTT client the bus depends on.
// Satisfied by *mqtt.Client.
type Client interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	IsConnected() bool
}

// Options configures a Bus.
type Options struct {
	// Client is the connected MQTT client. Required.
	Client Client

	// TopicPrefix is the event topic root. Defaults to mqtt.TopicPrefixEvent.
	TopicPrefix string

	// QoS for publishes and the wildcard subscription.
	QoS byte

	// Logger receives decode failures and handler panics. Optional.
	Logger eventbus.Logger
}

// Bus is an eventbus.Bus backed by retained MQTT topics.
//
// Thread Safety: All methods are safe for concurrent use.
type Bus struct {
	client Client
	topics mqtt.Topics
	qos    byte
	hub    *eventbus.Hub
	logger eventbus.Logger

	// echoes holds IDs of events published here whose broker echo has not
	// arrived yet. Bounded by maxPendingEchoes, oldest dropped first.
	echoMu    sync.Mutex
	echoes    map[string]struct{}
	echoOrder []string
}

// maxPendingEchoes bounds the echo set when the broker never delivers
// (for example a publish accepted just before a disconnect).
const maxPendingEchoes = 1024

// New creates a bus and subscribes to every event topic under the prefix.
// Retained messages already on the broker populate the latest-value cache
// as the broker delivers them.
func New(ctx context.Context, opts Options) (*Bus, error) {
	if opts.Client == nil {
		return nil, errors.New("mqttbus: client is required")
	}
	prefix := strings.TrimSuffix(opts.TopicPrefix, "/")
	if prefix == "" {
		prefix = mqtt.TopicPrefixEvent
	}

	b := &Bus{
		client: opts.Client,
		topics: mqtt.Topics{Prefix: prefix},
		qos:    opts.QoS,
		hub:    eventbus.NewHub(),
		logger: opts.Logger,
		echoes: make(map[string]struct{}),
	}
	if opts.Logger != nil {
		b.hub.SetLogger(opts.Logger)
	}

	if err := b.client.Subscribe(ctx, b.topics.AllEvents(), b.qos, b.handleMessage); err != nil {
		return nil, fmt.Errorf("%w: subscribing to %s: %w", eventbus.ErrBusUnavailable, b.topics.AllEvents(), err)
	}
	return b, nil
}

// handleMessage decodes one broker message into the hub.
func (b *Bus) handleMessage(topic string, payload []byte) error {
	// An empty retained payload clears the topic on the broker.
	if len(payload) == 0 {
		return nil
	}

	ev, err := event.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", topic, err)
	}
	if want := b.topics.Event(ev.Source, ev.Name); want != topic {
		return fmt.Errorf("%w: event %s received on topic %s", event.ErrInvalidEvent, ev.Key(), topic)
	}

	if b.takeEcho(ev.ID) {
		return nil
	}
	b.hub.Dispatch(ev)
	return nil
}

// expectEcho records id as published locally.
func (b *Bus) expectEcho(id string) {
	b.echoMu.Lock()
	defer b.echoMu.Unlock()

	if len(b.echoOrder) >= maxPendingEchoes {
		delete(b.echoes, b.echoOrder[0])
		b.echoOrder = b.echoOrder[1:]
	}
	b.echoes[id] = struct{}{}
	b.echoOrder = append(b.echoOrder, id)
}

// takeEcho reports whether id was published locally and forgets it.
func (b *Bus) takeEcho(id string) bool {
	b.echoMu.Lock()
	defer b.echoMu.Unlock()

	if _, ok := b.echoes[id]; !ok {
		return false
	}
	delete(b.echoes, id)
	for i, pending := range b.echoOrder {
		if pending == id {
			b.echoOrder = append(b.echoOrder[:i], b.echoOrder[i+1:]...)
			break
		}
	}
	return true
}

// Publish implements eventbus.Publisher. The event is retained so late
// subscribers and gets see it as the latest value for its key.
//
// Once the broker accepts the event it is dispatched locally without
// waiting for the echo, so a following Get on this bus returns it.
func (b *Bus) Publish(ctx context.Context, ev event.Event) error {
	if ev.IsInvalid() {
		return fmt.Errorf("%w: refusing to publish invalid marker for %s", eventbus.ErrPublishFailure, ev.Key())
	}
	if err := ev.Key().Validate(); err != nil {
		return fmt.Errorf("%w: %w", eventbus.ErrPublishFailure, err)
	}
	if !b.client.IsConnected() {
		return eventbus.ErrBusUnavailable
	}

	payload, err := event.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %w", eventbus.ErrPublishFailure, err)
	}

	// Registered before publishing since the echo may beat Publish's return.
	b.expectEcho(ev.ID)
	if err := b.client.Publish(ctx, b.topics.Event(ev.Source, ev.Name), payload, b.qos, true); err != nil {
		b.takeEcho(ev.ID)
		return mapError(err)
	}
	b.hub.Dispatch(ev)
	return nil
}

// Subscribe implements eventbus.Subscriber.
//
// The wildcard subscription is acknowledged before New returns, so a
// subscription is ready as soon as it is registered with the hub.
func (b *Bus) Subscribe(keys []event.Key, handler eventbus.Handler) eventbus.Subscription {
	if len(keys) == 0 {
		return failedSubscription{err: eventbus.ErrNoKeys}
	}
	if !b.client.IsConnected() {
		return failedSubscription{err: eventbus.ErrBusUnavailable}
	}
	return b.hub.Subscribe(keys, handler)
}

// Get implements eventbus.Subscriber. Values come from the retained-message
// cache; a disconnected broker fails rather than serving stale data.
func (b *Bus) Get(ctx context.Context, keys []event.Key) ([]event.Event, error) {
	if len(keys) == 0 {
		return nil, eventbus.ErrNoKeys
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.client.IsConnected() {
		return nil, eventbus.ErrBusUnavailable
	}
	return b.hub.Latest(keys), nil
}

// Close drops the wildcard subscription and stops every bus subscription.
// The MQTT client itself is owned by the caller.
func (b *Bus) Close(ctx context.Context) error {
	defer b.hub.Close()

	if !b.client.IsConnected() {
		return nil
	}
	if err := b.client.Unsubscribe(ctx, b.topics.AllEvents()); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", b.topics.AllEvents(), err)
	}
	return nil
}

// mapError translates MQTT client errors into bus errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, mqtt.ErrNotConnected), errors.Is(err, mqtt.ErrTimeout):
		return fmt.Errorf("%w: %w", eventbus.ErrBusUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", eventbus.ErrPublishFailure, err)
	}
}

type failedSubscription struct {
	err error
}

func (f failedSubscription) Ready(context.Context) error       { return f.err }
func (f failedSubscription) Unsubscribe(context.Context) error { return nil }
