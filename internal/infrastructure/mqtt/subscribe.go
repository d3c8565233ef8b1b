package mqtt

import (
	"context"
	"fmt"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "graylogic/event/+/temp"
//   - # (multi-level): "graylogic/event/#" matches every event key
//
// Retained messages matching the topic are delivered immediately after the
// subscription is acknowledged. Subscriptions are restored automatically
// after a reconnect.
//
// Parameters:
//   - ctx: Context for cancellation while waiting for the SUBACK
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil once the broker acknowledges, ErrNotConnected when offline,
//     or wrapped ErrSubscribeFailed
//
// Example:
//
//	err := client.Subscribe(ctx, mqtt.Topics{}.AllEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        ev, err := event.Unmarshal(payload)
//	        ...
//	    })
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Track before subscribing so a reconnect racing with the SUBACK still
	// restores this subscription.
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := waitToken(ctx, token, defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return err
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// The subscription is forgotten before the broker is contacted, so a later
// reconnect never restores it even if the UNSUBSCRIBE fails. Messages already
// in flight may still be delivered.
//
// Parameters:
//   - ctx: Context for cancellation while waiting for the UNSUBACK
//   - topic: The exact topic pattern that was subscribed to
//
// Returns:
//   - error: nil on success, ErrNotConnected when offline, or wrapped ErrUnsubscribeFailed
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	return waitToken(ctx, token, defaultPublishTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of tracked subscriptions.
//
// This can be useful for monitoring and debugging.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
