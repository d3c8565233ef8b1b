package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// Larger payloads are rejected before reaching the broker.
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic and waits for the
// broker acknowledgement (for QoS > 0), the publish timeout, or ctx.
//
// Parameters:
//   - ctx: Context for cancellation
//   - topic: The topic to publish to (e.g., "graylogic/event/esw.test/temp")
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS Levels:
//   - 0: At most once (fire and forget, returns once written)
//   - 1: At least once (waits for PUBACK, may duplicate)
//   - 2: Exactly once (waits for PUBCOMP, higher overhead)
//
// Retained Messages:
//   - The broker keeps the last message per topic
//   - New subscribers receive it immediately
//   - Event topics are retained so Get can serve the latest event per key
//
// Returns:
//   - error: nil on success, ErrNotConnected when offline, or wrapped ErrPublishFailed
//
// Example:
//
//	topic := mqtt.Topics{}.Event("esw.test", "temp")
//	err := client.Publish(ctx, topic, payload, 1, true)
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	return waitToken(ctx, token, defaultPublishTimeout, ErrPublishFailed)
}

// PublishRetained publishes a retained message with the configured default QoS.
//
// Use for state topics where new subscribers should receive the current value.
// It is equivalent to Publish with DefaultQoS and retained set.
func (c *Client) PublishRetained(ctx context.Context, topic string, payload []byte) error {
	return c.Publish(ctx, topic, payload, byte(c.cfg.QoS), true)
}

// DefaultQoS returns the QoS level configured for this client.
func (c *Client) DefaultQoS() byte {
	return byte(c.cfg.QoS)
}
