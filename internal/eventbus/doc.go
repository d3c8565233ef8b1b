// Package eventbus defines the narrow surface the sequencer needs from the
// event bus, plus the in-process fan-out shared by its adapters.
//
// The core only ever needs three operations:
//
//	Publish(ctx, event)                 // suspends until acknowledged
//	Subscribe(keys, handler)            // ready handshake + unsubscribe
//	Get(ctx, keys)                      // latest event per key
//
// Transport, serialisation and discovery belong to the adapters:
//
//   - membus: local in-memory bus, also used as the test double
//   - mqttbus: retained-message bus over the MQTT broker
//
// # Delivery Semantics
//
// Both adapters deliver through a Hub. Each subscription has its own
// delivery goroutine, so events for a key reach a handler in the order the
// bus accepted them, and a slow handler never blocks the publisher or other
// subscriptions. A new subscription first receives the current latest event
// for each of its keys (if any), mirroring retained-message behaviour.
package eventbus
