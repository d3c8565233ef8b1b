// Package mqtt provides MQTT client connectivity for the Gray Logic sequencer.
//
// This package manages:
//   - Connection to a Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees and context cancellation
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The sequencer uses MQTT as the event stream. Each event key has its own
// retained topic, so the broker holds the latest event for every key and
// delivers it to new subscribers:
//
//	sequencer scripts ↔ eventbus/mqttbus ↔ MQTT Broker ↔ other sequencers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.Events.TopicPrefix}
//	err = client.Subscribe(ctx, topics.AllEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return hub.Decode(topic, payload)
//	    })
//
//	err = client.PublishRetained(ctx, topics.Event("esw.test", "temp"), payload)
package mqtt
