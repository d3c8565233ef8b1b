package mqtt

import "fmt"

// Topic roots.
const (
	// TopicPrefixEvent is the default root for event-key topics.
	TopicPrefixEvent = "graylogic/event"

	// TopicPrefixSequencer is the root for sequencer lifecycle topics.
	TopicPrefixSequencer = "graylogic/sequencer"
)

// Topics provides builders for sequencer MQTT topics.
//
//	topics := mqtt.Topics{Prefix: "graylogic/event"}
//	topics.Event("esw.test", "temp") // graylogic/event/esw.test/temp
type Topics struct {
	// Prefix overrides TopicPrefixEvent when non-empty.
	Prefix string
}

func (t Topics) eventRoot() string {
	if t.Prefix != "" {
		return t.Prefix
	}
	return TopicPrefixEvent
}

// Event returns the topic carrying events for one key.
//
// Example: graylogic/event/esw.test/temp
func (t Topics) Event(source, name string) string {
	return fmt.Sprintf("%s/%s/%s", t.eventRoot(), source, name)
}

// AllEvents returns a pattern matching every event key.
//
// Pattern: graylogic/event/#
func (t Topics) AllEvents() string {
	return t.eventRoot() + "/#"
}

// SequencerStatus returns the retained online/offline topic for a client.
//
// Example: graylogic/sequencer/graylogic-sequencer/status
func (Topics) SequencerStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixSequencer, clientID)
}
