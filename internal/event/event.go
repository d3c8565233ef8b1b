package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sequencer/internal/params"
)

// Kind distinguishes the event families carried on the bus.
type Kind string

// Event kinds.
const (
	KindSystem  Kind = "system"
	KindObserve Kind = "observe"
)

// InvalidID is the ID carried by the "never published" marker event.
const InvalidID = "-1"

// Event is an immutable, fully-formed bus event.
//
// Use With to derive a modified copy; never mutate Params in place.
type Event struct {
	Kind   Kind            `json:"kind"`
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Name   string          `json:"name"`
	Time   time.Time       `json:"time"`
	Params params.ParamSet `json:"params"`
}

// NewSystemEvent builds a system event for key with a fresh ID and timestamp.
func NewSystemEvent(key Key, ps ...params.Parameter) Event {
	return newEvent(KindSystem, key, ps)
}

// NewObserveEvent builds an observe event for key with a fresh ID and timestamp.
func NewObserveEvent(key Key, ps ...params.Parameter) Event {
	return newEvent(KindObserve, key, ps)
}

func newEvent(kind Kind, key Key, ps []params.Parameter) Event {
	return Event{
		Kind:   kind,
		ID:     uuid.NewString(),
		Source: key.Source,
		Name:   key.Name,
		Time:   time.Now().UTC(),
		Params: params.NewParamSet(ps...),
	}
}

// Invalid returns the marker event the bus hands out for a key that has
// never been published.
func Invalid(key Key) Event {
	return Event{
		Kind:   KindSystem,
		ID:     InvalidID,
		Source: key.Source,
		Name:   key.Name,
	}
}

// IsInvalid reports whether e is the "never published" marker.
func (e Event) IsInvalid() bool {
	return e.ID == InvalidID
}

// Key returns the key this event is published on.
func (e Event) Key() Key {
	return Key{Source: e.Source, Name: e.Name}
}

// With returns a copy of e carrying ps merged into its parameters, with a
// fresh ID and timestamp so the copy is a distinct publication.
func (e Event) With(ps ...params.Parameter) Event {
	out := e
	if out.Kind == "" {
		out.Kind = KindSystem
	}
	out.ID = uuid.NewString()
	out.Time = time.Now().UTC()
	out.Params = e.Params.Add(ps...)
	return out
}

// String implements fmt.Stringer for logs.
func (e Event) String() string {
	if e.IsInvalid() {
		return fmt.Sprintf("%s(invalid)", e.Key())
	}
	return fmt.Sprintf("%s[%s] %v", e.Key(), e.Kind, e.Params.Names())
}

// Marshal encodes e in the bus wire format.
func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.Key(), err)
	}
	return data, nil
}

// Unmarshal decodes an event from the bus wire format.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := e.Key().Validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if e.ID == "" {
		return Event{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	switch e.Kind {
	case KindSystem, KindObserve:
	default:
		return Event{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return e, nil
}
