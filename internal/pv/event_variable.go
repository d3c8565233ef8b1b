package pv

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/params"
)

// EventVariable caches the whole event published on one key.
type EventVariable struct {
	*variable
}

var _ Variable = (*EventVariable)(nil)

// NewEventVariable creates a variable bound to eventKey ("source.name").
// A zero pollInterval selects push mode and waits for the subscription
// handshake; a positive one starts polling.
//
// Until the first refresh, Get returns event.Invalid for the key.
func NewEventVariable(ctx context.Context, s *Scheduler, eventKey string, pollInterval time.Duration) (*EventVariable, error) {
	v, err := newVariable(ctx, s, eventKey, pollInterval, event.Invalid)
	if err != nil {
		return nil, err
	}
	return &EventVariable{variable: v}, nil
}

// Get returns the cached event.
func (e *EventVariable) Get() event.Event {
	return e.Latest()
}

// Set merges ps into the cached event under a fresh event ID. Local only:
// call Commit to publish.
func (e *EventVariable) Set(ps ...params.Parameter) {
	e.update(func(cur event.Event) event.Event {
		return cur.With(ps...)
	})
}

func (e *EventVariable) String() string {
	return e.Latest().String()
}
