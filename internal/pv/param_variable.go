package pv

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/params"
)

// ParamVariable is a process variable bound to one typed parameter of the
// events published on its key.
//
// The whole event is cached, so Commit republishes a well-formed event and
// the decoded value always matches it.
type ParamVariable[T any] struct {
	*variable
	param params.Key[T]
}

// NewParamVariable creates a variable bound to param inside the events on
// eventKey, starting from a system event that carries initial.
//
// A zero pollInterval selects push mode and waits for the subscription
// handshake (bounded by ctx or Options.ReadyTimeout). A positive interval
// polls. A negative interval fails with ErrInvalidInterval.
func NewParamVariable[T any](ctx context.Context, s *Scheduler, initial T, eventKey string, param params.Key[T], pollInterval time.Duration) (*ParamVariable[T], error) {
	v, err := newVariable(ctx, s, eventKey, pollInterval, func(key event.Key) event.Event {
		return event.NewSystemEvent(key, param.Set(initial))
	})
	if err != nil {
		return nil, err
	}
	return &ParamVariable[T]{variable: v, param: param}, nil
}

// ParamKey returns the parameter key the variable reads and writes.
func (p *ParamVariable[T]) ParamKey() params.Key[T] {
	return p.param
}

// Get returns the cached value. It reports false when the cached event does
// not carry the parameter with the expected type.
func (p *ParamVariable[T]) Get() (T, bool) {
	ev := p.Latest()
	if ev.IsInvalid() {
		var zero T
		return zero, false
	}
	return p.param.Get(ev.Params)
}

// MustGet is Get for callers that require a value.
func (p *ParamVariable[T]) MustGet() (T, error) {
	v, ok := p.Get()
	if !ok {
		return v, fmt.Errorf("%w: %s carries no %s", ErrNoSuchValue, p.key, p.param)
	}
	return v, nil
}

// Set replaces the parameter in the cached event under a fresh event ID,
// keeping every other parameter. Local only: call Commit to publish.
func (p *ParamVariable[T]) Set(value T) {
	p.update(func(cur event.Event) event.Event {
		return cur.With(p.param.Set(value))
	})
}

func (p *ParamVariable[T]) String() string {
	if v, ok := p.Get(); ok {
		return fmt.Sprint(v)
	}
	return "<absent>"
}

var _ Variable = (*ParamVariable[int])(nil)
