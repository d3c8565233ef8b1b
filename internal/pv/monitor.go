package pv

import (
	"context"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
)

// Monitor is a view onto a push variable's subscription. Cancelling it
// stops the view only; the variable keeps refreshing.
//
// Updates holds at most one event: a slow reader sees the latest refresh
// and misses the ones in between.
type Monitor struct {
	v       *variable
	updates chan event.Event
}

// Monitor implements Variable. Poll-mode variables return ErrMonitorUnsupported.
func (v *variable) Monitor(ctx context.Context) (*Monitor, error) {
	if v.strategy.Mode() != ModePush {
		return nil, ErrMonitorUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &Monitor{v: v, updates: make(chan event.Event, 1)}

	v.monMu.Lock()
	defer v.monMu.Unlock()
	if v.monsClosed {
		return nil, ErrCancelled
	}
	v.monitors[m] = struct{}{}
	return m, nil
}

// Ready blocks until the underlying subscription has completed its handshake.
func (m *Monitor) Ready(ctx context.Context) error {
	if m.v.isCancelled() {
		return ErrCancelled
	}
	return m.v.sub.Ready(ctx)
}

// Updates returns the channel of refreshed events. It is closed when the
// monitor or the variable is cancelled.
func (m *Monitor) Updates() <-chan event.Event {
	return m.updates
}

// Cancel stops delivery to this monitor. Safe to call more than once.
func (m *Monitor) Cancel() {
	m.v.monMu.Lock()
	defer m.v.monMu.Unlock()
	if _, ok := m.v.monitors[m]; ok {
		delete(m.v.monitors, m)
		close(m.updates)
	}
}

// Unsubscribe implements eventbus.Subscription.
func (m *Monitor) Unsubscribe(context.Context) error {
	m.Cancel()
	return nil
}

func (v *variable) notifyMonitors(ev event.Event) {
	v.monMu.Lock()
	defer v.monMu.Unlock()

	for m := range v.monitors {
		select {
		case m.updates <- ev:
			continue
		default:
		}
		// Full: replace the stale event with the new one.
		select {
		case <-m.updates:
		default:
		}
		select {
		case m.updates <- ev:
		default:
		}
	}
}

func (v *variable) closeMonitors() {
	v.monMu.Lock()
	defer v.monMu.Unlock()

	v.monsClosed = true
	for m := range v.monitors {
		close(m.updates)
	}
	clear(v.monitors)
}
