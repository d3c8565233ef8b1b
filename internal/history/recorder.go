package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sequencer/internal/pv"
)

// PointWriter receives numeric samples for the time-series database.
// Satisfied by *influxdb.Client.
type PointWriter interface {
	WriteSample(variable, eventKey, param string, value float64, ts time.Time)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
}

// Recorder turns variable refreshes into history samples.
//
// Either sink may be nil: a Recorder with no repository only writes points,
// and one with no PointWriter only stores samples.
type Recorder struct {
	repo   Repository
	points PointWriter
	logger Logger

	mu      sync.Mutex
	detach  []func()
	stopped bool
}

// NewRecorder creates a Recorder writing to repo and points.
func NewRecorder(repo Repository, points PointWriter, logger Logger) *Recorder {
	return &Recorder{repo: repo, points: points, logger: logger}
}

// Attach records every refresh of v under name. param names the parameter
// to record; empty records the whole parameter set. The returned function
// detaches the recorder from v.
//
// Storage errors are returned from the dependent, so the variable's
// scheduler reports them like any failing dependent.
func (r *Recorder) Attach(name string, v pv.Variable, param string) (detach func()) {
	remove := v.OnRefresh(func(ctx context.Context, source string) error {
		return r.record(ctx, name, v, param, source)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		remove()
		return func() {}
	}
	r.detach = append(r.detach, remove)
	return remove
}

// Close detaches the recorder from every variable it was attached to.
func (r *Recorder) Close() {
	r.mu.Lock()
	detach := r.detach
	r.detach = nil
	r.stopped = true
	r.mu.Unlock()

	for _, remove := range detach {
		remove()
	}
}

func (r *Recorder) record(ctx context.Context, name string, v pv.Variable, param, source string) error {
	ev := v.Latest()
	if ev.IsInvalid() {
		return nil
	}

	s := Sample{
		Variable: name,
		EventKey: v.Key().String(),
		Param:    param,
		EventID:  ev.ID,
		Source:   source,
	}

	var raw any = ev.Params
	if param != "" {
		p, ok := ev.Params.Find(param)
		if !ok {
			if r.logger != nil {
				r.logger.Debug("refresh without recorded parameter", "variable", name, "param", param)
			}
			return nil
		}
		raw = p.Values
		if n, ok := numericValue(p.First()); ok {
			s.Numeric = &n
		}
	}

	value, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding sample for %s: %w", name, err)
	}
	s.Value = value

	if s.Numeric != nil && r.points != nil {
		r.points.WriteSample(name, s.EventKey, param, *s.Numeric, ev.Time)
	}
	if r.repo == nil {
		return nil
	}
	if err := r.repo.RecordSample(ctx, s); err != nil {
		return fmt.Errorf("recording sample for %s: %w", name, err)
	}
	return nil
}

// numericValue converts the wire representations of numeric and boolean
// parameters to float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
