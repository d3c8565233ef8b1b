package pv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
)

// PollFailurePolicy decides what a poll loop does after a failed fetch.
type PollFailurePolicy string

const (
	// PollFailureContinue reports the failure and keeps ticking.
	PollFailureContinue PollFailurePolicy = "continue"
	// PollFailureStop reports the failure and disarms the poll loop.
	PollFailureStop PollFailurePolicy = "stop"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Scheduler. Zero values select sensible defaults.
type Options struct {
	// Logger receives refresh failures. Optional.
	Logger Logger

	// Clock drives poll loops. Defaults to RealClock().
	Clock Clock

	// Metrics records refresh metrics. Defaults to NoopMetrics{}.
	Metrics MetricsRecorder

	// OnError receives every *RefreshError: failed polls and failing
	// dependents. It is called from refresh goroutines and must not block.
	OnError func(err error)

	// PollFailurePolicy defaults to PollFailureContinue.
	PollFailurePolicy PollFailurePolicy

	// ReadyTimeout bounds the push subscription handshake when the
	// constructor's context has no deadline. Zero waits indefinitely.
	ReadyTimeout time.Duration
}

// Scheduler drives the refresh of every variable created on it: poll loops
// for poll-mode variables and bus subscriptions for push-mode ones.
//
// Thread Safety: All methods are safe for concurrent use.
type Scheduler struct {
	bus  eventbus.Bus
	opts Options

	mu     sync.Mutex
	vars   map[*variable]struct{}
	closed bool
}

// NewScheduler creates a scheduler over bus.
func NewScheduler(bus eventbus.Bus, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.PollFailurePolicy == "" {
		opts.PollFailurePolicy = PollFailureContinue
	}
	return &Scheduler{
		bus:  bus,
		opts: opts,
		vars: make(map[*variable]struct{}),
	}
}

// Bus returns the bus the scheduler refreshes from.
func (s *Scheduler) Bus() eventbus.Bus { return s.bus }

// Len returns the number of variables currently driven.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vars)
}

// Close cancels every variable and rejects new ones. Safe to call more than once.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	vars := make([]*variable, 0, len(s.vars))
	for v := range s.vars {
		vars = append(vars, v)
	}
	s.mu.Unlock()

	var errs []error
	for _, v := range vars {
		if err := v.Cancel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cancelling %s: %w", v.key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) register(v *variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	s.vars[v] = struct{}{}
	return nil
}

func (s *Scheduler) deregister(v *variable) {
	s.mu.Lock()
	delete(s.vars, v)
	s.mu.Unlock()
}

// report sends a refresh failure to the error side channel and the log.
func (s *Scheduler) report(err *RefreshError) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn("process variable refresh error",
			"key", err.Key.String(),
			"op", err.Op,
			"error", err.Err,
		)
	}
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Scheduler) debug(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, args...)
	}
}
