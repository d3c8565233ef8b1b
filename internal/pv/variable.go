package pv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
)

// Variable is the surface shared by EventVariable and ParamVariable.
type Variable interface {
	// Key returns the event key the variable is bound to.
	Key() event.Key

	// Strategy returns the refresh strategy chosen at construction.
	Strategy() Strategy

	// Latest returns the cached event. It is event.Invalid(Key()) until a
	// value has been set or received.
	Latest() event.Event

	// Commit publishes the cached event and waits for the bus acknowledgement.
	Commit(ctx context.Context) error

	// Fetch reads the latest event from the bus and refreshes the cache.
	Fetch(ctx context.Context) error

	// Monitor exposes the push subscription as an independently cancellable handle.
	Monitor(ctx context.Context) (*Monitor, error)

	// OnRefresh registers a dependent and returns a function that removes it.
	OnRefresh(fn Dependent) (remove func())

	// Cancel stops refreshing. Safe to call more than once.
	Cancel(ctx context.Context) error
}

// variable is the refresh core shared by both variable kinds.
type variable struct {
	sched    *Scheduler
	key      event.Key
	strategy Strategy

	// mu guards cached; held only around reads and writes of it.
	mu     sync.RWMutex
	cached event.Event

	depMu   sync.Mutex
	deps    []dependent
	nextDep uint64

	// The gate admits refreshes until cancelled and counts those in
	// progress so Cancel can wait them out.
	gateMu    sync.Mutex
	gateCond  *sync.Cond
	active    int
	cancelled bool

	runCtx   context.Context
	stopRun  context.CancelFunc
	sub      eventbus.Subscription
	pollDone chan struct{}

	monMu      sync.Mutex
	monitors   map[*Monitor]struct{}
	monsClosed bool
}

// newVariable parses the key, selects the strategy from pollInterval and
// starts the refresh driver. initial builds the cache before the first refresh.
func newVariable(ctx context.Context, s *Scheduler, eventKey string, pollInterval time.Duration, initial func(event.Key) event.Event) (*variable, error) {
	if s == nil {
		return nil, errors.New("pv: scheduler is required")
	}
	key, err := event.ParseKey(eventKey)
	if err != nil {
		return nil, err
	}
	strategy, err := StrategyFor(pollInterval)
	if err != nil {
		return nil, err
	}
	return startVariable(ctx, s, key, strategy, initial(key))
}

func startVariable(ctx context.Context, s *Scheduler, key event.Key, strategy Strategy, initial event.Event) (*variable, error) {
	if err := strategy.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSchedulerClosed
	}

	runCtx, stop := context.WithCancel(context.Background())
	v := &variable{
		sched:    s,
		key:      key,
		strategy: strategy,
		cached:   initial,
		runCtx:   runCtx,
		stopRun:  stop,
		monitors: make(map[*Monitor]struct{}),
	}
	v.gateCond = sync.NewCond(&v.gateMu)

	switch strategy.Mode() {
	case ModePoll:
		v.pollDone = make(chan struct{})
		go v.pollLoop(s.opts.Clock.NewTicker(strategy.Interval()))
	case ModePush:
		if err := v.subscribe(ctx); err != nil {
			v.gateMu.Lock()
			v.cancelled = true
			v.gateMu.Unlock()
			stop()
			return nil, err
		}
	}

	// Registering last keeps Scheduler.Close from seeing a half-started variable.
	if err := s.register(v); err != nil {
		_ = v.Cancel(context.WithoutCancel(ctx))
		return nil, err
	}

	s.debug("process variable started", "key", key.String(), "strategy", strategy.String())
	return v, nil
}

// subscribe registers the push handler and waits for the bus handshake.
func (v *variable) subscribe(ctx context.Context) error {
	v.sub = v.sched.bus.Subscribe([]event.Key{v.key}, v.onPush)

	readyCtx := ctx
	if _, ok := ctx.Deadline(); !ok && v.sched.opts.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, v.sched.opts.ReadyTimeout)
		defer cancel()
	}

	if err := v.sub.Ready(readyCtx); err != nil {
		_ = v.sub.Unsubscribe(context.WithoutCancel(ctx))
		return fmt.Errorf("subscribing to %s: %w", v.key, err)
	}
	return nil
}

func (v *variable) onPush(ev event.Event) {
	if ev.IsInvalid() {
		return
	}
	v.refresh(v.runCtx, ev, OriginPush)
}

// pollLoop fetches on every tick until cancelled. The fetch runs inline, so
// a slow bus delays the next tick instead of overlapping it.
func (v *variable) pollLoop(ticker Ticker) {
	defer close(v.pollDone)
	defer ticker.Stop()

	for {
		select {
		case <-v.runCtx.Done():
			return
		case <-ticker.C():
		}

		err := v.fetch(v.runCtx, OriginPoll)
		switch {
		case err == nil:
		case v.runCtx.Err() != nil, errors.Is(err, ErrCancelled):
			return
		case errors.Is(err, ErrNoSuchValue):
			v.sched.debug("poll found no value", "key", v.key.String())
		default:
			v.sched.opts.Metrics.RecordPollFailure(v.runCtx, v.key.String())
			v.sched.report(&RefreshError{Key: v.key, Op: "poll", Err: err})
			if v.sched.opts.PollFailurePolicy == PollFailureStop {
				if v.sched.opts.Logger != nil {
					v.sched.opts.Logger.Error("poll loop stopped after failure", "key", v.key.String())
				}
				return
			}
		}
	}
}

// enter admits one refresh unless the variable is cancelled.
func (v *variable) enter() bool {
	v.gateMu.Lock()
	defer v.gateMu.Unlock()
	if v.cancelled {
		return false
	}
	v.active++
	return true
}

func (v *variable) exit() {
	v.gateMu.Lock()
	v.active--
	v.gateCond.Broadcast()
	v.gateMu.Unlock()
}

// refresh replaces the cache with ev and then runs monitors and dependents.
// It returns false when the variable has been cancelled.
func (v *variable) refresh(ctx context.Context, ev event.Event, origin Origin) bool {
	if !v.enter() {
		return false
	}
	defer v.exit()

	v.mu.Lock()
	v.cached = ev
	v.mu.Unlock()

	source := v.key.String()
	v.sched.opts.Metrics.RecordRefresh(ctx, source, v.strategy.Mode(), origin)
	v.notifyMonitors(ev)
	v.runDependents(withFrame(ctx, v), source)
	return true
}

// Key implements Variable.
func (v *variable) Key() event.Key { return v.key }

// Strategy implements Variable.
func (v *variable) Strategy() Strategy { return v.strategy }

// Latest implements Variable.
func (v *variable) Latest() event.Event {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cached
}

// update applies f to the cached event. Local only: nothing is published
// and no dependent runs.
func (v *variable) update(f func(event.Event) event.Event) {
	v.mu.Lock()
	v.cached = f(v.cached)
	v.mu.Unlock()
}

// Commit implements Variable. Bus errors are surfaced unchanged
// (eventbus.ErrPublishFailure, eventbus.ErrBusUnavailable); nothing is retried.
func (v *variable) Commit(ctx context.Context) error {
	ev := v.Latest()
	if ev.IsInvalid() {
		return fmt.Errorf("%w: nothing to commit for %s", ErrNoSuchValue, v.key)
	}
	if err := v.sched.bus.Publish(ctx, ev); err != nil {
		return fmt.Errorf("committing %s: %w", v.key, err)
	}
	return nil
}

// Fetch implements Variable. A key that was never published yields
// ErrNoSuchValue and leaves the cache untouched.
func (v *variable) Fetch(ctx context.Context) error {
	return v.fetch(ctx, OriginFetch)
}

func (v *variable) fetch(ctx context.Context, origin Origin) error {
	if v.isCancelled() {
		return ErrCancelled
	}

	clock := v.sched.opts.Clock
	start := clock.Now()
	evs, err := v.sched.bus.Get(ctx, []event.Key{v.key})
	if err == nil && len(evs) != 1 {
		err = fmt.Errorf("bus returned %d events for one key", len(evs))
	}
	v.sched.opts.Metrics.RecordFetch(ctx, v.key.String(), clock.Now().Sub(start), err)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", v.key, err)
	}

	if evs[0].IsInvalid() {
		return fmt.Errorf("%w: %s has never been published", ErrNoSuchValue, v.key)
	}
	if !v.refresh(ctx, evs[0], origin) {
		return ErrCancelled
	}
	return nil
}

// Cancel implements Variable. When it returns, no refresh is running and
// none will start, except the refresh whose dependent is calling Cancel
// with the context it was given.
func (v *variable) Cancel(ctx context.Context) error {
	v.gateMu.Lock()
	first := !v.cancelled
	v.cancelled = true
	v.gateMu.Unlock()

	var err error
	if first {
		v.stopRun()
		if v.sub != nil {
			if uerr := v.sub.Unsubscribe(ctx); uerr != nil {
				err = fmt.Errorf("unsubscribing %s: %w", v.key, uerr)
			}
		}
		v.closeMonitors()
	}

	held := heldBy(ctx, v)
	v.gateMu.Lock()
	for v.active > held {
		v.gateCond.Wait()
	}
	v.gateMu.Unlock()

	if v.pollDone != nil && held == 0 {
		<-v.pollDone
	}

	if first {
		v.sched.deregister(v)
		v.sched.debug("process variable cancelled", "key", v.key.String())
	}
	return err
}

func (v *variable) isCancelled() bool {
	v.gateMu.Lock()
	defer v.gateMu.Unlock()
	return v.cancelled
}

type frameKey struct{}

// frame marks a context as running inside a refresh of v.
type frame struct {
	v      *variable
	parent *frame
}

func withFrame(ctx context.Context, v *variable) context.Context {
	parent, _ := ctx.Value(frameKey{}).(*frame)
	return context.WithValue(ctx, frameKey{}, &frame{v: v, parent: parent})
}

// heldBy counts the refreshes of v that ctx is running inside.
func heldBy(ctx context.Context, v *variable) int {
	n := 0
	f, _ := ctx.Value(frameKey{}).(*frame)
	for ; f != nil; f = f.parent {
		if f.v == v {
			n++
		}
	}
	return n
}
