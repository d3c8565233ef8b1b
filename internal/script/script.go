package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
	"github.com/nerrad567/gray-logic-sequencer/internal/params"
	"github.com/nerrad567/gray-logic-sequencer/internal/pv"
)

// Callback handles one event delivered to a script subscription.
type Callback func(ctx context.Context, ev event.Event) error

// Generator produces the next event for a periodic publisher. Returning
// false skips the tick.
type Generator func(ctx context.Context) (event.Event, bool)

// Context bundles the bus, the variable scheduler, and every resource a
// script creates.
//
// Thread Safety: All methods are safe for concurrent use.
type Context struct {
	bus    eventbus.Bus
	sched  *pv.Scheduler
	clock  pv.Clock
	logger pv.Logger

	mu         sync.Mutex
	subs       map[*Subscription]struct{}
	publishers map[*Periodic]struct{}
	closed     bool
}

// New creates a script context over bus. opts configures the scheduler
// that drives the script's process variables.
func New(bus eventbus.Bus, opts pv.Options) *Context {
	if opts.Clock == nil {
		opts.Clock = pv.RealClock()
	}
	return &Context{
		bus:        bus,
		sched:      pv.NewScheduler(bus, opts),
		clock:      opts.Clock,
		logger:     opts.Logger,
		subs:       make(map[*Subscription]struct{}),
		publishers: make(map[*Periodic]struct{}),
	}
}

// Scheduler returns the scheduler driving this context's variables.
func (c *Context) Scheduler() *pv.Scheduler { return c.sched }

// ParamVariable creates a process variable bound to key inside the events
// on eventKey. A zero pollInterval subscribes; a positive one polls.
func ParamVariable[T any](ctx context.Context, c *Context, initial T, eventKey string, key params.Key[T], pollInterval time.Duration) (*pv.ParamVariable[T], error) {
	return pv.NewParamVariable(ctx, c.sched, initial, eventKey, key, pollInterval)
}

// EventVariable creates a process variable caching the whole event on eventKey.
func (c *Context) EventVariable(ctx context.Context, eventKey string, pollInterval time.Duration) (*pv.EventVariable, error) {
	return pv.NewEventVariable(ctx, c.sched, eventKey, pollInterval)
}

// PublishEvent publishes ev and waits for the bus acknowledgement.
func (c *Context) PublishEvent(ctx context.Context, ev event.Event) error {
	return c.bus.Publish(ctx, ev)
}

// GetEvent returns the latest event for each key, in argument order. Keys
// never published yield event.Invalid markers.
func (c *Context) GetEvent(ctx context.Context, keys ...string) ([]event.Event, error) {
	parsed, err := parseKeys(keys)
	if err != nil {
		return nil, err
	}
	return c.bus.Get(ctx, parsed)
}

// OnEvent subscribes callback to keys and waits until the subscription is ready.
// Callbacks for one subscription run one at a time, in bus order.
func (c *Context) OnEvent(ctx context.Context, callback Callback, keys ...string) (*Subscription, error) {
	parsed, err := parseKeys(keys)
	if err != nil {
		return nil, err
	}

	s := &Subscription{owner: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.inner = c.bus.Subscribe(parsed, func(ev event.Event) {
		c.invoke(s.ctx, callback, ev)
	})

	if err := s.inner.Ready(ctx); err != nil {
		s.cancel()
		_ = s.inner.Unsubscribe(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("subscribing to %v: %w", keys, err)
	}
	if err := c.track(s); err != nil {
		_ = s.Unsubscribe(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// OnEventEvery subscribes to keys but delivers at a fixed rate: on every
// tick, callback receives the latest event of each key that has one, in
// argument order, whether or not it changed since the last tick.
func (c *Context) OnEventEvery(ctx context.Context, interval time.Duration, callback Callback, keys ...string) (*Subscription, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %v", pv.ErrInvalidInterval, interval)
	}
	parsed, err := parseKeys(keys)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	latest := make(map[event.Key]event.Event, len(parsed))

	s := &Subscription{owner: c, done: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.inner = c.bus.Subscribe(parsed, func(ev event.Event) {
		mu.Lock()
		latest[ev.Key()] = ev
		mu.Unlock()
	})

	if err := s.inner.Ready(ctx); err != nil {
		s.cancel()
		_ = s.inner.Unsubscribe(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("subscribing to %v: %w", keys, err)
	}

	ticker := c.clock.NewTicker(interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C():
			}
			for _, k := range parsed {
				mu.Lock()
				ev, ok := latest[k]
				mu.Unlock()
				if ok && s.ctx.Err() == nil {
					c.invoke(s.ctx, callback, ev)
				}
			}
		}
	}()

	if err := c.track(s); err != nil {
		_ = s.Unsubscribe(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// PublishEvery publishes the events produced by generator once per interval
// until the returned Periodic is cancelled. Publish failures are logged and
// the next tick still fires.
func (c *Context) PublishEvery(interval time.Duration, generator Generator) (*Periodic, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %v", pv.ErrInvalidInterval, interval)
	}

	p := &Periodic{owner: c, done: make(chan struct{})}
	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.cancel()
		return nil, ErrClosed
	}
	c.publishers[p] = struct{}{}
	c.mu.Unlock()

	ticker := c.clock.NewTicker(interval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
			}
			c.publishNext(ctx, generator)
		}
	}()
	return p, nil
}

func (c *Context) publishNext(ctx context.Context, generator Generator) {
	defer func() {
		if r := recover(); r != nil {
			c.warn("event generator panic recovered", "panic", r)
		}
	}()

	ev, ok := generator(ctx)
	if !ok {
		return
	}
	if err := c.bus.Publish(ctx, ev); err != nil && ctx.Err() == nil {
		c.warn("periodic publish failed", "key", ev.Key().String(), "error", err)
	}
}

// invoke runs a script callback with panic recovery.
func (c *Context) invoke(ctx context.Context, callback Callback, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.warn("event callback panic recovered", "key", ev.Key().String(), "panic", r)
		}
	}()
	if err := callback(ctx, ev); err != nil {
		c.warn("event callback returned error", "key", ev.Key().String(), "error", err)
	}
}

// Close cancels every variable, subscription and periodic publisher the
// context created, concurrently. Every teardown runs to completion under ctx
// even when another fails; the first error is returned.
// Safe to call more than once.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	pubs := make([]*Periodic, 0, len(c.publishers))
	for p := range c.publishers {
		pubs = append(pubs, p)
	}
	c.mu.Unlock()

	// A plain group: one failed teardown must not cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		return c.sched.Close(ctx)
	})
	for _, s := range subs {
		s := s
		g.Go(func() error {
			return s.Unsubscribe(ctx)
		})
	}
	for _, p := range pubs {
		p := p
		g.Go(func() error {
			p.Cancel()
			return nil
		})
	}
	return g.Wait()
}

func (c *Context) track(s *Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.subs[s] = struct{}{}
	return nil
}

func (c *Context) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func parseKeys(keys []string) ([]event.Key, error) {
	if len(keys) == 0 {
		return nil, eventbus.ErrNoKeys
	}
	out := make([]event.Key, 0, len(keys))
	for _, k := range keys {
		parsed, err := event.ParseKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
