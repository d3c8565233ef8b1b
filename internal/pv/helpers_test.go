package pv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus/membus"
	"github.com/nerrad567/gray-logic-sequencer/internal/params"
)

const tempKeyStr = "esw.test.temp"

var (
	tempKey = event.MustParseKey(tempKeyStr)
	value   = params.IntKey("value")
)

// fakeClock is a Clock whose tickers fire only when Tick is called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tick fires every live ticker once. Like time.Ticker, a ticker whose
// previous tick is still unread drops this one.
func (c *fakeClock) Tick() {
	c.mu.Lock()
	c.now = c.now.Add(time.Second)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

func (c *fakeClock) liveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

// trackingBus records the peak number of concurrent Get calls.
type trackingBus struct {
	*membus.Bus
	inflight atomic.Int32
	peak     atomic.Int32
}

func (b *trackingBus) Get(ctx context.Context, keys []event.Key) ([]event.Event, error) {
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return b.Bus.Get(ctx, keys)
}

// errorSink collects errors reported through Options.OnError.
type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) report(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// refreshCounter is a Dependent that counts calls.
type refreshCounter struct {
	n       atomic.Int32
	sources sync.Map
}

func (c *refreshCounter) dependent(_ context.Context, source string) error {
	c.n.Add(1)
	c.sources.Store(source, true)
	return nil
}

func (c *refreshCounter) count() int { return int(c.n.Load()) }

func newScheduler(t *testing.T, bus *membus.Bus, opts Options) *Scheduler {
	t.Helper()
	s := NewScheduler(bus, opts)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func publish(t *testing.T, bus *membus.Bus, v int32) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), event.NewSystemEvent(tempKey, value.Set(v))))
}

const waitFor = 2 * time.Second
const pollEvery = 5 * time.Millisecond

func eventWithValue(v int32) event.Event {
	return event.NewSystemEvent(tempKey, value.Set(v))
}
