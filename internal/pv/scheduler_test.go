package pv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus/membus"
)

// tickAndWait fires one tick and waits for the poll it triggers to reach the bus.
func tickAndWait(t *testing.T, clock *fakeClock, bus *membus.Bus) {
	t.Helper()
	before := bus.GetCalls()
	clock.Tick()
	require.Eventually(t, func() bool { return bus.GetCalls() > before }, waitFor, pollEvery)
}

func TestPollScenarioNoPublication(t *testing.T) {
	bus := membus.New()
	s := newScheduler(t, bus, Options{})

	v := newPollVar(t, s, 10, 100*time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	got, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, int32(10), got)

	calls := bus.GetCalls()
	assert.GreaterOrEqual(t, calls, 2)
	assert.LessOrEqual(t, calls, 3)
}

func TestPollRefreshesOnlyOnTicks(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	s := newScheduler(t, bus, Options{Clock: clock})
	v := newPollVar(t, s, 10, time.Second)

	var deps refreshCounter
	v.OnRefresh(deps.dependent)

	publish(t, bus, 7)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, bus.GetCalls(), "no poll between ticks")
	got, _ := v.Get()
	assert.Equal(t, int32(10), got)

	tickAndWait(t, clock, bus)
	require.Eventually(t, func() bool { return deps.count() == 1 }, waitFor, pollEvery)
	got, _ = v.Get()
	assert.Equal(t, int32(7), got)

	publish(t, bus, 8)
	tickAndWait(t, clock, bus)
	require.Eventually(t, func() bool { return deps.count() == 2 }, waitFor, pollEvery)
	got, _ = v.Get()
	assert.Equal(t, int32(8), got)
}

func TestPollNeverOverlaps(t *testing.T) {
	bus := &trackingBus{Bus: membus.New()}
	bus.SetGetDelay(120 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), eventWithValue(1)))

	s := NewScheduler(bus, Options{})
	defer s.Close(context.Background())

	v, err := NewParamVariable(context.Background(), s, 0, tempKeyStr, value, 20*time.Millisecond)
	require.NoError(t, err)
	var deps refreshCounter
	v.OnRefresh(deps.dependent)

	time.Sleep(400 * time.Millisecond)
	require.NoError(t, v.Cancel(context.Background()))

	assert.Equal(t, int32(1), bus.peak.Load(), "polls must not be in flight concurrently")
	// 20 ticks elapsed; each fetch takes 120ms.
	assert.LessOrEqual(t, bus.GetCalls(), 5)
	assert.LessOrEqual(t, deps.count(), bus.GetCalls())
}

func TestPollNoSuchValueIsNotAFailure(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	var sink errorSink
	s := newScheduler(t, bus, Options{Clock: clock, OnError: sink.report})
	newPollVar(t, s, 10, time.Second)

	tickAndWait(t, clock, bus)
	tickAndWait(t, clock, bus)

	assert.Empty(t, sink.all())
}

func TestPollFailureContinue(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	var sink errorSink
	s := newScheduler(t, bus, Options{Clock: clock, OnError: sink.report})
	v := newPollVar(t, s, 10, time.Second)

	bus.SetUnavailable(true)
	for i := 0; i < 3; i++ {
		tickAndWait(t, clock, bus)
	}
	require.Eventually(t, func() bool { return len(sink.all()) == 3 }, waitFor, pollEvery)

	var rerr *RefreshError
	require.ErrorAs(t, sink.all()[0], &rerr)
	assert.Equal(t, "poll", rerr.Op)
	assert.ErrorIs(t, rerr, eventbus.ErrBusUnavailable)

	bus.SetUnavailable(false)
	publish(t, bus, 5)
	tickAndWait(t, clock, bus)
	require.Eventually(t, func() bool {
		got, _ := v.Get()
		return got == 5
	}, waitFor, pollEvery)
}

func TestPollFailureStop(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	var sink errorSink
	s := newScheduler(t, bus, Options{Clock: clock, OnError: sink.report, PollFailurePolicy: PollFailureStop})
	v := newPollVar(t, s, 10, time.Second)

	bus.SetUnavailable(true)
	tickAndWait(t, clock, bus)
	require.Eventually(t, func() bool { return clock.liveTickers() == 0 }, waitFor, pollEvery)

	clock.Tick()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, bus.GetCalls())
	assert.Len(t, sink.all(), 1)

	// The variable still answers on-demand fetches and cancels cleanly.
	bus.SetUnavailable(false)
	publish(t, bus, 3)
	require.NoError(t, v.Fetch(context.Background()))
	require.NoError(t, v.Cancel(context.Background()))
}

func TestCancelPollStopsTicker(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	s := newScheduler(t, bus, Options{Clock: clock})
	v := newPollVar(t, s, 10, time.Second)

	tickAndWait(t, clock, bus)
	require.NoError(t, v.Cancel(context.Background()))
	assert.Zero(t, clock.liveTickers())

	calls := bus.GetCalls()
	clock.Tick()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, bus.GetCalls())
}

func TestCancelInterruptsSlowPoll(t *testing.T) {
	bus := membus.New()
	bus.SetGetDelay(time.Hour)
	clock := newFakeClock()
	s := newScheduler(t, bus, Options{Clock: clock})
	v := newPollVar(t, s, 10, time.Second)

	tickAndWait(t, clock, bus)

	done := make(chan error, 1)
	go func() { done <- v.Cancel(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Cancel blocked on an in-flight poll")
	}
}

func TestPollDependentMayCancelOwnVariable(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	s := newScheduler(t, bus, Options{Clock: clock})
	v := newPollVar(t, s, 10, time.Second)

	cancelled := make(chan error, 1)
	v.OnRefresh(func(ctx context.Context, _ string) error {
		cancelled <- v.Cancel(ctx)
		return nil
	})

	publish(t, bus, 1)
	clock.Tick()

	select {
	case err := <-cancelled:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Cancel from poll dependent deadlocked")
	}
	require.Eventually(t, func() bool { return clock.liveTickers() == 0 }, waitFor, pollEvery)
}

func TestSchedulerClose(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	s := NewScheduler(bus, Options{Clock: clock})
	ctx := context.Background()

	newPushVar(t, s, 1)
	_, err := NewEventVariable(ctx, s, "esw.test.other", 0)
	require.NoError(t, err)
	newPollVar(t, s, 2, time.Second)
	require.Equal(t, 3, s.Len())
	require.Equal(t, 2, bus.SubscriptionCount())

	require.NoError(t, s.Close(ctx))
	assert.Zero(t, s.Len())
	assert.Zero(t, bus.SubscriptionCount())
	assert.Zero(t, clock.liveTickers())

	_, err = NewParamVariable(ctx, s, 0, tempKeyStr, value, 0)
	assert.ErrorIs(t, err, ErrSchedulerClosed)
	assert.NoError(t, s.Close(ctx))
}

func TestSchedulerDefaults(t *testing.T) {
	s := NewScheduler(membus.New(), Options{})
	assert.Equal(t, PollFailureContinue, s.opts.PollFailurePolicy)
	assert.IsType(t, NoopMetrics{}, s.opts.Metrics)
	assert.NotNil(t, s.opts.Clock)
	assert.NotNil(t, s.Bus())
}
