package eventbus

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
)

// Hub fans events out to subscriptions and remembers the latest event per key.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Dispatch never blocks on handlers.
type Hub struct {
	mu     sync.Mutex
	latest map[event.Key]event.Event
	subs   map[uint64]*hubSubscription
	nextID uint64
	closed bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		latest: make(map[event.Key]event.Event),
		subs:   make(map[uint64]*hubSubscription),
	}
}

// SetLogger sets a logger for handler panics.
func (h *Hub) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *Hub) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

// Dispatch records ev as the latest event for its key and queues it for
// every subscription on that key. Invalid marker events are dropped.
func (h *Hub) Dispatch(ev event.Event) {
	if ev.IsInvalid() {
		return
	}
	key := ev.Key()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest[key] = ev
	for _, s := range h.subs {
		if _, ok := s.keys[key]; ok {
			s.enqueue(ev)
		}
	}
}

// Latest returns the latest event for each key, or event.Invalid for keys
// that have never been dispatched.
func (h *Hub) Latest(keys []event.Key) []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]event.Event, len(keys))
	for i, k := range keys {
		if ev, ok := h.latest[k]; ok {
			out[i] = ev
		} else {
			out[i] = event.Invalid(k)
		}
	}
	return out
}

// Subscribe registers handler for keys. The current latest event of each key
// is queued ahead of anything dispatched afterwards.
func (h *Hub) Subscribe(keys []event.Key, handler Handler) *HubSubscription {
	s := &hubSubscription{
		hub:     h,
		keys:    make(map[event.Key]struct{}, len(keys)),
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return &HubSubscription{s: s, err: ErrClosed}
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	for _, k := range keys {
		if ev, ok := h.latest[k]; ok {
			s.enqueue(ev)
		}
	}
	h.mu.Unlock()

	go s.run()
	return &HubSubscription{s: s}
}

// SubscriptionCount returns the number of live subscriptions.
func (h *Hub) SubscriptionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every subscription and rejects further dispatches.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*hubSubscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// HubSubscription is the Subscription returned by Hub.Subscribe.
// Registration is synchronous, so Ready only reports whether it succeeded.
type HubSubscription struct {
	s   *hubSubscription
	err error
}

// Ready implements Subscription.
func (hs *HubSubscription) Ready(ctx context.Context) error {
	if hs.err != nil {
		return hs.err
	}
	return ctx.Err()
}

// Unsubscribe implements Subscription.
func (hs *HubSubscription) Unsubscribe(_ context.Context) error {
	if hs.err != nil {
		return nil
	}
	hs.s.hub.remove(hs.s.id)
	hs.s.stop()
	return nil
}

// hubSubscription owns one delivery goroutine and an unbounded FIFO queue.
type hubSubscription struct {
	hub     *Hub
	id      uint64
	keys    map[event.Key]struct{}
	handler Handler

	mu    sync.Mutex
	queue []event.Event

	wake     chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// enqueue must be called with hub.mu held so queue order matches dispatch order.
func (s *hubSubscription) enqueue(ev event.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *hubSubscription) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *hubSubscription) next() (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return event.Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = event.Event{}
	s.queue = s.queue[1:]
	return ev, true
}

func (s *hubSubscription) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(ev)
		}
	}
}

// deliver invokes the handler with panic recovery.
func (s *hubSubscription) deliver(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			if logger := s.hub.getLogger(); logger != nil {
				logger.Error("event handler panic recovered",
					"key", ev.Key().String(),
					"panic", r,
				)
			}
		}
	}()
	s.handler(ev)
}
