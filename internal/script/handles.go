package script

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
)

// ErrClosed is returned when creating resources on a closed Context.
var ErrClosed = errors.New("script: context closed")

// Subscription is a script-level event subscription.
type Subscription struct {
	owner  *Context
	inner  eventbus.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // rate-adapted delivery loop, nil otherwise

	once sync.Once
	err  error
}

// Unsubscribe cancels the subscription. Safe to call more than once.
//
// A rate-adapted subscription waits for its delivery loop to exit, so its
// own callback must not call Unsubscribe.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.inner.Unsubscribe(ctx)
		if s.done != nil {
			<-s.done
		}
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	})
	return s.err
}

// Periodic is a running periodic publisher.
type Periodic struct {
	owner  *Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel stops publishing and waits for an in-progress publish to finish.
// Safe to call more than once.
func (p *Periodic) Cancel() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
		p.owner.mu.Lock()
		delete(p.owner.publishers, p)
		p.owner.mu.Unlock()
	})
}
