package pv

import (
	"fmt"
	"time"
)

// Mode identifies how a variable's cache is kept current.
type Mode int

const (
	// ModePush refreshes on every event the bus delivers for the key.
	ModePush Mode = iota
	// ModePoll refreshes by fetching the latest event on a fixed interval.
	ModePoll
)

func (m Mode) String() string {
	switch m {
	case ModePush:
		return "push"
	case ModePoll:
		return "poll"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Strategy is the refresh mode selected at construction. The zero value is push.
type Strategy struct {
	mode     Mode
	interval time.Duration
}

// Push returns the subscription-driven strategy.
func Push() Strategy { return Strategy{mode: ModePush} }

// Poll returns the fixed-interval strategy.
func Poll(interval time.Duration) Strategy {
	return Strategy{mode: ModePoll, interval: interval}
}

// StrategyFor maps a poll interval to a strategy: zero selects push, a
// positive interval selects poll.
func StrategyFor(pollInterval time.Duration) (Strategy, error) {
	switch {
	case pollInterval < 0:
		return Strategy{}, fmt.Errorf("%w: %v", ErrInvalidInterval, pollInterval)
	case pollInterval == 0:
		return Push(), nil
	default:
		return Poll(pollInterval), nil
	}
}

// Mode returns the refresh mode.
func (s Strategy) Mode() Mode { return s.mode }

// Interval returns the poll interval, or zero in push mode.
func (s Strategy) Interval() time.Duration { return s.interval }

func (s Strategy) validate() error {
	if s.mode == ModePoll && s.interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, s.interval)
	}
	if s.mode != ModePoll && s.mode != ModePush {
		return fmt.Errorf("pv: unknown mode %v", s.mode)
	}
	return nil
}

func (s Strategy) String() string {
	if s.mode == ModePoll {
		return fmt.Sprintf("poll(%v)", s.interval)
	}
	return s.mode.String()
}
