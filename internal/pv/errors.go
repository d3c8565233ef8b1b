package pv

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-sequencer/internal/event"
)

// Domain errors for process variables.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoSuchValue is returned when a key has never been published, or a
	// caller demands a value the cached event does not carry.
	ErrNoSuchValue = errors.New("pv: no such value")

	// ErrInvalidInterval is returned for a negative poll interval.
	ErrInvalidInterval = errors.New("pv: invalid poll interval")

	// ErrMonitorUnsupported is returned by Monitor on a poll-mode variable.
	ErrMonitorUnsupported = errors.New("pv: monitor requires push mode")

	// ErrCancelled is returned by Fetch and Monitor after Cancel.
	ErrCancelled = errors.New("pv: variable cancelled")

	// ErrSchedulerClosed is returned when creating a variable on a closed scheduler.
	ErrSchedulerClosed = errors.New("pv: scheduler closed")
)

// RefreshError describes a failure inside the refresh machinery that is
// reported rather than returned: a failed poll or a failing dependent.
type RefreshError struct {
	Key event.Key
	Op  string // "poll" or "dependent"
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("pv %s: %s: %v", e.Key, e.Op, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
