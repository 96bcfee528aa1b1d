// Package system provides the wall clock and a context-aware sleeper.
package system

import (
	"context"
	"time"
)

// Clock reports the current UTC time.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Pauser waits between batch entries.
type Pauser struct{}

// Pause blocks for delay or until ctx is done, whichever comes first.
func (Pauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
