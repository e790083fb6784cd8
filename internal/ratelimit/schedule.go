package ratelimit

import (
	"context"
	"time"
)

// Clock abstracts time for the dispatch schedule so tests can drive it.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock. time.Now carries a monotonic reading, so
// elapsed-time arithmetic is not affected by clock adjustments.
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Schedule spaces dispatches within one round: the submission at position i
// may not leave before t0 + spacing*i, where t0 is the round start.
// A zero spacing dispatches everything immediately.
type Schedule struct {
	clock   Clock
	spacing time.Duration
	t0      time.Time
}

// NewSchedule starts a schedule at the current clock reading.
// Negative spacing is treated as zero.
func NewSchedule(clock Clock, spacing time.Duration) *Schedule {
	if clock == nil {
		clock = SystemClock{}
	}
	if spacing < 0 {
		spacing = 0
	}
	return &Schedule{
		clock:   clock,
		spacing: spacing,
		t0:      clock.Now(),
	}
}

// Reset moves t0 to the current clock reading. Called at the start of
// every round.
func (s *Schedule) Reset() {
	s.t0 = s.clock.Now()
}

// Spacing returns the configured interval between dispatches
func (s *Schedule) Spacing() time.Duration {
	return s.spacing
}

// Start returns the reference time of the current round
func (s *Schedule) Start() time.Time {
	return s.t0
}

// Delay returns how long position i still has to wait:
// max(0, spacing*i - (now - t0)).
func (s *Schedule) Delay(i int) time.Duration {
	if s.spacing == 0 || i <= 0 {
		return 0
	}
	wait := s.spacing*time.Duration(i) - s.clock.Now().Sub(s.t0)
	if wait < 0 {
		return 0
	}
	return wait
}

// Wait blocks until position i may be dispatched.
// It returns an error if the context is canceled first.
func (s *Schedule) Wait(ctx context.Context, i int) error {
	return s.clock.Sleep(ctx, s.Delay(i))
}

// Drain waits for the slot that follows the last dispatch of a round of
// n items, so that the next round does not start inside the current
// round's rate budget.
func (s *Schedule) Drain(ctx context.Context, n int) error {
	return s.Wait(ctx, n)
}
