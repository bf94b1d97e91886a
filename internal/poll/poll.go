// Package poll repeats an attempt until it reaches a terminal outcome or a deadline.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/viant/asyncauth/clock"
)

// ErrDeadline is returned when the deadline passes before a terminal outcome.
var ErrDeadline = errors.New("poll deadline exceeded")

// Outcome classifies a single attempt.
type Outcome int

const (
	// Done means the attempt produced a terminal result.
	Done Outcome = iota
	// Pending means the attempt should be repeated.
	Pending
	// SlowDown means the attempt should be repeated after a longer interval.
	SlowDown
)

// Policy controls the wait between attempts. Multipliers below 1 are treated as 1,
// so the interval never shrinks within one poll.
type Policy struct {
	// Interval is the wait before the first attempt.
	Interval time.Duration
	// Multiplier scales the interval after a SlowDown outcome.
	Multiplier float64
	// PendingMultiplier scales the interval after a Pending outcome.
	PendingMultiplier float64
	// MaxInterval caps the interval when positive.
	MaxInterval time.Duration
	// Deadline stops polling; no attempt starts after it and no wait crosses it.
	Deadline time.Time
}

// Next returns the interval following outcome.
func (p Policy) Next(interval time.Duration, outcome Outcome) time.Duration {
	factor := 1.0
	switch outcome {
	case SlowDown:
		factor = p.Multiplier
	case Pending:
		factor = p.PendingMultiplier
	}
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(interval) * factor)
	if next < interval {
		next = interval
	}
	if p.MaxInterval > 0 && next > p.MaxInterval {
		next = p.MaxInterval
		if next < interval {
			next = interval
		}
	}
	return next
}

// wait returns the pause before the next attempt at now, clipped to the deadline.
// It reports false once the deadline has been reached.
func (p Policy) wait(now time.Time, interval time.Duration) (time.Duration, bool) {
	if p.Deadline.IsZero() {
		return interval, true
	}
	remaining := p.Deadline.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	if interval > remaining {
		return remaining, true
	}
	return interval, true
}

// Attempt performs one try and classifies it.
type Attempt[T any] func(ctx context.Context) (T, Outcome, error)

// Until waits the policy interval, runs attempt, and repeats while the outcome is
// Pending or SlowDown. An attempt error ends polling and is returned as is.
// A wait that would end after the deadline is shortened to end at it, so the last
// attempt runs at the deadline; once the deadline is reached Until returns ErrDeadline.
func Until[T any](ctx context.Context, clk clock.Clock, policy Policy, attempt Attempt[T]) (T, error) {
	var zero T
	if clk == nil {
		clk = clock.Real()
	}
	interval := policy.Interval
	for {
		wait, ok := policy.wait(clk.Now(), interval)
		if !ok {
			return zero, ErrDeadline
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-clk.After(wait):
		}
		result, outcome, err := attempt(ctx)
		if err != nil {
			return zero, err
		}
		if outcome == Done {
			return result, nil
		}
		interval = policy.Next(interval, outcome)
	}
}
