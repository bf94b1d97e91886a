package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/asyncauth/clock"
)

func TestPolicy_Next(t *testing.T) {
	testCases := []struct {
		name     string
		policy   Policy
		interval time.Duration
		outcome  Outcome
		expected time.Duration
	}{
		{name: "slow down doubles", policy: Policy{Multiplier: 2}, interval: 10 * time.Second, outcome: SlowDown, expected: 20 * time.Second},
		{name: "pending keeps interval by default", policy: Policy{Multiplier: 2}, interval: 10 * time.Second, outcome: Pending, expected: 10 * time.Second},
		{name: "pending multiplier applies", policy: Policy{Multiplier: 2, PendingMultiplier: 2}, interval: 10 * time.Second, outcome: Pending, expected: 20 * time.Second},
		{name: "shrinking multiplier ignored", policy: Policy{Multiplier: 0.5}, interval: 10 * time.Second, outcome: SlowDown, expected: 10 * time.Second},
		{name: "capped by max interval", policy: Policy{Multiplier: 4, MaxInterval: 30 * time.Second}, interval: 10 * time.Second, outcome: SlowDown, expected: 30 * time.Second},
		{name: "cap never shrinks", policy: Policy{Multiplier: 2, MaxInterval: 5 * time.Second}, interval: 10 * time.Second, outcome: SlowDown, expected: 10 * time.Second},
	}
	for _, tc := range testCases {
		actual := tc.policy.Next(tc.interval, tc.outcome)
		assert.EqualValues(t, tc.expected, actual, tc.name)
	}
}

func TestUntil_ReturnsFirstTerminalResult(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	outcomes := []Outcome{SlowDown, Pending, Done}
	calls := 0
	result, err := Until(context.Background(), fake, Policy{
		Interval:          time.Second,
		Multiplier:        2,
		PendingMultiplier: 2,
		Deadline:          start.Add(time.Minute),
	}, func(ctx context.Context) (string, Outcome, error) {
		outcome := outcomes[calls]
		calls++
		return "token", outcome, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "token", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, fake.Waits())
}

func TestUntil_StopsAtDeadline(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	deadline := start.Add(300 * time.Second)
	calls := 0
	_, err := Until(context.Background(), fake, Policy{
		Interval:          10 * time.Second,
		Multiplier:        2,
		PendingMultiplier: 2,
		Deadline:          deadline,
	}, func(ctx context.Context) (int, Outcome, error) {
		calls++
		return 0, Pending, nil
	})
	assert.ErrorIs(t, err, ErrDeadline)
	// 10 + 20 + 40 + 80 = 150s; the 160s wait is clipped to the remaining 150s.
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second, 150 * time.Second}, fake.Waits())
	assert.Equal(t, deadline, fake.Now())
}

func TestUntil_AttemptAtDeadlineCanSucceed(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	readyAt := start.Add(200 * time.Second)
	result, err := Until(context.Background(), fake, Policy{
		Interval:          5 * time.Second,
		PendingMultiplier: 2,
		Deadline:          start.Add(300 * time.Second),
	}, func(ctx context.Context) (string, Outcome, error) {
		if fake.Now().Before(readyAt) {
			return "", Pending, nil
		}
		return "token", Done, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "token", result)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second, 145 * time.Second}, fake.Waits())
}

func TestUntil_DeadlinePassed(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	_, err := Until(context.Background(), fake, Policy{Interval: time.Second, Deadline: start}, func(ctx context.Context) (int, Outcome, error) {
		t.Fatalf("attempt must not run at or after the deadline")
		return 0, Done, nil
	})
	assert.ErrorIs(t, err, ErrDeadline)
	assert.Empty(t, fake.Waits())
}

func TestUntil_PropagatesAttemptError(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	boom := errors.New("access_denied")
	_, err := Until(context.Background(), fake, Policy{Interval: time.Second}, func(ctx context.Context) (int, Outcome, error) {
		return 0, Done, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestUntil_ContextCancelled(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	fake.Freeze()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Until(ctx, fake, Policy{Interval: time.Second}, func(ctx context.Context) (int, Outcome, error) {
		t.Fatalf("attempt must not run after cancellation")
		return 0, Done, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
