package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPushPolicyDelays(t *testing.T) {
	p := Policy{Initial: time.Second, Multiplier: 2, Ceiling: 64 * time.Second}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		64 * time.Second,
	}
	if diff := cmp.Diff(expected, p.Delays()); diff != "" {
		t.Fatalf("unexpected delays (-want +got):\n%s", diff)
	}
}

func TestDoStopsAtCeiling(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 2, Ceiling: 4 * time.Millisecond}
	failure := errors.New("rejected")

	calls := 0
	var notified []int
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		require.Equal(t, calls, attempt)
		return failure
	}, func(attempt int, err error, next time.Duration) {
		notified = append(notified, attempt)
	})

	require.ErrorIs(t, err, failure)
	// 1ms, 2ms, 4ms sleeps between four attempts
	require.Equal(t, 4, calls)
	require.Equal(t, []int{1, 2, 3}, notified)
}

func TestDoPermanent(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 2, Ceiling: time.Second}
	fatal := errors.New("branch not found")

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return Permanent(fatal)
	}, nil)

	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoEventuallySucceeds(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Multiplier: 2, Ceiling: time.Second}

	err := p.Do(context.Background(), func(attempt int) error {
		if attempt < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, nil)
	require.NoError(t, err)
}
