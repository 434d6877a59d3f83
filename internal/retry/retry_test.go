package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_BoundedAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDowngrade_FallsBackToCoarserOption(t *testing.T) {
	tried := map[string]int{}
	v, opt, err := Downgrade(context.Background(), []string{"1h", "1d", "1w"}, fastPolicy(2),
		func(_ context.Context, interval string) (int64, error) {
			tried[interval]++
			if interval == "1d" {
				return 42, nil
			}
			return 0, errors.New("no data")
		})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.Equal(t, "1d", opt)
	assert.Equal(t, 2, tried["1h"])
	assert.Equal(t, 1, tried["1d"])
	assert.Zero(t, tried["1w"])
}

func TestDowngrade_Exhausted(t *testing.T) {
	_, _, err := Downgrade(context.Background(), []string{"1h", "1d"}, fastPolicy(1),
		func(context.Context, string) (int, error) { return 0, errors.New("no data") })
	assert.ErrorIs(t, err, ErrExhausted)
}
