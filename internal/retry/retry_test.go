package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient failure")

func alwaysRetry(error) Action { return Retry }

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	attempts := 0
	value, err := Do(context.Background(), policy, alwaysRetry, func() (string, error) {
		attempts++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	attempts := 0
	value, err := Do(context.Background(), policy, alwaysRetry, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	classify := func(err error) Action {
		if errors.Is(err, context.Canceled) {
			return Stop
		}
		return Retry
	}
	policy := Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	attempts := 0
	_, err := Do(context.Background(), policy, classify, func() (struct{}, error) {
		attempts++
		return struct{}{}, context.Canceled
	})

	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	attempts := 0
	_, err := Do(context.Background(), policy, alwaysRetry, func() (struct{}, error) {
		attempts++
		return struct{}{}, errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
}

func TestDo_ReportsRetriesWithBackoff(t *testing.T) {
	var reported []time.Duration
	policy := Policy{
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			reported = append(reported, backoff)
		},
	}

	_, _ = Do(context.Background(), policy, alwaysRetry, func() (struct{}, error) {
		return struct{}{}, errTransient
	})

	// Backoff doubles but never exceeds MaxBackoff.
	require.Len(t, reported, 3)
	assert.Equal(t, time.Millisecond, reported[0])
	assert.Equal(t, 2*time.Millisecond, reported[1])
	assert.Equal(t, 2*time.Millisecond, reported[2])
}

func TestDo_BusyBackoff(t *testing.T) {
	classifyBusy := func(error) Action { return After }
	var reported []time.Duration
	policy := Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		BusyBackoff:    5 * time.Millisecond,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			reported = append(reported, backoff)
		},
	}

	_, _ = Do(context.Background(), policy, classifyBusy, func() (struct{}, error) {
		return struct{}{}, errTransient
	})

	require.Len(t, reported, 1)
	assert.Equal(t, 5*time.Millisecond, reported[0])
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{InitialBackoff: time.Hour}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, policy, alwaysRetry, func() (struct{}, error) {
			attempts++
			return struct{}{}, errTransient
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not honor context cancellation")
	}
}

func TestDoVoid(t *testing.T) {
	policy := Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}

	attempts := 0
	err := DoVoid(context.Background(), policy, alwaysRetry, func() error {
		attempts++
		if attempts == 1 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
