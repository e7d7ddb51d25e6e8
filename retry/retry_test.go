package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastBackoff() Option {
	return WithBackoff(ConstantBackoff(time.Millisecond))
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return errFlaky
		}

		return nil
	}, WithAttempts(5), fastBackoff())

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return errFlaky
	}, WithAttempts(3), fastBackoff())

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, callCount)
}

func TestDo_NoWaitAfterFinalAttempt(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Do(t.Context(), func(ctx context.Context) error {
		return errFlaky
	}, WithAttempts(1), WithBackoff(ConstantBackoff(time.Hour)))

	require.ErrorIs(t, err, errFlaky)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	err := Do(ctx, func(ctx context.Context) error {
		called = true

		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDo_CancellationWinsOverLateSuccess(t *testing.T) {
	t.Parallel()

	cause := errors.New("user aborted")
	ctx, cancel := context.WithCancelCause(t.Context())

	err := Do(ctx, func(ctx context.Context) error {
		cancel(cause)

		return nil
	})

	require.ErrorIs(t, err, cause)
}

func TestDo_CancelDuringBackoffStopsLoop(t *testing.T) {
	t.Parallel()

	cause := errors.New("stop")
	ctx, cancel := context.WithCancelCause(t.Context())

	callCount := 0
	done := make(chan error, 1)

	go func() {
		done <- Do(ctx, func(ctx context.Context) error {
			callCount++

			return errFlaky
		}, WithAttempts(5), WithBackoff(ConstantBackoff(time.Hour)),
			WithOnRetry(func(context.Context, RetryEvent) { cancel(cause) }))
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, cause)
		assert.Equal(t, 1, callCount)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestDo_HooksSeeEveryAttempt(t *testing.T) {
	t.Parallel()

	var (
		attempts []uint
		events   []RetryEvent
	)

	err := Do(t.Context(), func(ctx context.Context) error {
		return errFlaky
	},
		WithAttempts(4),
		WithJitter(WithoutJitter),
		WithBackoff(ExpBackoff{Base: time.Millisecond, Factor: 2}),
		WithOnAttempt(func(ctx context.Context, attempt uint) {
			assert.Equal(t, attempt, Attempt(ctx))
			attempts = append(attempts, attempt)
		}),
		WithOnRetry(func(_ context.Context, ev RetryEvent) {
			events = append(events, ev)
		}),
	)

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, []uint{0, 1, 2, 3}, attempts)
	require.Len(t, events, 3)

	for i, ev := range events {
		assert.Equal(t, uint(i+1), ev.Attempt)
		assert.Equal(t, time.Millisecond<<i, ev.Delay)
		assert.ErrorIs(t, ev.Err, errFlaky)
	}
}

func TestDoValue(t *testing.T) {
	t.Parallel()

	callCount := 0
	out, err := DoValue(t.Context(), func(ctx context.Context) (string, error) {
		callCount++
		if callCount == 1 {
			return "partial", errFlaky
		}

		return "ok", nil
	}, fastBackoff())

	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	out, err = DoValue(t.Context(), func(ctx context.Context) (string, error) {
		return "partial", errFlaky
	}, WithAttempts(2), fastBackoff())

	require.ErrorIs(t, err, errFlaky)
	assert.Empty(t, out)
}

func TestDo_UnlimitedAttempts(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 10 {
			return errFlaky
		}

		return nil
	}, WithAttempts(0), WithBackoff(ConstantBackoff(0)))

	require.NoError(t, err)
	assert.Equal(t, 10, callCount)
}
