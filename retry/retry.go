// Package retry runs operations that may fail transiently. It supports
// exponential backoff, jitter, attempt tracking and hooks that observe each
// attempt and each scheduled retry.
//
// Basic usage:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return makeAPICall()
//	})
//
// With custom options:
//
//	err := retry.Do(ctx, operation,
//	    retry.WithAttempts(4),
//	    retry.WithBackoff(retry.ExpBackoff{Base: time.Second, Factor: 2}),
//	    retry.WithJitter(retry.WithoutJitter),
//	)
//
// The loop never outlives its context: when the context is cancelled while an
// attempt is in flight, the cancellation cause is returned even if the attempt
// itself succeeded, and a pending backoff timer is stopped rather than left
// to fire.
package retry

import (
	"context"
	"time"
)

const (
	defaultAttempts      = 4
	defaultBaseDelay     = 100 * time.Millisecond
	defaultMaxDelay      = 2 * time.Second
	defaultBackoffFactor = 2.0
)

// Runner executes operations with retry logic.
type Runner interface {
	Do(ctx context.Context, f func(ctx context.Context) error) error
}

// ValueRunner executes operations that produce a value with retry logic.
type ValueRunner[T any] interface {
	Do(ctx context.Context, f func(ctx context.Context) (T, error)) (T, error)
}

// NewRunner creates a Runner. Without options it makes 4 attempts with
// exponential backoff (100ms base, 2s max, factor 2) and full jitter.
func NewRunner(opts ...Option) Runner {
	return &runnerImpl{opts: newOptions(opts)}
}

// NewValueRunner creates a ValueRunner with the same defaults as NewRunner.
func NewValueRunner[T any](opts ...Option) ValueRunner[T] {
	return &valueRunnerImpl[T]{opts: newOptions(opts)}
}

func newOptions(opts []Option) *options {
	o := &options{
		attempts: Attempts(defaultAttempts),
		backoff: ExpBackoff{
			Base:   defaultBaseDelay,
			Max:    defaultMaxDelay,
			Factor: defaultBackoffFactor,
		},
		jitter: FullJitter,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

type runnerImpl struct {
	opts *options
}

func (r *runnerImpl) Do(ctx context.Context, f func(ctx context.Context) error) error {
	return do(ctx, r.opts, f)
}

type valueRunnerImpl[T any] struct {
	opts *options
}

// Do returns the first successful result. On failure the zero value of T is
// returned along with the error.
func (v *valueRunnerImpl[T]) Do(ctx context.Context, f func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := do(ctx, v.opts, func(ctx context.Context) error {
		var err error

		out, err = f(ctx)

		return err
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return out, nil
}

// do is the retry loop. It returns:
//   - nil if an attempt succeeds while the context is still live
//   - context.Cause(ctx) if the context ends before, during or between attempts
//   - the unwrapped error of an Abort'ed (permanent) failure
//   - the last error once every attempt has failed
func do(ctx context.Context, opts *options, operation func(ctx context.Context) error) error {
	var err error

	for idx := uint(0); opts.attempts == 0 || Attempts(idx) < opts.attempts; idx++ {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		attemptCtx := withAttempt(ctx, idx)

		if opts.onAttempt != nil {
			opts.onAttempt(attemptCtx, idx)
		}

		err = operation(attemptCtx)

		// A result that arrives after cancellation is discarded.
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if err == nil {
			return nil
		}

		if perm, ok := permanent(err); ok {
			return perm
		}

		if opts.attempts != 0 && Attempts(idx+1) >= opts.attempts {
			break
		}

		delay := opts.jitter.apply(opts.backoff.Delay(idx))

		if opts.onRetry != nil {
			opts.onRetry(attemptCtx, RetryEvent{
				Attempt: idx + 1,
				Err:     err,
				Delay:   delay,
			})
		}

		if waitErr := wait(ctx, delay); waitErr != nil {
			return waitErr
		}
	}

	return err
}

// wait blocks for d or until ctx ends. The timer is always stopped so a
// cancelled wait never fires later.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Do creates a Runner from opts and runs f with it.
func Do(ctx context.Context, f func(ctx context.Context) error, opts ...Option) error {
	return NewRunner(opts...).Do(ctx, f)
}

// DoValue creates a ValueRunner from opts and runs f with it.
//
//	result, err := retry.DoValue(ctx, func(ctx context.Context) (string, error) {
//	    return fetchData()
//	}, retry.WithAttempts(5))
func DoValue[T any](ctx context.Context, f func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	return NewValueRunner[T](opts...).Do(ctx, f)
}
