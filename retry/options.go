package retry

import (
	"context"
	"time"
)

// Option configures a Runner or ValueRunner.
type Option func(*options)

type options struct {
	attempts  Attempts
	backoff   Backoff
	jitter    Jitter
	onAttempt func(ctx context.Context, attempt uint)
	onRetry   func(ctx context.Context, event RetryEvent)
}

// RetryEvent describes a failed attempt that will be retried.
type RetryEvent struct {
	// Attempt is the 1-indexed number of the attempt that just failed.
	Attempt uint
	// Err is the error the attempt returned.
	Err error
	// Delay is how long the loop waits before the next attempt.
	Delay time.Duration
}

// WithBackoff sets the strategy used to compute delays between attempts.
//
//	runner := retry.NewRunner(retry.WithBackoff(retry.ExpBackoff{
//	    Base:   time.Second,
//	    Factor: 2.0,
//	}))
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithAttempts sets the total number of attempts. 0 means unlimited.
func WithAttempts(a Attempts) Option {
	return func(o *options) {
		o.attempts = a
	}
}

// WithJitter sets the jitter strategy applied to each delay.
func WithJitter(j Jitter) Option {
	return func(o *options) {
		o.jitter = j
	}
}

// WithOnAttempt registers a hook that runs right before each attempt with its
// 0-indexed attempt number. The hook runs on the caller's goroutine.
func WithOnAttempt(f func(ctx context.Context, attempt uint)) Option {
	return func(o *options) {
		o.onAttempt = f
	}
}

// WithOnRetry registers a hook that runs after a retryable failure, before
// the backoff wait starts. It is not called for the final attempt.
func WithOnRetry(f func(ctx context.Context, event RetryEvent)) Option {
	return func(o *options) {
		o.onRetry = f
	}
}
