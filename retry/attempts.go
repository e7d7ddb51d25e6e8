package retry

import "context"

// Attempts is the total number of attempts for an operation. 0 means
// unlimited.
type Attempts uint

// FromRetries converts a retry allowance into a total attempt count. The
// initial call always happens, so zero or negative retries still yield one
// attempt.
func FromRetries(retries int) Attempts {
	if retries < 1 {
		return 1
	}

	return Attempts(retries)
}

type ctxKey string

const attemptKey ctxKey = "attempt"

func withAttempt(ctx context.Context, attempt uint) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// Attempt returns the 0-indexed attempt number stored in ctx by the retry
// loop, or 0 outside of one.
func Attempt(ctx context.Context) uint {
	attemptNum, ok := ctx.Value(attemptKey).(uint)
	if !ok {
		return 0
	}

	return attemptNum
}
