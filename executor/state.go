package executor

import (
	"errors"
	"fmt"

	"github.com/amp-labs/restyle/optional"
)

// Status is the lifecycle position of an Executor.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusRetrying
	StatusSucceeded
	StatusAborted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusRetrying:
		return "retrying"
	case StatusSucceeded:
		return "succeeded"
	case StatusAborted:
		return "aborted"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions happen without a new
// Execute.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusAborted || s == StatusFailed
}

// IsBusy reports whether a sequence is in flight.
func (s Status) IsBusy() bool {
	return s == StatusLoading || s == StatusRetrying
}

// State is a snapshot of an Executor. Data is present only when Status is
// StatusSucceeded, and Error only when it is StatusRetrying or StatusFailed.
type State[T any] struct {
	Data       optional.Value[T]
	Status     Status
	Error      *ErrorInfo
	RetryCount int
	// Sequence identifies the Execute call that produced this snapshot. It
	// is 0 until the first Execute and grows with every call.
	Sequence uint64
}

// ErrorKind classifies why an attempt or a sequence failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindCancelled is an abort, a superseding Execute, Close, or the
	// caller's context ending. Never retried.
	KindCancelled
	// KindTransientServer is the remote reporting overload.
	KindTransientServer
	// KindTransientTransport is any other failed attempt.
	KindTransientTransport
	// KindExhaustedRetries ends a sequence whose every attempt failed.
	KindExhaustedRetries
	// KindPermanent ends a sequence early because the caller marked the
	// error with retry.Abort.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindCancelled:
		return "cancelled"
	case KindTransientServer:
		return "transient_server"
	case KindTransientTransport:
		return "transient_transport"
	case KindExhaustedRetries:
		return "exhausted_retries"
	case KindPermanent:
		return "permanent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrorInfo is the error attached to Retrying and Failed snapshots.
type ErrorInfo struct {
	Kind ErrorKind
	// Attempts is how many attempts had been made when the error was
	// recorded.
	Attempts int
	// Err is the underlying error. For exhausted sequences it is the error
	// of the final attempt.
	Err error
	// Last is the classification of Err.
	Last ErrorKind
}

func (e *ErrorInfo) Error() string {
	switch e.Kind {
	case KindExhaustedRetries:
		return fmt.Sprintf("%s after %d attempts: %v", ErrExhaustedRetries, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("attempt %d failed (%s): %v", e.Attempts, e.Kind, e.Err)
	}
}

func (e *ErrorInfo) Unwrap() error {
	return e.Err
}

func (e *ErrorInfo) Is(target error) bool {
	return target == ErrExhaustedRetries && e.Kind == KindExhaustedRetries
}

// Outcome is how a sequence ended.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota + 1
	OutcomeAborted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what Execute returns. Data is set for OutcomeSucceeded. Err is
// the *ErrorInfo for OutcomeFailed and the cancellation cause for
// OutcomeAborted; the latter is informational, aborts are not failures.
type Result[T any] struct {
	Outcome Outcome
	Data    T
	Err     error
}

func (r Result[T]) Succeeded() bool { return r.Outcome == OutcomeSucceeded }
func (r Result[T]) Aborted() bool   { return r.Outcome == OutcomeAborted }
func (r Result[T]) Failed() bool    { return r.Outcome == OutcomeFailed }

// ErrorInfo returns the failure details of a failed Result.
func (r Result[T]) ErrorInfo() (*ErrorInfo, bool) {
	var info *ErrorInfo
	if r.Outcome != OutcomeFailed || !errors.As(r.Err, &info) {
		return nil, false
	}

	return info, true
}
