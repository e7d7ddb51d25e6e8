package executor

import (
	"context"
	"errors"

	"github.com/amp-labs/restyle/fetch"
	"github.com/amp-labs/restyle/retry"
)

var (
	// ErrAborted is the cancellation cause set by Abort.
	ErrAborted = errors.New("request aborted")

	// ErrSuperseded is the cancellation cause of a sequence replaced by a
	// newer Execute.
	ErrSuperseded = errors.New("request superseded by a newer one")

	// ErrClosed is returned for sequences cut short by, or started after,
	// Close.
	ErrClosed = errors.New("executor closed")

	// ErrExhaustedRetries matches, via errors.Is, the *ErrorInfo of a
	// sequence whose every attempt failed.
	ErrExhaustedRetries = errors.New("exhausted retries")
)

// Classify maps an attempt error to its ErrorKind. Nil is KindUnknown.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAborted),
		errors.Is(err, ErrSuperseded),
		errors.Is(err, ErrClosed),
		errors.Is(err, fetch.ErrCancelled),
		errors.Is(err, context.Canceled):
		return KindCancelled
	case retry.IsPermanent(err):
		return KindPermanent
	case fetch.IsOverloaded(err):
		return KindTransientServer
	default:
		return KindTransientTransport
	}
}
