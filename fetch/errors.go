package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the request context ends before a
	// response is read. It wraps the context cause.
	ErrCancelled = errors.New("request cancelled")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response body")

	errRelativeTarget = errors.New("relative URL without a base URL")
)

// TransportError is a failure to get any response at all: DNS, dial,
// TLS, connection reset and the like.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response that is not an overload.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// OverloadedError is the remote side reporting it is temporarily out of
// capacity. Callers are expected to retry it.
type OverloadedError struct {
	StatusCode int
	Message    string
}

func (e *OverloadedError) Error() string {
	return fmt.Sprintf("remote overloaded (status %d): %s", e.StatusCode, e.Message)
}

// IsOverloaded reports whether err carries an *OverloadedError.
func IsOverloaded(err error) bool {
	var target *OverloadedError

	return errors.As(err, &target)
}

// StatusCode extracts the HTTP status from a *StatusError or
// *OverloadedError, or returns 0.
func StatusCode(err error) int {
	var overloaded *OverloadedError
	if errors.As(err, &overloaded) {
		return overloaded.StatusCode
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode
	}

	return 0
}
