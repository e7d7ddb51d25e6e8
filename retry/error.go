package retry

import "errors"

type permanentError struct {
	error
}

func (e *permanentError) Unwrap() error {
	return e.error
}

// Abort marks err as permanent so the loop returns it without retrying.
// Only errors marked this way stop the loop early; a Temporary method on
// the error (as on *net.OpError) is not consulted.
//
//	if err := validate(input); err != nil {
//	    return retry.Abort(err)
//	}
func Abort(err error) error {
	return &permanentError{err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with
// Abort.
func IsPermanent(err error) bool {
	_, ok := permanent(err)

	return ok
}

// permanent returns the error to surface when err should stop the loop.
// Abort wrappers are peeled so callers see their original error.
func permanent(err error) (error, bool) {
	var p *permanentError
	if !errors.As(err, &p) {
		return nil, false
	}

	return p.error, true
}
