// Package errors holds error helpers shared across the module. It is meant to
// be imported next to the standard library package, usually aliased.
package errors

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPanicRecovery wraps values recovered from a panic.
	ErrPanicRecovery = errors.New("recovered from panic")

	ErrNotImplemented = errors.New("not implemented")
)

// FromPanic turns a recovered value into an error wrapping ErrPanicRecovery.
// When the value is itself an error it stays reachable via errors.Is/As.
func FromPanic(recovered any) error {
	if recovered == nil {
		return nil
	}

	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanicRecovery, err)
	}

	return fmt.Errorf("%w: %v", ErrPanicRecovery, recovered)
}

// Collection accumulates errors from several operations and reports them as
// one. It is safe for concurrent use.
type Collection struct {
	mut    sync.Mutex
	errors []error
}

// Add appends err. Nil errors are ignored.
func (c *Collection) Add(err error) {
	if err == nil {
		return
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	c.errors = append(c.errors, err)
}

// HasError reports whether at least one error was added.
func (c *Collection) HasError() bool {
	c.mut.Lock()
	defer c.mut.Unlock()

	return len(c.errors) > 0
}

// GetError returns nil, the single error, or an errors.Join of all of them.
func (c *Collection) GetError() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}
