// Package closer provides helpers around io.Closer:
//   - Closer collects closers and closes them together
//   - CloseOnce makes Close idempotent
//   - HandlePanic turns a panicking Close into an error
//   - CustomCloser adapts a cleanup function
package closer

import (
	"io"
	"sync"

	errs "github.com/amp-labs/restyle/errors"
)

type customCloser struct {
	closeFn func() error
}

// CustomCloser adapts closeFn to io.Closer. It returns nil for a nil func.
func CustomCloser(closeFn func() error) io.Closer {
	if closeFn == nil {
		return nil
	}

	return &customCloser{closeFn: closeFn}
}

func (c *customCloser) Close() error {
	return c.closeFn()
}

// Closer collects io.Closers and closes them all at once, in reverse order
// of registration, the way deferred calls unwind. Every closer runs even
// when earlier ones fail; the failures are joined.
//
//	c := closer.NewCloser()
//	c.Add(store)
//	c.Add(server)
//	defer c.Close()
type Closer struct {
	mut     sync.Mutex
	closers []io.Closer
}

// NewCloser creates a Closer seeded with closers.
func NewCloser(closers ...io.Closer) *Closer {
	return &Closer{closers: closers}
}

// Add registers closer. Nil closers are skipped at Close time.
func (c *Closer) Add(closer io.Closer) {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.closers = append(c.closers, closer)
}

// AddFunc registers a cleanup function.
func (c *Closer) AddFunc(fn func() error) {
	c.Add(CustomCloser(fn))
}

// Close closes every registered closer and forgets them, so a second Close
// is a no-op.
func (c *Closer) Close() error {
	c.mut.Lock()
	closers := c.closers
	c.closers = nil
	c.mut.Unlock()

	var collected errs.Collection

	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] != nil {
			collected.Add(closers[i].Close())
		}
	}

	return collected.GetError()
}

type closeOnceImpl struct {
	mut    sync.Mutex
	closed bool
	closer io.Closer
}

// CloseOnce wraps closer so only the first successful Close reaches it.
// A failed Close is not remembered and may be retried.
func CloseOnce(closer io.Closer) io.Closer {
	if closer == nil {
		return nil
	}

	if once, ok := closer.(*closeOnceImpl); ok {
		return once
	}

	return &closeOnceImpl{closer: closer}
}

func (c *closeOnceImpl) Close() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.closed {
		return nil
	}

	if err := c.closer.Close(); err != nil {
		return err
	}

	c.closed = true

	return nil
}

// HandlePanic wraps closer so a panic inside Close comes back as an error
// wrapping errors.ErrPanicRecovery.
func HandlePanic(closer io.Closer) io.Closer {
	if closer == nil {
		return nil
	}

	if _, ok := closer.(*panicHandlingImpl); ok {
		return closer
	}

	return &panicHandlingImpl{closer: closer}
}

type panicHandlingImpl struct {
	closer io.Closer
}

func (p *panicHandlingImpl) Close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.FromPanic(r)
		}
	}()

	return p.closer.Close()
}
