// Package future provides a minimal Future/Promise pair for handing the
// result of a goroutine to whoever needs it later.
//
//	fut := future.Go(func() (int, error) {
//	    return compute()
//	})
//	value, err := fut.Await(ctx)
package future

import (
	"context"
	"sync"

	errs "github.com/amp-labs/restyle/errors"
	"github.com/amp-labs/restyle/logger"
)

// Future is the read side of an asynchronous result. It completes exactly
// once.
type Future[T any] struct {
	resultReady chan struct{}
	once        sync.Once

	mu        sync.Mutex
	value     T
	err       error
	callbacks []func(T, error)
}

// Promise is the write side of a Future. Only the first completion counts.
type Promise[T any] struct {
	future *Future[T]
}

// New creates a pending Future and the Promise that completes it.
func New[T any]() (*Future[T], *Promise[T]) {
	fut := &Future[T]{resultReady: make(chan struct{})}

	return fut, &Promise[T]{future: fut}
}

// Go runs f on a new goroutine and returns a Future for its result. A panic
// in f completes the Future with an error wrapping errors.ErrPanicRecovery.
func Go[T any](f func() (T, error)) *Future[T] {
	fut, promise := New[T]()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				promise.Failure(errs.FromPanic(r))
			}
		}()

		promise.Complete(f())
	}()

	return fut
}

// Success completes the Future with value.
func (p *Promise[T]) Success(value T) {
	p.future.complete(value, nil)
}

// Failure completes the Future with err.
func (p *Promise[T]) Failure(err error) {
	var zero T

	p.future.complete(zero, err)
}

// Complete completes the Future with value, or with err when it is non-nil.
func (p *Promise[T]) Complete(value T, err error) {
	if err != nil {
		p.Failure(err)

		return
	}

	p.Success(value)
}

func (f *Future[T]) complete(value T, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value, f.err = value, err
		callbacks := f.callbacks
		f.callbacks = nil
		close(f.resultReady)
		f.mu.Unlock()

		for _, cb := range callbacks {
			invoke(cb, value, err)
		}
	})
}

// Done is closed once the Future has a result.
func (f *Future[T]) Done() <-chan struct{} {
	return f.resultReady
}

// Await blocks until the result is ready or ctx ends. Giving up on the wait
// does not cancel the underlying work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.resultReady:
		return f.value, f.err
	case <-ctx.Done():
		var zero T

		return zero, context.Cause(ctx)
	}
}

// Get waits for the result without a deadline.
func (f *Future[T]) Get() (T, error) {
	<-f.resultReady

	return f.value, f.err
}

// OnResult registers cb to run on its own goroutine once the result is
// ready. If it already is, cb is scheduled immediately.
func (f *Future[T]) OnResult(cb func(T, error)) {
	f.mu.Lock()

	select {
	case <-f.resultReady:
		value, err := f.value, f.err
		f.mu.Unlock()

		invoke(cb, value, err)
	default:
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
	}
}

func invoke[T any](cb func(T, error), value T, err error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Get().Error("future callback panicked", "error", errs.FromPanic(r))
			}
		}()

		cb(value, err)
	}()
}
