// Package lazy provides values that are built on first use.
package lazy

import (
	"sync"
	"sync/atomic"
)

// Of is a value initialized at most once, on the first Get.
type Of[T any] struct {
	mut         sync.Mutex
	create      func() T
	value       T
	initialized atomic.Bool
}

// New creates a lazy value; f runs on the first Get.
func New[T any](f func() T) *Of[T] {
	return &Of[T]{create: f}
}

// Get returns the value, building it if needed. If the constructor panics
// the value stays uninitialized and the next Get tries again.
func (t *Of[T]) Get() T { //nolint:ireturn
	if t.initialized.Load() {
		return t.value
	}

	t.mut.Lock()
	defer t.mut.Unlock()

	if !t.initialized.Load() {
		if t.create != nil {
			t.value = t.create()
		}

		t.create = nil
		t.initialized.Store(true)
	}

	return t.value
}

// Set replaces the value, skipping the constructor. Mostly for tests.
func (t *Of[T]) Set(value T) {
	t.mut.Lock()
	defer t.mut.Unlock()

	t.create = nil
	t.value = value
	t.initialized.Store(true)
}

// Initialized reports whether the value has been built or set.
func (t *Of[T]) Initialized() bool {
	return t.initialized.Load()
}
