package closer

import (
	"errors"
	"io"
	"testing"

	errs "github.com/amp-labs/restyle/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomCloser(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CustomCloser(nil))

	called := false
	c := CustomCloser(func() error {
		called = true

		return io.EOF
	})

	require.ErrorIs(t, c.Close(), io.EOF)
	assert.True(t, called)
}

func TestCloser_ReverseOrderAndJoin(t *testing.T) {
	t.Parallel()

	var order []int

	first := errors.New("first")
	third := errors.New("third")

	c := NewCloser(CustomCloser(func() error {
		order = append(order, 1)

		return first
	}))
	c.Add(nil)
	c.AddFunc(func() error {
		order = append(order, 2)

		return nil
	})
	c.AddFunc(func() error {
		order = append(order, 3)

		return third
	})

	err := c.Close()
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, third)
	assert.Equal(t, []int{3, 2, 1}, order)

	require.NoError(t, c.Close())
	assert.Len(t, order, 3)
}

func TestCloseOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	fail := true

	once := CloseOnce(CustomCloser(func() error {
		calls++
		if fail {
			return io.ErrClosedPipe
		}

		return nil
	}))

	assert.Same(t, once, CloseOnce(once))
	assert.Nil(t, CloseOnce(nil))

	require.ErrorIs(t, once.Close(), io.ErrClosedPipe)

	fail = false

	require.NoError(t, once.Close())
	require.NoError(t, once.Close())
	assert.Equal(t, 2, calls)
}

func TestHandlePanic(t *testing.T) {
	t.Parallel()

	c := HandlePanic(CustomCloser(func() error {
		panic("close exploded")
	}))

	var err error

	assert.NotPanics(t, func() { err = c.Close() })
	require.ErrorIs(t, err, errs.ErrPanicRecovery)
	assert.Contains(t, err.Error(), "close exploded")

	assert.Same(t, c, HandlePanic(c))
	require.NoError(t, HandlePanic(CustomCloser(func() error { return nil })).Close())
}
