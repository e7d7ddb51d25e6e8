package should

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/amp-labs/restyle/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCloseFailed = errors.New("close failed")

type mockCloser struct {
	closeErr error
	closed   bool
}

func (m *mockCloser) Close() error {
	m.closed = true

	return m.closeErr
}

func capture(t *testing.T) (*bytes.Buffer, *slog.Logger) {
	t.Helper()

	var buf bytes.Buffer

	return &buf, slog.New(slog.NewTextHandler(&buf, nil))
}

func TestClose(t *testing.T) {
	t.Parallel()

	buf, log := capture(t)
	ctx := logger.WithLogger(t.Context(), log)

	ok := &mockCloser{}
	Close(ctx, ok, "closing ok")
	assert.True(t, ok.closed)
	assert.Empty(t, buf.String())

	failing := &mockCloser{closeErr: errCloseFailed}
	Close(ctx, failing, "closing failing")
	assert.True(t, failing.closed)
	assert.Contains(t, buf.String(), "closing failing")
	assert.Contains(t, buf.String(), "close failed")

	assert.NotPanics(t, func() {
		Close(ctx, nil, "nil closer")
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	buf, log := capture(t)
	ctx := logger.WithLogger(t.Context(), log)

	path := filepath.Join(t.TempDir(), "scratch.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))

	Remove(ctx, path, "removing scratch")

	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	Remove(ctx, path, "removing again")
	assert.Empty(t, buf.String())
}
