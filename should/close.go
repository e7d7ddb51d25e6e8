// Package should runs cleanup that ought to succeed but is not worth
// failing over. Failures are logged instead of returned, which suits defer
// statements.
package should

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/amp-labs/restyle/logger"
)

// Close closes closer and logs msg with the error if that fails.
//
//	defer should.Close(ctx, file, "error closing image file")
func Close(ctx context.Context, closer io.Closer, msg string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		logger.Get(ctx).Error(msg, "error", err)
	}
}

// Remove deletes path and logs msg with the error if that fails. A path
// that is already gone is not a failure.
func Remove(ctx context.Context, path string, msg string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Get(ctx).Error(msg, "path", path, "error", err)
	}
}
