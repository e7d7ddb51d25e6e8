package genapi

import (
	"io"
	"net/http"
	"time"

	"github.com/amp-labs/restyle/logger"
	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
)

const compressionLevel = 5

// requestLogger tags the request context with chi's request id and logs
// each response once it is written.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logger.WithRequestId(ctx, id)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Get(ctx).Info("HTTP request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

// compressor encodes responses with zstd, br, gzip or deflate, whichever
// the client accepts first in that order.
func compressor() func(http.Handler) http.Handler {
	c := middleware.NewCompressor(compressionLevel, "application/json", "text/plain")

	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})

	c.SetEncoder("zstd", func(w io.Writer, level int) io.Writer {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil
		}

		return enc
	})

	return c.Handler
}
