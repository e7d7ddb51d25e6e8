package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/amp-labs/restyle/logger"
	"github.com/google/uuid"
)

// CorrelationHeader carries the id that ties a request to its log lines.
const CorrelationHeader = "X-Correlation-Id"

// NewLoggingTransport logs every request and its outcome with a shared
// UUIDv7 correlation id, which is also sent in CorrelationHeader. Loggers
// come from the request context, so sequence and attempt attributes set by
// callers show up on each line. Query values are redacted.
func NewLoggingTransport(transport http.RoundTripper) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &loggingTransport{transport: transport}
}

type loggingTransport struct {
	transport http.RoundTripper
}

func (l *loggingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	uuid7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("error generating UUID: %w", err)
	}

	correlationID := uuid7.String()

	// RoundTrippers must not modify the caller's request.
	request = request.Clone(request.Context())
	request.Header.Set(CorrelationHeader, correlationID)

	log := logger.Get(request.Context()).With(
		"correlation-id", correlationID,
		"method", request.Method,
		"url", redactURL(request.URL),
	)

	log.Debug("HTTP request")

	start := time.Now()

	response, err := l.transport.RoundTrip(request)
	if err != nil {
		// Cancellation is expected when a caller aborts, so it is not an error.
		level := slog.LevelWarn
		if request.Context().Err() != nil {
			level = slog.LevelDebug
		}

		log.Log(request.Context(), level, "HTTP request failed",
			"duration", time.Since(start), "error", err)

		return response, err
	}

	level := slog.LevelDebug
	if response.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelInfo
	}

	log.Log(request.Context(), level, "HTTP response",
		"status", response.StatusCode, "duration", time.Since(start))

	return response, nil
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	clone := *u
	clone.User = nil

	if clone.RawQuery != "" {
		query := clone.Query()
		for key := range query {
			query.Set(key, "REDACTED")
		}

		clone.RawQuery = query.Encode()
	}

	return clone.String()
}
