package transport

import (
	"context"
	"net/http"
)

type contextKey string

const contextKeyTransport contextKey = "http-transport"

// WithTransport stores transport in ctx; Get returns it in preference to the
// shared instances. Tests use it to stub the network.
func WithTransport(ctx context.Context, transport http.RoundTripper) context.Context {
	return context.WithValue(ctx, contextKeyTransport, transport)
}

// FromContext returns the transport stored by WithTransport, or nil.
func FromContext(ctx context.Context) http.RoundTripper {
	if ctx == nil {
		return nil
	}

	transport, _ := ctx.Value(contextKeyTransport).(http.RoundTripper)

	return transport
}
