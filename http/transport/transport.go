// Package transport builds the http.RoundTrippers restyle clients use:
// pooled transports tuned from the environment, an optional DNS cache,
// transparent response decompression and request logging.
//
//	rt := transport.Get(ctx, transport.EnableDNSCache)
//	client := &http.Client{Transport: transport.NewLoggingTransport(transport.NewDecompressor(rt))}
//
// Environment variables (all optional):
//
//   - HTTP_TRANSPORT_PREFER_POOLED (default true)
//   - HTTP_TRANSPORT_MAX_IDLE_CONNS (default 100)
//   - HTTP_TRANSPORT_IDLE_CONN_TIMEOUT (default 90s)
//   - HTTP_TRANSPORT_TLS_HANDSHAKE_TIMEOUT (default 10s)
//   - HTTP_TRANSPORT_EXPECT_CONTINUE_TIMEOUT (default 1s)
//   - HTTP_TRANSPORT_FORCE_ATTEMPT_HTTP2 (default false)
//   - HTTP_TRANSPORT_DIAL_TIMEOUT (default 30s)
//   - HTTP_TRANSPORT_DIAL_KEEPALIVE (default 30s)
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/amp-labs/restyle/envutil"
	"github.com/amp-labs/restyle/lazy"
)

const (
	defaultIdleConnTimeout       = 90 * time.Second
	defaultMaxIdleConns          = 100
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultForceAttemptHTTP2     = false
	defaultDialTimeout           = 30 * time.Second
	defaultKeepAlive             = 30 * time.Second
)

// New returns a fresh http.Transport configured from src (the process
// environment when src is nil). Prefer Get, which shares instances so
// connection pools are reused.
func New(src envutil.Source, options ...Option) *http.Transport {
	return create(src, readOptions(src, options...))
}

func create(src envutil.Source, cfg *config) *http.Transport {
	maxIdleConns := envutil.Int(src, "HTTP_TRANSPORT_MAX_IDLE_CONNS",
		envutil.Default(defaultMaxIdleConns)).
		ValueOrElse(defaultMaxIdleConns)

	idleConnTimeout := envutil.Duration(src, "HTTP_TRANSPORT_IDLE_CONN_TIMEOUT",
		envutil.Default(defaultIdleConnTimeout)).
		ValueOrElse(defaultIdleConnTimeout)

	tlsHandshakeTimeout := envutil.Duration(src, "HTTP_TRANSPORT_TLS_HANDSHAKE_TIMEOUT",
		envutil.Default(defaultTLSHandshakeTimeout)).
		ValueOrElse(defaultTLSHandshakeTimeout)

	expectContinueTimeout := envutil.Duration(src, "HTTP_TRANSPORT_EXPECT_CONTINUE_TIMEOUT",
		envutil.Default(defaultExpectContinueTimeout)).
		ValueOrElse(defaultExpectContinueTimeout)

	forceAttemptHTTP2 := envutil.Bool(src, "HTTP_TRANSPORT_FORCE_ATTEMPT_HTTP2",
		envutil.Default(defaultForceAttemptHTTP2)).
		ValueOrElse(defaultForceAttemptHTTP2)

	dialTimeout := envutil.Duration(src, "HTTP_TRANSPORT_DIAL_TIMEOUT",
		envutil.Default(defaultDialTimeout)).
		ValueOrElse(defaultDialTimeout)

	keepAlive := envutil.Duration(src, "HTTP_TRANSPORT_DIAL_KEEPALIVE",
		envutil.Default(defaultKeepAlive)).
		ValueOrElse(defaultKeepAlive)

	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     forceAttemptHTTP2,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
	}

	if cfg.DisableConnectionPooling {
		transport.DisableKeepAlives = true
	}

	if cfg.EnableDNSCache {
		useDNSCacheDialer(transport, dialer)
	}

	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec
		}
	}

	return transport
}

// shared holds one lazily built transport per option combination, indexed
// by config.index.
var shared [8]*lazy.Of[*http.Transport] //nolint:gochecknoglobals

func init() { //nolint:gochecknoinits
	for i := range shared {
		cfg := &config{
			DisableConnectionPooling: i&1 != 0,
			EnableDNSCache:           i&2 != 0,
			InsecureTLS:              i&4 != 0,
		}

		shared[i] = lazy.New(func() *http.Transport {
			return create(nil, cfg)
		})
	}
}

// Get returns the transport stored in ctx by WithTransport, or a shared
// instance matching opts.
func Get(ctx context.Context, opts ...Option) http.RoundTripper {
	if tr := FromContext(ctx); tr != nil {
		return tr
	}

	cfg := readOptions(nil, opts...)

	for _, tr := range cfg.TransportOverrides {
		if tr != nil {
			return tr
		}
	}

	return shared[cfg.index()].Get()
}
