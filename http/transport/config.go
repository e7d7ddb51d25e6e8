package transport

import (
	"net/http"

	"github.com/amp-labs/restyle/envutil"
)

// Option adjusts how a transport is built.
type Option func(*config)

type config struct {
	TransportOverrides       []http.RoundTripper
	DisableConnectionPooling bool
	EnableDNSCache           bool
	InsecureTLS              bool
}

func (c *config) index() int {
	idx := 0

	if c.DisableConnectionPooling {
		idx |= 1
	}

	if c.EnableDNSCache {
		idx |= 2
	}

	if c.InsecureTLS {
		idx |= 4
	}

	return idx
}

// DisableConnectionPooling turns off keep-alives.
func DisableConnectionPooling(c *config) {
	c.DisableConnectionPooling = true
}

// EnableDNSCache resolves hosts through a shared caching resolver.
func EnableDNSCache(c *config) {
	c.EnableDNSCache = true
}

// InsecureTLS skips certificate verification. Local development only.
func InsecureTLS(c *config) {
	c.InsecureTLS = true
}

// WithTransportOverride makes Get return transport instead of a shared one.
func WithTransportOverride(transport ...http.RoundTripper) Option {
	return func(c *config) {
		c.TransportOverrides = append(c.TransportOverrides, transport...)
	}
}

func readOptions(src envutil.Source, opts ...Option) *config {
	cfg := &config{}

	if !envutil.Bool(src, "HTTP_TRANSPORT_PREFER_POOLED", envutil.Default(true)).ValueOrElse(true) {
		cfg.DisableConnectionPooling = true
	}

	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}

	return cfg
}
