package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amp-labs/restyle/fetch"
	"github.com/amp-labs/restyle/retry"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryDelayBase = time.Second
)

// Option configures an Executor.
type Option func(*config)

type config struct {
	name      string
	defaults  []CallOption
	lifecycle context.Context //nolint:containedctx
}

// WithName labels the executor's metrics, spans and log lines.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithDefaults applies opts to every Execute before the per-call options.
func WithDefaults(opts ...CallOption) Option {
	return func(c *config) {
		c.defaults = append(c.defaults, opts...)
	}
}

// WithLifecycle closes the executor when ctx ends, the way an owning
// component tears down its resources.
func WithLifecycle(ctx context.Context) Option {
	return func(c *config) {
		c.lifecycle = ctx
	}
}

// CallOption configures one Execute.
type CallOption func(*callConfig)

type callConfig struct {
	maxRetries int
	delayBase  time.Duration
	delayMax   time.Duration
	jitter     retry.Jitter
	method     string
	header     http.Header
	body       any
}

func newCallConfig(defaults, opts []CallOption) *callConfig {
	cfg := &callConfig{
		maxRetries: DefaultMaxRetries,
		delayBase:  DefaultRetryDelayBase,
		jitter:     retry.WithoutJitter,
		header:     make(http.Header),
	}

	for _, opt := range defaults {
		opt(cfg)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.maxRetries < 0 {
		cfg.maxRetries = 0
	}

	if cfg.delayBase <= 0 {
		cfg.delayBase = DefaultRetryDelayBase
	}

	return cfg
}

// attempts is the total number of calls the sequence may make. The first
// call always happens, so 0 and 1 both mean a single attempt.
func (c *callConfig) attempts() int {
	return int(retry.FromRetries(c.maxRetries))
}

// request builds the request every attempt of a sequence sends. A reader
// body can only be consumed once, so it is read up front and replayed.
func (c *callConfig) request(target string) (fetch.Request, error) {
	body := c.body

	if r, ok := body.(io.Reader); ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return fetch.Request{}, fmt.Errorf("error reading request body: %w", err)
		}

		body = data
	}

	return fetch.Request{
		Method: c.method,
		Target: target,
		Header: c.header.Clone(),
		Body:   body,
	}, nil
}

// WithMaxRetries sets the attempt budget of the sequence. Negative values
// count as 0.
func WithMaxRetries(n int) CallOption {
	return func(c *callConfig) {
		c.maxRetries = n
	}
}

// WithRetryDelayBase sets the delay after the first failure; later delays
// double. Non-positive values keep the default of one second.
func WithRetryDelayBase(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.delayBase = d
	}
}

// WithRetryDelayMax caps the backoff delay. 0 leaves it uncapped.
func WithRetryDelayMax(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.delayMax = d
	}
}

// WithJitter randomizes backoff delays. Delays are exact by default.
func WithJitter(j retry.Jitter) CallOption {
	return func(c *callConfig) {
		c.jitter = j
	}
}

func WithMethod(method string) CallOption {
	return func(c *callConfig) {
		c.method = method
	}
}

// WithBody sets the request body; see fetch.Request for encoding rules.
func WithBody(body any) CallOption {
	return func(c *callConfig) {
		c.body = body
	}
}

func WithHeader(key, value string) CallOption {
	return func(c *callConfig) {
		c.header.Add(key, value)
	}
}
