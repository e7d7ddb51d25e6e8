// Package fetch performs single HTTP calls and turns their outcome into
// the error taxonomy the executor retries on: cancellation, overload,
// transport failure and plain status failures.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/http/transport"
	"github.com/amp-labs/restyle/logger"
	"github.com/amp-labs/restyle/retry"
)

const (
	// AttemptHeader carries the 0-based attempt index of the call.
	AttemptHeader = "X-Retry-Attempt"

	defaultAcceptEncoding = "gzip, deflate, br, zstd"

	// Error bodies beyond this are truncated before classification.
	maxErrorBody = 64 * 1024
)

// OverloadDetector decides whether a failed response is a transient
// overload. It sees the status and at most the first 64KiB of the body.
type OverloadDetector func(status int, body []byte) bool

// Request describes one call. Body is sent as-is when it is []byte or an
// io.Reader, and JSON encoded otherwise.
type Request struct {
	Method string
	Target string
	Header http.Header
	Body   any
}

// Response is a successful (2xx) reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues Requests.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	detector       OverloadDetector
	acceptEncoding string
}

type Option func(*Client)

// WithBaseURL resolves relative targets against base.
func WithBaseURL(base *url.URL) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithHTTPClient replaces the http.Client used for calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport keeps the default client but swaps its RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Transport: rt}
	}
}

// WithOverloadDetector overrides generation.IsOverloaded as the test for
// transient overload responses.
func WithOverloadDetector(detector OverloadDetector) Option {
	return func(c *Client) {
		c.detector = detector
	}
}

// WithAcceptEncoding sets the Accept-Encoding header. An empty value
// leaves it to net/http.
func WithAcceptEncoding(encoding string) Option {
	return func(c *Client) {
		c.acceptEncoding = encoding
	}
}

// NewClient builds a Client. Without WithHTTPClient or WithTransport it
// uses the shared transport from ctx (see transport.Get) with response
// decompression and request logging.
func NewClient(ctx context.Context, opts ...Option) *Client {
	client := &Client{
		detector:       generation.IsOverloaded,
		acceptEncoding: defaultAcceptEncoding,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{
			Transport: transport.NewLoggingTransport(
				transport.NewDecompressor(transport.Get(ctx, transport.EnableDNSCache))),
		}
	}

	if client.detector == nil {
		client.detector = generation.IsOverloaded
	}

	return client
}

// Do sends req and reads the whole response. Non-2xx replies come back as
// *OverloadedError or *StatusError, failures without a reply as
// *TransportError, and anything after ctx ends as ErrCancelled.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	rsp, err := c.httpClient.Do(httpReq) //nolint:bodyclose
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		return nil, &TransportError{Err: err}
	}

	defer func() {
		_ = rsp.Body.Close()
	}()

	if rsp.StatusCode >= 200 && rsp.StatusCode < 300 {
		body, err := io.ReadAll(rsp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx)
			}

			return nil, &TransportError{Err: err}
		}

		return &Response{StatusCode: rsp.StatusCode, Header: rsp.Header, Body: body}, nil
	}

	body, err := io.ReadAll(io.LimitReader(rsp.Body, maxErrorBody))
	if err != nil && ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	return nil, c.classify(ctx, rsp.StatusCode, body)
}

func (c *Client) classify(ctx context.Context, status int, body []byte) error {
	message := errorMessage(body)

	if c.detector(status, body) {
		err := &OverloadedError{StatusCode: status, Message: message}

		logger.Get(ctx).Debug("remote reported overload", "status", status)

		return logger.AnnotateError(err, "status", status)
	}

	return logger.AnnotateError(&StatusError{StatusCode: status, Message: message, Body: body}, "status", status)
}

func errorMessage(body []byte) string {
	var msg generation.ErrorBody
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}

	return strings.TrimSpace(string(body))
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := c.resolve(req.Target)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	if c.acceptEncoding != "" && httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", c.acceptEncoding)
	}

	httpReq.Header.Set(AttemptHeader, strconv.FormatUint(uint64(retry.Attempt(ctx)), 10))

	return httpReq, nil
}

func (c *Client) resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}

	if c.baseURL != nil {
		u = c.baseURL.ResolveReference(u)
	}

	if !u.IsAbs() {
		return "", fmt.Errorf("invalid target %q: %w", target, errRelativeTarget)
	}

	return u.String(), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case io.Reader:
		return b, "application/octet-stream", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("error encoding request body: %w", err)
		}

		return bytes.NewReader(data), "application/json", nil
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}
