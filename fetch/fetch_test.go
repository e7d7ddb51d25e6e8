package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/http/transport"
	"github.com/amp-labs/restyle/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Method    string `json:"method"`
	Attempt   string `json:"attempt"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Encodings string `json:"encodings"`
}

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	return srv, NewClient(t.Context(), WithBaseURL(base), WithHTTPClient(srv.Client()))
}

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(echo{
		Method:    r.Method,
		Attempt:   r.Header.Get(AttemptHeader),
		Body:      string(body),
		Type:      r.Header.Get("Content-Type"),
		Encodings: r.Header.Get("Accept-Encoding"),
	})
}

func TestJSONCallerSuccess(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, echoHandler)
	caller := NewJSONCaller[echo](client)

	out, err := caller.Call(t.Context(), Request{
		Target: "/api/generate",
		Body:   map[string]string{"style": "Vintage"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, out.Method)
	assert.Equal(t, "0", out.Attempt)
	assert.JSONEq(t, `{"style":"Vintage"}`, out.Body)
	assert.Equal(t, "application/json", out.Type)
	assert.Equal(t, defaultAcceptEncoding, out.Encodings)
}

func TestAttemptHeaderFollowsRetryLoop(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, echoHandler)
	caller := NewJSONCaller[echo](client)

	var seen []string

	_ = retry.Do(t.Context(), func(ctx context.Context) error {
		out, err := caller.Call(ctx, Request{Target: "/"})
		if err != nil {
			return err
		}

		seen = append(seen, out.Attempt)

		return errors.New("again")
	}, retry.WithAttempts(3), retry.WithBackoff(retry.ConstantBackoff(0)), retry.WithJitter(retry.WithoutJitter))

	assert.Equal(t, []string{"0", "1", "2"}, seen)
}

func TestDefaultMethodIsGet(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, echoHandler)

	out, err := NewJSONCaller[echo](client).Call(t.Context(), Request{Target: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, out.Method)
	assert.Empty(t, out.Body)
}

func TestOverloadedResponse(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(generation.StatusOverloaded)
		_, _ = w.Write([]byte(`{"message":"Model overloaded"}`))
	})

	_, err := client.Do(t.Context(), Request{Target: "/"})
	require.Error(t, err)

	var overloaded *OverloadedError
	require.ErrorAs(t, err, &overloaded)
	assert.Equal(t, generation.OverloadedMessage, overloaded.Message)
	assert.True(t, IsOverloaded(err))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestUnavailableWithoutMarkerIsStatusError(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})

	_, err := client.Do(t.Context(), Request{Target: "/"})

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.False(t, IsOverloaded(err))
	assert.Equal(t, "request failed with status 503: maintenance", status.Error())
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Error processing the request"}`))
	})

	_, err := client.Do(t.Context(), Request{Target: "/"})

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusInternalServerError, status.StatusCode)
	assert.Equal(t, generation.InternalErrorMessage, status.Message)
}

func TestCustomOverloadDetector(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(t.Context(), WithHTTPClient(srv.Client()),
		WithOverloadDetector(func(status int, _ []byte) bool {
			return status == http.StatusTooManyRequests
		}))

	_, err := client.Do(t.Context(), Request{Target: srv.URL})
	assert.True(t, IsOverloaded(err))
}

func TestMalformedResponse(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := NewJSONCaller[echo](client).Call(t.Context(), Request{Target: "/"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestCancelledDuringCall(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	cause := errors.New("user aborted")

	ctx, cancel := context.WithCancelCause(t.Context())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(cause)
	}()

	_, err := client.Do(ctx, Request{Target: "/"})
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, cause)
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	ctx := transport.WithTransport(t.Context(), transport.NewCustom(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	client := NewClient(ctx)

	_, err := client.Do(ctx, Request{Target: "http://example.invalid/"})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, transportErr.Error(), "connection refused")
}

func TestRelativeTargetWithoutBase(t *testing.T) {
	t.Parallel()

	client := NewClient(t.Context(), WithTransport(http.DefaultTransport))

	_, err := client.Do(t.Context(), Request{Target: "/api/generate"})
	require.ErrorIs(t, err, errRelativeTarget)
}

func TestRawBody(t *testing.T) {
	t.Parallel()

	_, client := newServer(t, echoHandler)

	out, err := NewJSONCaller[echo](client).Call(t.Context(), Request{
		Method: http.MethodPut,
		Target: "/",
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   strings.NewReader("raw"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, out.Method)
	assert.Equal(t, "raw", out.Body)
	assert.Equal(t, "text/plain", out.Type)
}
