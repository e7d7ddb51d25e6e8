package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/restyle/config"
	"github.com/amp-labs/restyle/dataurl"
	"github.com/amp-labs/restyle/executor"
	"github.com/amp-labs/restyle/fetch"
	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/http/transport"
	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var imageURL = dataurl.Encode("image/png", []byte("\x89PNG\r\n\x1a\nfake"))

func instant() config.Server {
	return config.Server{
		ListenAddr:          "127.0.0.1:0",
		OverloadProbability: 0.2,
		Capacity:            4,
		QueueSize:           4,
	}
}

// sequence returns the given numbers in turn, then repeats the last one.
func sequence(values ...float64) func() float64 {
	var (
		mut sync.Mutex
		idx int
	)

	return func() float64 {
		mut.Lock()
		defer mut.Unlock()

		v := values[min(idx, len(values)-1)]
		idx++

		return v
	}
}

func newTestServer(t *testing.T, cfg config.Server, opts ...Option) *Server {
	t.Helper()

	srv := New(cfg, opts...)

	t.Cleanup(func() {
		srv.pool.StopAndWait()
	})

	return srv
}

func post(t *testing.T, ctx context.Context, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequestWithContext(ctx, http.MethodPost, generation.Path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, instant(), WithRand(sequence(0.9)))

	rec := post(t, t.Context(), srv.Handler(), generation.Request{
		ImageDataURL: imageURL,
		Prompt:       "  golden   hour\tlight ",
		Style:        generation.StyleEditorial,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var rsp generation.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))

	_, err := uuid.Parse(rsp.ID)
	require.NoError(t, err)
	assert.Equal(t, imageURL, rsp.DataURL)
	assert.Equal(t, "golden hour light", rsp.Prompt)
	assert.Equal(t, generation.StyleEditorial, rsp.Style)
	assert.WithinDuration(t, time.Now(), rsp.CreatedAt, time.Minute)
}

func TestGenerateOverloaded(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, instant(), WithRand(sequence(0.1)))

	rec := post(t, t.Context(), srv.Handler(), generation.Request{
		ImageDataURL: imageURL,
		Style:        generation.StyleVintage,
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"message":"Model overloaded"}`, rec.Body.String())
	assert.True(t, generation.IsOverloaded(rec.Code, rec.Body.Bytes()))
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, instant())

	tests := []struct {
		name string
		body any
	}{
		{"unknown style", generation.Request{ImageDataURL: imageURL, Style: "Baroque"}},
		{"missing style", generation.Request{ImageDataURL: imageURL}},
		{"missing image", generation.Request{Style: generation.StyleVintage}},
		{"not a data url", generation.Request{ImageDataURL: "https://example.com/a.png", Style: generation.StyleVintage}},
		{"prompt too long", generation.Request{
			ImageDataURL: imageURL,
			Style:        generation.StyleVintage,
			Prompt:       strings.Repeat("é", generation.MaxPromptLength+1),
		}},
		{"not an object", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := post(t, t.Context(), srv.Handler(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var msg generation.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
			assert.NotEmpty(t, msg.Message)
		})
	}
}

func TestGenerateClientAbort(t *testing.T) {
	t.Parallel()

	cfg := instant()
	cfg.LatencyMin = time.Hour
	cfg.LatencyMax = time.Hour

	srv := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	rec := post(t, ctx, srv.Handler(), generation.Request{
		ImageDataURL: imageURL,
		Style:        generation.StyleStreetwear,
	})
	assert.Equal(t, generation.StatusClientClosedRequest, rec.Code)
	assert.Equal(t, generation.ClientClosedMessage, rec.Body.String())
}

func TestGenerateCancelledAtCompletionIsAborted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	// The client goes away just as the simulated model finishes.
	srv := newTestServer(t, instant(), WithRand(func() float64 {
		cancel()

		return 0.5
	}))

	rec := post(t, ctx, srv.Handler(), generation.Request{
		ImageDataURL: imageURL,
		Style:        generation.StyleEditorial,
	})
	assert.Equal(t, generation.StatusClientClosedRequest, rec.Code)
	assert.Equal(t, generation.ClientClosedMessage, rec.Body.String())
}

func TestGenerateQueueFull(t *testing.T) {
	t.Parallel()

	cfg := instant()
	cfg.LatencyMin = time.Hour
	cfg.LatencyMax = time.Hour
	cfg.Capacity = 1
	cfg.QueueSize = 1

	srv := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	req := generation.Request{ImageDataURL: imageURL, Style: generation.StyleVintage}

	var wg sync.WaitGroup

	for range 2 {
		wg.Go(func() {
			post(t, ctx, srv.Handler(), req)
		})
	}

	require.Eventually(t, func() bool {
		return srv.pool.RunningWorkers() == 1 && srv.pool.WaitingTasks() == 1
	}, 5*time.Second, time.Millisecond)

	rec := post(t, t.Context(), srv.Handler(), req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, generation.IsOverloaded(rec.Code, rec.Body.Bytes()))

	cancel()
	wg.Wait()
}

func TestHealthzCompression(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, instant())

	decoders := map[string]func(io.Reader) (io.Reader, error){
		"br": func(r io.Reader) (io.Reader, error) {
			return brotli.NewReader(r), nil
		},
		"zstd": func(r io.Reader) (io.Reader, error) {
			return zstd.NewReader(r)
		},
	}

	for encoding, decode := range decoders {
		req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/healthz", nil)
		req.Header.Set("Accept-Encoding", encoding)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, encoding, rec.Header().Get("Content-Encoding"))

		reader, err := decode(rec.Body)
		require.NoError(t, err)

		body, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, instant(), WithRand(sequence(0.9)))

	post(t, t.Context(), srv.Handler(), generation.Request{ImageDataURL: imageURL, Style: generation.StyleVintage})

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "restyle_genapi_generations_total")
}

// The executor, the fetch client and the endpoint together: an overloaded
// first attempt is retried once and the second succeeds.
func TestExecutorAgainstEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, instant(), WithRand(sequence(0.0, 0.9)))

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	base, err := url.Parse(httpSrv.URL)
	require.NoError(t, err)

	// The endpoint compresses its replies, so the client has to decode them.
	client := fetch.NewClient(t.Context(), fetch.WithBaseURL(base),
		fetch.WithTransport(transport.NewDecompressor(httpSrv.Client().Transport)))
	exec := executor.New[generation.Response](fetch.NewJSONCaller[generation.Response](client))

	states, unsubscribe := exec.Subscribe()
	defer unsubscribe()

	result := exec.Execute(t.Context(), generation.Path,
		executor.WithMethod(http.MethodPost),
		executor.WithBody(generation.Request{ImageDataURL: imageURL, Prompt: "p", Style: generation.StyleVintage}),
		executor.WithMaxRetries(3),
		executor.WithRetryDelayBase(time.Millisecond))
	require.True(t, result.Succeeded(), "%v", result.Err)
	assert.Equal(t, imageURL, result.Data.DataURL)

	require.NoError(t, exec.Close())

	retrying := 0

	for state := range states {
		if state.Status == executor.StatusRetrying {
			retrying++

			assert.Equal(t, executor.KindTransientServer, state.Error.Kind)
		}
	}

	assert.Equal(t, 1, retrying)
}

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()

	srv := New(instant())

	ctx, cancel := context.WithCancel(t.Context())

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server did not stop")
	}
}
