// Package genapi serves the simulated generate endpoint. It behaves like a
// busy image model: slow, occasionally overloaded, and honouring client
// cancellation.
//
//	POST /api/generate   generation.Request -> generation.Response
//	GET  /healthz
//	GET  /metrics        Prometheus
package genapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/restyle/config"
	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/logger"
	"github.com/amp-labs/restyle/sanitize"
	"github.com/amp-labs/restyle/shutdown"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Base64 grows data by 4/3; the rest is room for the other fields.
	maxBodyBytes = generation.MaxFileMB*1024*1024*4/3 + 64*1024

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the generate endpoint with its worker pool.
type Server struct {
	sim      *Simulator
	pool     pond.Pool
	validate *validator.Validate
	router   chi.Router
	http     *http.Server
}

type Option func(*Server)

// WithRand replaces the random source of the simulator.
func WithRand(f func() float64) Option {
	return func(s *Server) {
		s.sim.Rand = f
	}
}

// New builds a Server. At most cfg.Capacity generations run at once and
// cfg.QueueSize more may wait; anything beyond is answered as overloaded.
func New(cfg config.Server, opts ...Option) *Server {
	poolOpts := []pond.Option{pond.WithNonBlocking(true)}
	if cfg.QueueSize > 0 {
		poolOpts = append(poolOpts, pond.WithQueueSize(cfg.QueueSize))
	}

	srv := &Server{
		sim: &Simulator{
			LatencyMin:          cfg.LatencyMin,
			LatencyMax:          cfg.LatencyMax,
			OverloadProbability: cfg.OverloadProbability,
		},
		pool:     pond.NewPool(max(cfg.Capacity, 1), poolOpts...),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, opt := range opts {
		opt(srv)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer, compressor())

	router.Post(generation.Path, srv.generate)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	router.Handle("/metrics", promhttp.Handler())

	srv.router = router
	srv.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx ends or a process shutdown is triggered,
// then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", s.http.Addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.http.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Get(ctx).Error("error shutting down server", "error", err)
		}
	})
	defer stop()

	removeHook := shutdown.BeforeShutdown(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = s.Shutdown(shutdownCtx)
	})
	defer removeHook()

	logger.Get(ctx).Info("generate endpoint listening", "addr", listener.Addr().String())

	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.pool.StopAndWait()

	return err
}

type outcome struct {
	rsp *generation.Response
	err error
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	status := s.serveGenerate(ctx, w, r)

	label := strconv.Itoa(status)
	generationsTotal.WithLabelValues(label).Inc()
	generationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

func (s *Server) serveGenerate(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	var req generation.Request

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		return writeJSON(w, http.StatusBadRequest, generation.ErrorBody{Message: "invalid request body: " + err.Error()})
	}

	req.Prompt = sanitize.Prompt(req.Prompt)

	if err := s.validate.Struct(req); err != nil {
		return writeJSON(w, http.StatusBadRequest, generation.ErrorBody{Message: validationMessage(err)})
	}

	done := make(chan outcome, 1)

	if err := s.pool.Go(func() {
		rsp, err := s.sim.Generate(ctx, req)
		done <- outcome{rsp: rsp, err: err}
	}); err != nil {
		queueRejections.Inc()
		logger.Get(ctx).Warn("generation queue full, rejecting request", "error", err)

		return writeOverloaded(w)
	}

	var res outcome

	select {
	case res = <-done:
	case <-ctx.Done():
		res = outcome{err: ctx.Err()}
	}

	// A client that has gone away never gets a result, even one that was
	// ready at the same moment.
	switch {
	case ctx.Err() != nil:
		logger.Get(ctx).Debug("generation aborted by the client")

		return writeText(w, generation.StatusClientClosedRequest, generation.ClientClosedMessage)
	case res.err == nil:
		return writeJSON(w, http.StatusOK, res.rsp)
	case errors.Is(res.err, ErrOverloaded):
		logger.Get(ctx).Info("simulating model overload")

		return writeOverloaded(w)
	default:
		logger.Get(ctx).Error("error generating image", "error", res.err)

		return writeText(w, http.StatusInternalServerError, generation.InternalErrorMessage)
	}
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request: " + err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}

	return "invalid request: " + strings.Join(parts, ", ")
}

func writeOverloaded(w http.ResponseWriter) int {
	return writeJSON(w, generation.StatusOverloaded, generation.ErrorBody{Message: generation.OverloadedMessage})
}

func writeJSON(w http.ResponseWriter, status int, body any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)

	return status
}

func writeText(w http.ResponseWriter, status int, body string) int {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	_, _ = w.Write([]byte(body))

	return status
}
