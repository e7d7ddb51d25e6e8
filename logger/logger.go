// Package logger configures log/slog for restyle processes and derives
// request-scoped loggers from a context.
//
// Configure once at startup, then pull loggers from the context wherever
// something is logged:
//
//	logger.ConfigureLogging(envutil.OS(), "restyle")
//	...
//	ctx = logger.With(ctx, "sequence", id)
//	logger.Get(ctx).Info("attempt failed, retrying", "attempt", k)
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/amp-labs/restyle/envutil"
	"github.com/amp-labs/restyle/lazy"
	"github.com/amp-labs/restyle/shutdown"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default subsystem, set by ConfigureLogging. Overridden per context with
// WithSubsystem.
var subsystem atomic.Value //nolint:gochecknoglobals

var configMutex sync.Mutex //nolint:gochecknoglobals

type contextKey string

// ErrInvalidLogOutput is returned for an unusable LOG_OUTPUT value.
var ErrInvalidLogOutput = errors.New("invalid log output")

// Options configures logging.
type Options struct {
	Subsystem   string
	JSON        bool
	MinLevel    slog.Level
	LegacyLevel slog.Level
	Output      io.Writer
	// Extra handlers receive every record alongside the primary one, e.g.
	// an OpenTelemetry log bridge.
	Extra []slog.Handler
}

// Option adjusts Options read from the environment.
type Option func(*Options)

// WithExtraHandler tees records to h as well.
func WithExtraHandler(h slog.Handler) Option {
	return func(o *Options) {
		if h != nil {
			o.Extra = append(o.Extra, h)
		}
	}
}

// WithOutput overrides the output destination.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// ConfigureLoggingWithOptions installs the default slog logger and redirects
// the legacy log package into it. It returns the new default logger.
func ConfigureLoggingWithOptions(opts Options) *slog.Logger {
	configMutex.Lock()
	defer configMutex.Unlock()

	handler := NewHandler(opts)

	logger := slog.New(handler)

	slog.SetDefault(logger)

	// Third-party packages that still use the log package end up in slog.
	def := log.Default()
	*def = *slog.NewLogLogger(handler, opts.LegacyLevel)

	subsystem.Store(opts.Subsystem)

	return logger
}

// NewHandler builds the handler ConfigureLoggingWithOptions installs, without
// touching global state.
func NewHandler(opts Options) slog.Handler {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	var handler slog.Handler

	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: opts.MinLevel})
	} else {
		handler = slog.NewTextHandler(opts.Output, &slog.HandlerOptions{Level: opts.MinLevel})
	}

	if len(opts.Extra) > 0 {
		handler = &fanoutHandler{handlers: append([]slog.Handler{handler}, opts.Extra...)}
	}

	return &slogErrorLogger{inner: handler}
}

// ConfigureLogging reads LOG_JSON, LOG_LEVEL, LEGACY_LOG_LEVEL and LOG_OUTPUT
// from src and configures logging. LOG_OUTPUT is stdout (default), stderr,
// or a file path; files are rotated by size.
func ConfigureLogging(src envutil.Source, app string, opts ...Option) (*slog.Logger, error) {
	logJSON, err := envutil.Bool(src, "LOG_JSON", envutil.Default(false)).Value()
	if err != nil {
		return nil, err
	}

	minLevel, err := level(src, "LOG_LEVEL").Value()
	if err != nil {
		return nil, err
	}

	legacyLevel, err := level(src, "LEGACY_LOG_LEVEL").Value()
	if err != nil {
		return nil, err
	}

	output, err := envutil.Map(envutil.String(src, "LOG_OUTPUT"), openOutput).
		WithDefault(os.Stdout).Value()
	if err != nil {
		return nil, err
	}

	options := Options{
		Subsystem:   app,
		JSON:        logJSON,
		MinLevel:    minLevel,
		LegacyLevel: legacyLevel,
		Output:      output,
	}

	for _, o := range opts {
		o(&options)
	}

	return ConfigureLoggingWithOptions(options), nil
}

func level(src envutil.Source, key string) envutil.Reader[slog.Level] {
	return envutil.Map(envutil.String(src, key), func(s string) (slog.Level, error) {
		var lvl slog.Level

		err := lvl.UnmarshalText([]byte(strings.TrimSpace(s)))

		return lvl, err
	}).WithDefault(slog.LevelInfo)
}

const (
	rotateMaxSizeMB  = 50
	rotateMaxBackups = 3
)

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if strings.HasSuffix(name, "/") {
		return nil, fmt.Errorf("%w: %q is a directory", ErrInvalidLogOutput, name)
	}

	rotating := &lumberjack.Logger{
		Filename:   name,
		MaxSize:    rotateMaxSizeMB,
		MaxBackups: rotateMaxBackups,
		Compress:   true,
	}

	shutdown.BeforeShutdown(func() {
		_ = rotating.Close()
	})

	return rotating, nil
}

// WithMuted silences every logger derived from the returned context.
func WithMuted(ctx context.Context, muted bool) context.Context {
	return context.WithValue(orBackground(ctx), contextKey("mute"), muted)
}

func isMuted(ctx context.Context) bool {
	muted, ok := ctx.Value(contextKey("mute")).(bool)

	return ok && muted
}

// WithLogger pins the base logger for the returned context, bypassing the
// process default. Tests use it to route logs to testing.T.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(orBackground(ctx), contextKey("logger"), logger)
}

// WithSubsystem overrides the subsystem attribute for this context.
func WithSubsystem(ctx context.Context, subsystem string) context.Context {
	return context.WithValue(orBackground(ctx), contextKey("subsystem"), subsystem)
}

// GetSubsystem returns the context's subsystem, or the configured default.
func GetSubsystem(ctx context.Context) string {
	if val, ok := orBackground(ctx).Value(contextKey("subsystem")).(string); ok {
		return val
	}

	if val, ok := subsystem.Load().(string); ok {
		return val
	}

	return ""
}

// WithRequestId tags the context with a request id.
func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(orBackground(ctx), contextKey("request_id"), requestId)
}

// GetRequestId returns the request id set by WithRequestId.
func GetRequestId(ctx context.Context) (string, bool) {
	val, ok := orBackground(ctx).Value(contextKey("request_id")).(string)

	return val, ok
}

var hostname = lazy.New[string](func() string { //nolint:gochecknoglobals
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}

	return h
})

var nullLogger = slog.New(slog.DiscardHandler) //nolint:gochecknoglobals

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}

	return ctx
}

// Get returns a logger carrying the subsystem, host, request id and any
// values added with With. Only the first non-nil context is used.
//
//nolint:contextcheck
func Get(ctx ...context.Context) *slog.Logger {
	var realCtx context.Context

	for _, c := range ctx {
		if c != nil {
			realCtx = c //nolint:fatcontext

			break
		}
	}

	realCtx = orBackground(realCtx)

	if isMuted(realCtx) {
		return nullLogger
	}

	logger, ok := realCtx.Value(contextKey("logger")).(*slog.Logger)
	if !ok || logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("subsystem", GetSubsystem(realCtx), "host", hostname.Get())

	if requestId, found := GetRequestId(realCtx); found {
		logger = logger.With("request-id", requestId)
	}

	if vals := getValues(realCtx); vals != nil {
		logger = logger.With(vals...)
	}

	return logger
}

// With returns a context whose loggers include values.
func With(ctx context.Context, values ...any) context.Context {
	if len(values) == 0 && ctx != nil {
		return ctx
	}

	existing := getValues(ctx)
	vals := make([]any, 0, len(existing)+len(values))
	vals = append(vals, existing...)
	vals = append(vals, values...)

	return context.WithValue(orBackground(ctx), contextKey("loggerValues"), vals)
}

func getValues(ctx context.Context) []any {
	vals, _ := orBackground(ctx).Value(contextKey("loggerValues")).([]any)

	return vals
}
