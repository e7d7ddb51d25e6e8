// Package telemetry bootstraps OpenTelemetry tracing and log export.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amp-labs/restyle/envutil"
	errs "github.com/amp-labs/restyle/errors"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultServiceVersion = "1.0.0"
	defaultTimeout        = 5 * time.Second
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	LogsEndpoint   string
	Enabled        bool
	LogsEnabled    bool
	Timeout        time.Duration
}

// LoadConfig reads OTEL_* settings from src. serviceName is used when
// OTEL_SERVICE_NAME is unset.
func LoadConfig(src envutil.Source, serviceName string) (*Config, error) {
	enabled, err := envutil.Bool(src, "OTEL_ENABLED", envutil.Default(false)).Value()
	if err != nil {
		return nil, err
	}

	logsEnabled, err := envutil.Bool(src, "OTEL_LOGS_ENABLED", envutil.Default(false)).Value()
	if err != nil {
		return nil, err
	}

	svcName, err := envutil.String(src, "OTEL_SERVICE_NAME", envutil.Default(serviceName)).Value()
	if err != nil {
		return nil, err
	}

	svcVersion, err := envutil.String(src, "OTEL_SERVICE_VERSION",
		envutil.Default(defaultServiceVersion)).
		Value()
	if err != nil {
		return nil, err
	}

	environment := envutil.String(src, "OTEL_DEPLOYMENT_ENVIRONMENT",
		envutil.Default("local")).
		ValueOrElse("local")

	endpoint := envutil.String(src, "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT").ValueOrElse("")
	logsEndpoint := envutil.String(src, "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT").ValueOrElse("")

	timeout, err := envutil.Duration(src, "OTEL_EXPORTER_OTLP_TRACES_TIMEOUT",
		envutil.Default(defaultTimeout)).
		Value()
	if err != nil {
		return nil, err
	}

	return &Config{
		ServiceName:    svcName,
		ServiceVersion: svcVersion,
		Environment:    environment,
		Endpoint:       endpoint,
		LogsEndpoint:   logsEndpoint,
		Enabled:        enabled,
		LogsEnabled:    logsEnabled,
		Timeout:        timeout,
	}, nil
}

// Provider owns the SDK pipelines created by Initialize. A zero Provider is
// valid and does nothing.
type Provider struct {
	tracer *sdktrace.TracerProvider
	logs   *sdklog.LoggerProvider
	name   string
}

// Initialize installs the global tracer provider and propagator, and a
// global log provider when log export is enabled. Disabled or unconfigured
// pipelines are skipped, not treated as errors.
func Initialize(ctx context.Context, config *Config) (*Provider, error) {
	provider := &Provider{name: config.ServiceName}

	if !config.Enabled {
		slog.Info("OpenTelemetry is disabled")

		return provider, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.Endpoint == "" {
		slog.Warn("OpenTelemetry traces endpoint not configured, tracing will be disabled")
	} else {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(config.Endpoint),
			otlptracehttp.WithTimeout(config.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}

		provider.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)

		otel.SetTracerProvider(provider.tracer)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		slog.Info("OpenTelemetry tracing initialized",
			"service", config.ServiceName,
			"version", config.ServiceVersion,
			"environment", config.Environment,
			"endpoint", config.Endpoint,
		)
	}

	if config.LogsEnabled && config.LogsEndpoint != "" {
		exporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(config.LogsEndpoint),
			otlploghttp.WithTimeout(config.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}

		provider.logs = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
			sdklog.WithResource(res),
		)

		global.SetLoggerProvider(provider.logs)
	}

	return provider, nil
}

// LogHandler returns a slog handler that exports records through the log
// pipeline, or nil when log export is off. Pass it to
// logger.WithExtraHandler.
func (p *Provider) LogHandler() slog.Handler {
	if p == nil || p.logs == nil {
		return nil
	}

	return otelslog.NewHandler(p.name, otelslog.WithLoggerProvider(p.logs))
}

// Shutdown flushes and stops every pipeline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var collected errs.Collection

	if p.tracer != nil {
		slog.Info("Shutting down OpenTelemetry tracer provider")
		collected.Add(p.tracer.Shutdown(ctx))
	}

	if p.logs != nil {
		collected.Add(p.logs.Shutdown(ctx))
	}

	return collected.GetError()
}
