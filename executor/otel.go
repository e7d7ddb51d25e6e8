package executor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amp-labs/restyle/executor"

// startSequenceSpan starts the span covering one Execute. The caller ends it.
//
//nolint:spancheck
func startSequenceSpan(ctx context.Context, name string, seq uint64, target string, attempts int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "executor.sequence",
		trace.WithAttributes(
			attribute.String("executor", name),
			attribute.Int64("sequence", int64(seq)), //nolint:gosec
			attribute.String("target", target),
			attribute.Int("max_attempts", attempts),
		))
}

func recordAttempt(span trace.Span, attempt uint) {
	span.AddEvent("attempt", trace.WithAttributes(attribute.Int("attempt", int(attempt)+1))) //nolint:gosec
}

func recordRetry(span trace.Span, info *ErrorInfo, delaySeconds float64) {
	span.AddEvent("retry", trace.WithAttributes(
		attribute.Int("attempt", info.Attempts),
		attribute.String("kind", info.Kind.String()),
		attribute.String("error", info.Err.Error()),
		attribute.Float64("delay_seconds", delaySeconds),
	))
}

func endSequenceSpan(span trace.Span, result Outcome, err error) {
	span.SetAttributes(attribute.String("outcome", result.String()))

	switch result {
	case OutcomeFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case OutcomeSucceeded:
		span.SetStatus(codes.Ok, "")
	case OutcomeAborted:
		if err != nil {
			span.SetAttributes(attribute.String("abort_cause", err.Error()))
		}
	}

	span.End()
}
