package executor

import (
	"testing"

	"github.com/amp-labs/restyle/fetch"
	"github.com/amp-labs/restyle/generation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Swaps the global tracer provider, so it must not run in parallel.
func TestSequenceTelemetry(t *testing.T) { //nolint:paralleltest
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(t.Context())
	})

	caller := &scripted{results: []scriptedResult{
		{err: &fetch.OverloadedError{StatusCode: generation.StatusOverloaded, Message: generation.OverloadedMessage}},
		{data: "ok"},
	}}

	exec := New[string](caller, WithName("telemetry"))
	defer func() { _ = exec.Close() }()

	result := exec.Execute(t.Context(), "/generate", WithMaxRetries(3), WithRetryDelayBase(fastDelay))
	require.True(t, result.Succeeded())

	assert.InDelta(t, 1, testutil.ToFloat64(sequencesTotal.WithLabelValues("telemetry", "succeeded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(attemptsTotal.WithLabelValues("telemetry", "success")), 0)
	assert.InDelta(t, 1,
		testutil.ToFloat64(attemptsTotal.WithLabelValues("telemetry", KindTransientServer.String())), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(liveSequences.WithLabelValues("telemetry")), 0)

	var span sdktrace.ReadOnlySpan

	for _, s := range recorder.Ended() {
		for _, attr := range s.Attributes() {
			if attr.Key == "executor" && attr.Value.AsString() == "telemetry" {
				span = s
			}
		}
	}

	require.NotNil(t, span, "sequence span not recorded")
	assert.Equal(t, "executor.sequence", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("outcome", OutcomeSucceeded.String()))

	var events []string
	for _, e := range span.Events() {
		events = append(events, e.Name)
	}

	assert.Equal(t, []string{"attempt", "retry", "attempt"}, events)
}
