package telemetry

import (
	"testing"
	"time"

	"github.com/amp-labs/restyle/envutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(envutil.Values{}, "restyle")
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogsEnabled)
	assert.Equal(t, "restyle", cfg.ServiceName)
	assert.Equal(t, defaultServiceVersion, cfg.ServiceVersion)
	assert.Equal(t, "local", cfg.Environment)
	assert.Empty(t, cfg.Endpoint)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
}

func TestLoadConfig_FromSource(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(envutil.Values{
		"OTEL_ENABLED":                       "true",
		"OTEL_LOGS_ENABLED":                  "true",
		"OTEL_SERVICE_NAME":                  "restyle-api",
		"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT": "http://collector:4318/v1/traces",
		"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT":   "http://collector:4318/v1/logs",
		"OTEL_EXPORTER_OTLP_TRACES_TIMEOUT":  "10s",
	}, "restyle")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.LogsEnabled)
	assert.Equal(t, "restyle-api", cfg.ServiceName)
	assert.Equal(t, "http://collector:4318/v1/traces", cfg.Endpoint)
	assert.Equal(t, "http://collector:4318/v1/logs", cfg.LogsEndpoint)
	assert.Equal(t, 10*time.Second, cfg.Timeout)

	_, err = LoadConfig(envutil.Values{"OTEL_ENABLED": "maybe"}, "restyle")
	require.Error(t, err)
}

func TestInitialize_Disabled(t *testing.T) {
	t.Parallel()

	provider, err := Initialize(t.Context(), &Config{ServiceName: "restyle"})
	require.NoError(t, err)

	assert.Nil(t, provider.LogHandler())
	require.NoError(t, provider.Shutdown(t.Context()))

	var nilProvider *Provider
	assert.Nil(t, nilProvider.LogHandler())
	assert.NoError(t, nilProvider.Shutdown(t.Context()))
}
