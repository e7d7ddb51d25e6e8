package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amp-labs/restyle/envutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(envutil.Values{"RESTYLE_HISTORY_PATH": "/tmp/h.json"})
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, cfg.Client.Endpoint)
	assert.Equal(t, 3, cfg.Client.MaxRetries)
	assert.Equal(t, time.Second, cfg.Client.RetryDelayBase)
	assert.Zero(t, cfg.Client.RetryDelayMax)
	assert.Zero(t, cfg.Client.Jitter)

	assert.Equal(t, DefaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, DefaultLatencyMin, cfg.Server.LatencyMin)
	assert.Equal(t, DefaultLatencyMax, cfg.Server.LatencyMax)
	assert.InDelta(t, DefaultOverloadProbability, cfg.Server.OverloadProbability, 1e-9)

	assert.Equal(t, "/tmp/h.json", cfg.History.Path)
	assert.Equal(t, 5, cfg.History.Limit)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load(envutil.Values{
		"RESTYLE_ENDPOINT":                 "https://gen.example.com",
		"RESTYLE_MAX_RETRIES":              "0",
		"RESTYLE_RETRY_DELAY_BASE":         "250",
		"RESTYLE_RETRY_DELAY_MAX":          "5s",
		"RESTYLE_SIM_OVERLOAD_PROBABILITY": "1",
		"RESTYLE_HISTORY_DATABASE_URL":     "postgres://u:p@localhost:5432/restyle",
		"RESTYLE_HISTORY_LIMIT":            "10",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://gen.example.com", cfg.Client.Endpoint)
	assert.Equal(t, 0, cfg.Client.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.RetryDelayBase)
	assert.Equal(t, 5*time.Second, cfg.Client.RetryDelayMax)
	assert.InDelta(t, 1.0, cfg.Server.OverloadProbability, 1e-9)
	assert.Equal(t, "postgres://u:p@localhost:5432/restyle", cfg.History.DatabaseURL)
	assert.Equal(t, 10, cfg.History.Limit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  envutil.Values
	}{
		{"unparsable retries", envutil.Values{"RESTYLE_MAX_RETRIES": "many"}},
		{"negative retries", envutil.Values{"RESTYLE_MAX_RETRIES": "-1"}},
		{"zero delay", envutil.Values{"RESTYLE_RETRY_DELAY_BASE": "0s"}},
		{"relative endpoint", envutil.Values{"RESTYLE_ENDPOINT": "/api"}},
		{"probability above one", envutil.Values{"RESTYLE_SIM_OVERLOAD_PROBABILITY": "1.5"}},
		{"latency range inverted", envutil.Values{
			"RESTYLE_SIM_LATENCY_MIN": "3s",
			"RESTYLE_SIM_LATENCY_MAX": "1s",
		}},
		{"jitter above one", envutil.Values{"RESTYLE_RETRY_JITTER": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(tt.env)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "restyle.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"RESTYLE_MAX_RETRIES=7\nRESTYLE_ENDPOINT=http://from-file:9000\n"), 0o600))

	cfg, err := Load(envutil.Values{
		EnvFileKey:         path,
		"RESTYLE_ENDPOINT": "http://from-env:8000",
	})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Client.MaxRetries)
	assert.Equal(t, "http://from-env:8000", cfg.Client.Endpoint)

	_, err = Load(envutil.Values{EnvFileKey: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
}
