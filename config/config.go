// Package config assembles restyle's settings from the environment,
// optionally layered over a .env, YAML or JSON file named by
// RESTYLE_ENV_FILE, and validates them.
//
// Client:
//
//   - RESTYLE_ENDPOINT (default http://localhost:8080)
//   - RESTYLE_MAX_RETRIES (default 3)
//   - RESTYLE_RETRY_DELAY_BASE (default 1s)
//   - RESTYLE_RETRY_DELAY_MAX (default 0, uncapped)
//   - RESTYLE_RETRY_JITTER (default 0, in [0, 1])
//
// Simulated server:
//
//   - RESTYLE_LISTEN_ADDR (default :8080)
//   - RESTYLE_SIM_LATENCY_MIN, RESTYLE_SIM_LATENCY_MAX (default 1s, 3s)
//   - RESTYLE_SIM_OVERLOAD_PROBABILITY (default 0.2)
//   - RESTYLE_SIM_CAPACITY (default 8 concurrent generations)
//   - RESTYLE_SIM_QUEUE (default 16 waiting generations)
//
// History:
//
//   - RESTYLE_HISTORY_PATH (default <user config dir>/restyle/history.json)
//   - RESTYLE_HISTORY_DATABASE_URL (optional, selects Postgres)
//   - RESTYLE_HISTORY_LIMIT (default 5)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amp-labs/restyle/envutil"
	"github.com/amp-labs/restyle/generation"
	"github.com/go-playground/validator/v10"
)

const (
	EnvFileKey = "RESTYLE_ENV_FILE"

	DefaultEndpoint            = "http://localhost:8080"
	DefaultListenAddr          = ":8080"
	DefaultLatencyMin          = time.Second
	DefaultLatencyMax          = 3 * time.Second
	DefaultOverloadProbability = 0.2
	DefaultCapacity            = 8
	DefaultQueueSize           = 16
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Client  Client
	Server  Server
	History History
}

type Client struct {
	Endpoint       string        `validate:"required,http_url"`
	MaxRetries     int           `validate:"gte=0,lte=50"`
	RetryDelayBase time.Duration `validate:"gt=0"`
	RetryDelayMax  time.Duration `validate:"gte=0"`
	Jitter         float64       `validate:"gte=0,lte=1"`
}

type Server struct {
	ListenAddr          string        `validate:"required"`
	LatencyMin          time.Duration `validate:"gte=0"`
	LatencyMax          time.Duration `validate:"gtefield=LatencyMin"`
	OverloadProbability float64       `validate:"gte=0,lte=1"`
	Capacity            int           `validate:"gte=1"`
	QueueSize           int           `validate:"gte=0"`
}

type History struct {
	Path        string `validate:"required_without=DatabaseURL"`
	DatabaseURL string `validate:"omitempty,url"`
	Limit       int    `validate:"gte=1,lte=100"`
}

// Source layers the file named by RESTYLE_ENV_FILE, if any, under base.
// Keys set in base win.
func Source(base envutil.Source) (envutil.Source, error) {
	if base == nil {
		base = envutil.OS()
	}

	path := envutil.String(base, EnvFileKey).ValueOrElse("")
	if path == "" {
		return base, nil
	}

	values, err := envutil.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", EnvFileKey, err)
	}

	return envutil.Layered(base, values), nil
}

// Load reads and validates the configuration from src.
func Load(src envutil.Source) (*Config, error) {
	src, err := Source(src)
	if err != nil {
		return nil, err
	}

	var errs []error

	read := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{}

	cfg.Client.Endpoint, err = envutil.String(src, "RESTYLE_ENDPOINT", envutil.Default(DefaultEndpoint)).Value()
	read(err)
	cfg.Client.MaxRetries, err = envutil.Int(src, "RESTYLE_MAX_RETRIES",
		envutil.Default(3)).Value() //nolint:mnd
	read(err)
	cfg.Client.RetryDelayBase, err = envutil.Duration(src, "RESTYLE_RETRY_DELAY_BASE",
		envutil.Default(time.Second)).Value()
	read(err)
	cfg.Client.RetryDelayMax, err = envutil.Duration(src, "RESTYLE_RETRY_DELAY_MAX",
		envutil.Default(time.Duration(0))).Value()
	read(err)
	cfg.Client.Jitter, err = envutil.Float64(src, "RESTYLE_RETRY_JITTER", envutil.Default(0.0)).Value()
	read(err)

	cfg.Server.ListenAddr, err = envutil.String(src, "RESTYLE_LISTEN_ADDR", envutil.Default(DefaultListenAddr)).Value()
	read(err)
	cfg.Server.LatencyMin, err = envutil.Duration(src, "RESTYLE_SIM_LATENCY_MIN",
		envutil.Default(DefaultLatencyMin)).Value()
	read(err)
	cfg.Server.LatencyMax, err = envutil.Duration(src, "RESTYLE_SIM_LATENCY_MAX",
		envutil.Default(DefaultLatencyMax)).Value()
	read(err)
	cfg.Server.OverloadProbability, err = envutil.Float64(src, "RESTYLE_SIM_OVERLOAD_PROBABILITY",
		envutil.Default(DefaultOverloadProbability)).Value()
	read(err)
	cfg.Server.Capacity, err = envutil.Int(src, "RESTYLE_SIM_CAPACITY", envutil.Default(DefaultCapacity)).Value()
	read(err)
	cfg.Server.QueueSize, err = envutil.Int(src, "RESTYLE_SIM_QUEUE", envutil.Default(DefaultQueueSize)).Value()
	read(err)

	cfg.History.Path, err = envutil.String(src, "RESTYLE_HISTORY_PATH", envutil.Default(defaultHistoryPath())).Value()
	read(err)
	cfg.History.DatabaseURL = envutil.String(src, "RESTYLE_HISTORY_DATABASE_URL").ValueOrElse("")
	cfg.History.Limit, err = envutil.Int(src, "RESTYLE_HISTORY_LIMIT",
		envutil.Default(generation.HistoryLimit)).Value()
	read(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	return filepath.Join(dir, "restyle", "history.json")
}
