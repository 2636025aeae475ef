// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds the application configuration loaded from environment variables
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	ObservabilityEnabled bool   `envconfig:"OBSERVABILITY_ENABLED" default:"true"`
	MetricsAddr          string `envconfig:"METRICS_ADDR" default:":9464"`
	OTLPEndpoint         string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders          string `envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`
	OTLPInsecure         bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"false"`

	// DatabaseWait bounds how long startup waits for Postgres
	DatabaseWait time.Duration `envconfig:"DATABASE_WAIT" default:"2m"`

	// Workers defaults by environment when unset
	Workers           int `envconfig:"WORKERS"`
	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"4"`

	AIServiceURL string        `envconfig:"AI_SERVICE_URL"`
	AIAPIKey     string        `envconfig:"AI_API_KEY"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`
	AIRate       float64       `envconfig:"AI_REQUESTS_PER_SECOND" default:"5"`
	AIBurst      int           `envconfig:"AI_BURST" default:"5"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"10"`

	StaleSweepSchedule string        `envconfig:"STALE_SWEEP_SCHEDULE" default:"@every 1m"`
	StaleJobTimeout    time.Duration `envconfig:"STALE_JOB_TIMEOUT" default:"10m"`

	ConfirmationTTL time.Duration `envconfig:"CONFIRMATION_TTL" default:"5m"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	PollTimeout  time.Duration `envconfig:"POLL_TIMEOUT" default:"300s"`
}

// Load reads .env.local and .env when present, then the process environment.
// Existing environment variables win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local", ".env")
	return FromEnv()
}

// FromEnv reads the process environment only
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Workers == 0 {
		switch c.Env {
		case "production":
			c.Workers = 8
		case "staging":
			c.Workers = 4
		default:
			c.Workers = 2
		}
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel))
	}
	if c.Workers < 1 || c.Workers > 64 {
		errs = append(errs, fmt.Errorf("WORKERS must be between 1 and 64, got %d", c.Workers))
	}
	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 20 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 20, got %d", c.WorkerConcurrency))
	}
	if c.AIServiceURL != "" && (c.AIRate <= 0 || c.AIBurst < 1) {
		errs = append(errs, errors.New("AI_REQUESTS_PER_SECOND and AI_BURST must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if _, err := cron.ParseStandard(c.StaleSweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("STALE_SWEEP_SCHEDULE: %w", err))
	}
	if c.StaleJobTimeout <= 0 {
		errs = append(errs, errors.New("STALE_JOB_TIMEOUT must be positive"))
	}
	if c.PollInterval <= 0 || c.PollTimeout < c.PollInterval {
		errs = append(errs, errors.New("POLL_TIMEOUT must be at least POLL_INTERVAL and both positive"))
	}
	if c.ConfirmationTTL <= 0 {
		errs = append(errs, errors.New("CONFIRMATION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Development reports whether the service runs locally
func (c *Config) Development() bool {
	return c.Env == "development"
}
