//go:build unit || !integration

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("WORKERS", "")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.PollTimeout)
	assert.Equal(t, 10*time.Minute, cfg.StaleJobTimeout)
	assert.True(t, cfg.ObservabilityEnabled)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("PORT", "9000")
	t.Setenv("AI_SERVICE_URL", "http://ai.internal")
	t.Setenv("AI_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("STALE_SWEEP_SCHEDULE", "*/5 * * * *")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2.5, cfg.AIRate)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.Development())
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantMsg string
	}{
		{"unparseable duration", "POLL_INTERVAL", "soon", "failed to read configuration"},
		{"bad log level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"too much concurrency", "WORKER_CONCURRENCY", "50", "WORKER_CONCURRENCY"},
		{"bad schedule", "STALE_SWEEP_SCHEDULE", "every so often", "STALE_SWEEP_SCHEDULE"},
		{"timeout shorter than interval", "POLL_TIMEOUT", "1s", "POLL_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		Port:               "",
		LogLevel:           "info",
		Workers:            0,
		WorkerConcurrency:  1,
		RateLimitRPS:       1,
		RateLimitBurst:     1,
		StaleSweepSchedule: "@every 1m",
		StaleJobTimeout:    time.Minute,
		PollInterval:       time.Second,
		PollTimeout:        time.Minute,
		ConfirmationTTL:    time.Minute,
	}

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "WORKERS")
}
