package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// RetryConfig holds configuration for connection retry behaviour
type RetryConfig struct {
	MaxAttempts     int           // Maximum number of connection attempts
	InitialInterval time.Duration // Initial retry interval
	MaxInterval     time.Duration // Cap for exponential backoff
	Multiplier      float64       // Backoff multiplier
	Jitter          bool          // Add randomness to prevent thundering herd
}

// DefaultRetryConfig returns the defaults used at startup
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     10,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// connect is swapped in tests
var connect = New

// NewWithRetry connects with exponential backoff, failing fast on errors that
// a retry cannot fix (bad credentials, bad config).
func NewWithRetry(ctx context.Context, config *Config, retryConfig RetryConfig) (*DB, error) {
	var lastErr error
	backoff := retryConfig.InitialInterval
	startTime := time.Now()

	for attempt := 1; attempt <= retryConfig.MaxAttempts; attempt++ {
		db, err := connect(config)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempts", attempt).
					Dur("elapsed", time.Since(startTime)).
					Msg("Database connection established after retries")
			}
			return db, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			log.Error().
				Err(err).
				Int("attempt", attempt).
				Msg("Database connection failed with non-retryable error")
			return nil, fmt.Errorf("database connection failed: %w", err)
		}

		if attempt >= retryConfig.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", retryConfig.MaxAttempts).
			Dur("retry_in", backoff).
			Msg("Database connection failed, retrying...")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connection retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff, retryConfig)
	}

	log.Error().
		Err(lastErr).
		Int("max_attempts", retryConfig.MaxAttempts).
		Msg("Database connection failed after all retry attempts")

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retryConfig.MaxAttempts, lastErr)
}

func nextBackoff(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxInterval {
		next = cfg.MaxInterval
	}
	if cfg.Jitter {
		// +/-10%
		next += time.Duration(float64(next) * 0.1 * (2*rand.Float64() - 1))
	}
	return next
}

// WaitForDatabase blocks until the database is reachable or maxWait elapses
func WaitForDatabase(ctx context.Context, config *Config, maxWait time.Duration) (*DB, error) {
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	retryConfig := RetryConfig{
		MaxAttempts:     max(1, int(math.Ceil(float64(maxWait)/float64(5*time.Second)))),
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}

	log.Info().
		Dur("max_wait", maxWait).
		Int("max_attempts", retryConfig.MaxAttempts).
		Msg("Waiting for database to become available...")

	return NewWithRetry(waitCtx, config, retryConfig)
}

// isRetryableError reports whether a connection or statement failure is
// worth retrying. Configuration errors and bad data are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if class, ok := sqlStateClass(err); ok {
		switch class {
		case "08", "53", "57", "58", "40":
			return true
		case "23", "22", "28", "42", "3D":
			return false
		default:
			return true
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fatal := range []string{"is required", "password authentication failed", "does not exist"} {
		if strings.Contains(msg, fatal) {
			return false
		}
	}
	for _, transient := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"too many clients",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}

	return true
}

// sqlStateClass extracts the two-character SQLSTATE class from either driver's error type
func sqlStateClass(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		return pgErr.Code[:2], true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code.Class()), true
	}
	return "", false
}
