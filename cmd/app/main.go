package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/ai"
	"github.com/Harvey-AU/catalog-backoffice/internal/api"
	"github.com/Harvey-AU/catalog-backoffice/internal/cache"
	"github.com/Harvey-AU/catalog-backoffice/internal/config"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/db"
	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/Harvey-AU/catalog-backoffice/internal/observability"
	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "catalog-backoffice"

// staleSweeper runs the stale job sweep on a cron schedule
type staleSweeper interface {
	SweepStaleJobs(ctx context.Context, olderThan time.Duration) error
}

// startStaleSweeper schedules the sweep and runs it once immediately so jobs
// orphaned by a previous crash are failed at boot.
func startStaleSweeper(ctx context.Context, sweeper staleSweeper, schedule string, olderThan time.Duration) (*cron.Cron, error) {
	sweep := func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := sweeper.SweepStaleJobs(sweepCtx, olderThan); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Stale job sweep failed")
		}
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{})))
	if _, err := c.AddFunc(schedule, sweep); err != nil {
		return nil, fmt.Errorf("invalid stale sweep schedule %q: %w", schedule, err)
	}

	sweep()
	c.Start()
	return c, nil
}

// cronLogger routes cron's internal logging through zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	sentry.CaptureException(err)
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// newClassifier picks the HTTP classifier when an AI endpoint is configured
// and the local rules otherwise.
func newClassifier(cfg *config.Config) (jobs.Classifier, error) {
	if strings.TrimSpace(cfg.AIServiceURL) == "" {
		log.Warn().Msg("AI_SERVICE_URL not configured, using rules classifier")
		return ai.RulesClassifier{Confidence: 60}, nil
	}
	return ai.NewClient(ai.Config{
		BaseURL:           cfg.AIServiceURL,
		APIKey:            cfg.AIAPIKey,
		Timeout:           cfg.AITimeout,
		RequestsPerSecond: cfg.AIRate,
		Burst:             cfg.AIBurst,
		RetryCount:        2,
	})
}

// buildHandler wires the API routes and wraps them in the middleware stack.
// The last wrapper applied runs first.
func buildHandler(apiHandler *api.Handler, limiter *api.RateLimiter, obsProviders *observability.Providers) http.Handler {
	var handler http.Handler = apiHandler.Routes()
	handler = limiter.Middleware(handler)
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = api.CrossOriginProtectionMiddleware(handler)
	handler = api.CORSMiddleware(handler)
	handler = observability.WrapHandler(handler, obsProviders)
	return handler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	setupLogging(cfg)

	// Initialise Sentry for error tracking and performance monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			TracesSampleRate: func() float64 {
				if cfg.Env == "production" {
					return 0.1
				}
				return 1.0
			}(),
			AttachStacktrace: true,
			Debug:            cfg.Development(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", cfg.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	var (
		obsProviders *observability.Providers
		metricsSrv   *http.Server
	)

	if cfg.ObservabilityEnabled {
		obsProviders, err = observability.Init(context.Background(), observability.Config{
			Enabled:        true,
			ServiceName:    serviceName,
			Environment:    cfg.Env,
			OTLPEndpoint:   strings.TrimSpace(cfg.OTLPEndpoint),
			OTLPHeaders:    parseOTLPHeaders(cfg.OTLPHeaders),
			OTLPInsecure:   cfg.OTLPInsecure,
			MetricsAddress: cfg.MetricsAddr,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()

			if obsProviders.MetricsHandler != nil && cfg.MetricsAddr != "" {
				metricsSrv = &http.Server{
					Addr:              cfg.MetricsAddr,
					Handler:           obsProviders.MetricsHandler,
					ReadHeaderTimeout: 5 * time.Second,
				}

				go func() {
					log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						sentry.CaptureException(err)
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()

				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
					}
				}()
			}
		}
	}

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	pgDB, err := db.WaitForDatabase(rootCtx, db.ConfigFromEnv(), cfg.DatabaseWait)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL database")
	}
	defer pgDB.Close()

	responseCache := cache.NewInMemoryCache(cfg.CacheTTL)
	invalidator := cache.NewInvalidator(responseCache)

	coordinator := curation.NewCoordinator(pgDB, invalidator, cfg.ConfirmationTTL)

	classifier, err := newClassifier(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI classifier")
	}

	log.Info().
		Int("workers", cfg.Workers).
		Int("concurrency_per_worker", cfg.WorkerConcurrency).
		Int("total_capacity", cfg.Workers*cfg.WorkerConcurrency).
		Str("environment", cfg.Env).
		Msg("Configuring worker pool")

	workerPool := jobs.NewWorkerPool(pgDB.Queue(), classifier, invalidator, jobs.WorkerPoolConfig{
		Workers:     cfg.Workers,
		Concurrency: cfg.WorkerConcurrency,
	})
	jobsManager := jobs.NewJobManager(pgDB.Queue(), workerPool, invalidator)

	workerPool.Start(rootCtx)
	defer workerPool.Stop()

	sweeper, err := startStaleSweeper(rootCtx, jobsManager, cfg.StaleSweepSchedule, cfg.StaleJobTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start stale job sweeper")
	}
	defer func() { <-sweeper.Stop().Done() }()

	apiHandler := api.NewHandler(pgDB, pgDB, coordinator, jobsManager, pgDB, responseCache)
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           buildHandler(apiHandler, limiter, obsProviders),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})

	go func() {
		<-rootCtx.Done()
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Str("port", cfg.Port).Msg("Starting server")
	if cfg.Development() {
		baseURL := fmt.Sprintf("http://localhost:%s", cfg.Port)
		log.Info().Str("health", baseURL+"/health").Msg("Health check")
		log.Info().Str("products", baseURL+"/api/scraper/products").Msg("Product listing")
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("Server error")
		stopSignals()
	}

	<-done
	log.Info().Msg("Server stopped")
}

func parseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	return headers
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Development() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}
