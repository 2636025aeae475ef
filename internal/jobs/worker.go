package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/observability"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// WorkerPool claims queued curation jobs and runs their products through the classifier
type WorkerPool struct {
	store       JobStore
	classifier  Classifier
	refresher   curation.Refresher
	numWorkers  int
	concurrency int
	stopCh      chan struct{}
	notifyCh    chan struct{}
	wg          sync.WaitGroup
	stopping    atomic.Bool
	baseSleep   time.Duration
	maxSleep    time.Duration
}

// WorkerPoolConfig tunes a WorkerPool
type WorkerPoolConfig struct {
	Workers int
	// Concurrency bounds the classifier calls in flight for one job
	Concurrency int
	BaseSleep   time.Duration
	MaxSleep    time.Duration
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(store JobStore, classifier Classifier, refresher curation.Refresher, cfg WorkerPoolConfig) *WorkerPool {
	if store == nil {
		panic("job store is required")
	}
	if classifier == nil {
		panic("classifier is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.BaseSleep <= 0 {
		cfg.BaseSleep = 200 * time.Millisecond
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = 30 * time.Second
	}

	return &WorkerPool{
		store:       store,
		classifier:  classifier,
		refresher:   refresher,
		numWorkers:  cfg.Workers,
		concurrency: cfg.Concurrency,
		stopCh:      make(chan struct{}),
		notifyCh:    make(chan struct{}, 1), // Buffer of 1 to prevent blocking
		baseSleep:   cfg.BaseSleep,
		maxSleep:    cfg.MaxSleep,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Int("workers", wp.numWorkers).Int("concurrency", wp.concurrency).Msg("Starting worker pool")

	wp.wg.Add(wp.numWorkers)
	for i := 0; i < wp.numWorkers; i++ {
		go wp.worker(ctx, i)
	}
}

// Stop stops the worker pool and waits for in-flight jobs
func (wp *WorkerPool) Stop() {
	if !wp.stopping.CompareAndSwap(false, true) {
		return
	}
	log.Debug().Msg("Stopping worker pool")
	close(wp.stopCh)
	wp.wg.Wait()
	log.Debug().Msg("Worker pool stopped")
}

// Notify wakes an idle worker
func (wp *WorkerPool) Notify() {
	select {
	case wp.notifyCh <- struct{}{}:
	default:
	}
}

func (wp *WorkerPool) worker(ctx context.Context, workerID int) {
	defer wp.wg.Done()

	log.Info().Int("worker_id", workerID).Msg("Starting worker")

	consecutiveNoJobs := 0

	for {
		select {
		case <-wp.stopCh:
			log.Debug().Int("worker_id", workerID).Msg("Worker received stop signal")
			return
		case <-ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("Worker context cancelled")
			return
		default:
		}

		err := wp.processNextJob(ctx)
		if err == nil {
			consecutiveNoJobs = 0
			continue
		}

		if errors.Is(err, sql.ErrNoRows) {
			consecutiveNoJobs++
			if consecutiveNoJobs == 1 || consecutiveNoJobs%10 == 0 {
				log.Debug().Int("worker_id", workerID).Msg("Waiting for curation jobs")
			}
		} else {
			log.Error().Err(err).Int("worker_id", workerID).Msg("Failed to process curation job")
			consecutiveNoJobs = 1
		}

		// Exponential backoff with a maximum
		sleepTime := time.Duration(float64(wp.baseSleep) * math.Pow(1.5, float64(min(consecutiveNoJobs, 10))))
		if sleepTime > wp.maxSleep {
			sleepTime = wp.maxSleep
		}

		timer := time.NewTimer(sleepTime)
		select {
		case <-timer.C:
		case <-wp.notifyCh:
			consecutiveNoJobs = 0
		case <-wp.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// processNextJob claims one queued job and runs it to completion
func (wp *WorkerPool) processNextJob(ctx context.Context) error {
	job, err := wp.store.ClaimNextJob(ctx)
	if err != nil {
		return err
	}
	return wp.processJob(ctx, job)
}

func (wp *WorkerPool) processJob(ctx context.Context, job *CurationJob) error {
	span := sentry.StartSpan(ctx, "worker.process_job")
	defer span.Finish()
	span.SetTag("job_id", job.ID)

	ctx, otelSpan := observability.StartCurationJobSpan(ctx, observability.CurationJobSpanInfo{
		JobID:    job.ID,
		Products: len(job.AffectedProductIDs),
	})
	defer otelSpan.End()

	start := time.Now()

	products, err := wp.store.JobProducts(ctx, job.ID)
	if err != nil {
		span.SetTag("error", "true")
		return wp.finish(ctx, start, JobResult{
			JobID:        job.ID,
			Status:       JobStatusFailed,
			ErrorMessage: fmt.Sprintf("failed to load products: %v", err),
		})
	}

	results, failures, firstErr := wp.classifyAll(ctx, job.ID, products)

	result := JobResult{JobID: job.ID, Status: JobStatusCompleted, Products: results}
	if failures > 0 && failures == countProcessing(products) {
		result.Status = JobStatusFailed
		result.ErrorMessage = fmt.Sprintf("classification failed for all %d products: %v", failures, firstErr)
	} else if failures > 0 {
		log.Warn().
			Str("job_id", job.ID).
			Int("failed", failures).
			Int("products", len(products)).
			Msg("Some products could not be classified and were returned to pending")
	}

	return wp.finish(ctx, start, result)
}

// classifyAll runs the classifier over every processing product with bounded
// fan-out. Products whose classification fails are released back to pending.
func (wp *WorkerPool) classifyAll(ctx context.Context, jobID string, products []curation.Product) ([]curation.Product, int, error) {
	results := make([]curation.Product, len(products))
	errs := make([]error, len(products))

	var g errgroup.Group
	g.SetLimit(wp.concurrency)
	for i, product := range products {
		g.Go(func() error {
			p := product.Clone()
			if p.Status != curation.StatusProcessing {
				// Someone else moved it on; leave it alone.
				results[i] = p
				return nil
			}

			verdict, err := wp.classifier.Classify(ctx, p)
			if err == nil {
				err = curation.CompleteAI(&p, verdict)
			}
			if err != nil {
				observability.RecordClassification(ctx, "error")
				errs[i] = err
				p = product.Clone()
				if releaseErr := curation.Release(&p); releaseErr != nil {
					log.Error().Err(releaseErr).Str("product_id", p.ID).Msg("Failed to release product")
				}
				log.Debug().Err(err).Str("job_id", jobID).Str("product_id", p.ID).Msg("Classification failed")
			} else {
				observability.RecordClassification(ctx, string(p.Status))
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return results, failures, firstErr
}

func (wp *WorkerPool) finish(ctx context.Context, start time.Time, result JobResult) error {
	// Write back even if the worker is shutting down so the job is not stranded.
	writeCtx := context.WithoutCancel(ctx)
	if err := wp.store.CompleteJob(writeCtx, result); err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("failed to complete job %s: %w", result.JobID, err)
	}

	observability.RecordCurationJob(ctx, observability.CurationJobMetrics{
		JobID:    result.JobID,
		Status:   string(result.Status),
		Products: len(result.Products),
		Duration: time.Since(start),
	})

	wp.refresh()

	log.Info().
		Str("job_id", result.JobID).
		Str("status", string(result.Status)).
		Int("products", len(result.Products)).
		Dur("duration", time.Since(start)).
		Msg("Curation job finished")
	return nil
}

func (wp *WorkerPool) refresh() {
	if wp.refresher == nil {
		return
	}
	wp.refresher.RefreshProducts()
	wp.refresher.RefreshSourceStats()
}

func countProcessing(products []curation.Product) int {
	n := 0
	for _, p := range products {
		if p.Status == curation.StatusProcessing {
			n++
		}
	}
	return n
}
