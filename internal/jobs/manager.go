package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// JobManager handles curation job lookup and lifecycle management
type JobManager struct {
	store      JobStore
	workerPool *WorkerPool
	refresher  curation.Refresher
}

// NewJobManager creates a new job manager. workerPool may be nil when the
// process only serves reads.
func NewJobManager(store JobStore, workerPool *WorkerPool, refresher curation.Refresher) *JobManager {
	return &JobManager{
		store:      store,
		workerPool: workerPool,
		refresher:  refresher,
	}
}

// GetJob retrieves a job by ID
func (jm *JobManager) GetJob(ctx context.Context, jobID string) (*CurationJob, error) {
	span := sentry.StartSpan(ctx, "manager.get_job")
	defer span.Finish()

	span.SetTag("job_id", jobID)

	job, err := jm.store.GetJob(ctx, jobID)
	if err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// JobQueued wakes the worker pool for a job that was just created
func (jm *JobManager) JobQueued(jobID string) {
	log.Debug().Str("job_id", jobID).Msg("Curation job queued")
	if jm.workerPool != nil {
		jm.workerPool.Notify()
	}
}

// CancelJob cancels a queued job and hands its products back to pending.
// Running jobs are left to finish.
func (jm *JobManager) CancelJob(ctx context.Context, jobID string) error {
	span := sentry.StartSpan(ctx, "manager.cancel_job")
	defer span.Finish()

	span.SetTag("job_id", jobID)

	job, err := jm.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != JobStatusQueued {
		return fmt.Errorf("%w: job %s is %s and cannot be cancelled", apperr.ErrIllegalTransition, jobID, job.Status)
	}

	if err := jm.store.CancelJob(ctx, jobID); err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		sentry.CaptureException(err)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	jm.refresh()

	log.Info().
		Str("job_id", jobID).
		Int("products", len(job.AffectedProductIDs)).
		Msg("Cancelled curation job")

	return nil
}

// SweepStaleJobs fails jobs that have been running longer than olderThan
func (jm *JobManager) SweepStaleJobs(ctx context.Context, olderThan time.Duration) error {
	span := sentry.StartSpan(ctx, "manager.sweep_stale_jobs")
	defer span.Finish()

	if olderThan <= 0 {
		olderThan = StaleJobTimeout
	}

	swept, err := jm.store.FailStaleJobs(ctx, olderThan)
	if err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		return fmt.Errorf("failed to sweep stale jobs: %w", err)
	}

	if swept > 0 {
		log.Warn().
			Int64("jobs_failed", swept).
			Dur("older_than", olderThan).
			Msg("Failed stale curation jobs")
		jm.refresh()
	}

	return nil
}

func (jm *JobManager) refresh() {
	if jm.refresher == nil {
		return
	}
	jm.refresher.RefreshProducts()
	jm.refresher.RefreshSourceStats()
}
