package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/getsentry/sentry-go"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const jobColumns = `id, status, COALESCE(error_message, ''), affected_product_ids, curation_notes,
	created_at, started_at, completed_at`

const cancelledMessage = "cancelled before processing started"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.CurationJob, error) {
	var job jobs.CurationJob
	var status string
	var notes sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &status, &job.ErrorMessage, pq.Array(&job.AffectedProductIDs), &notes,
		&job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.JobStatus(status)
	if notes.Valid {
		job.Notes = &notes.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// enqueueJob inserts a queued job inside an existing transaction
func enqueueJob(ctx context.Context, tx *sql.Tx, jobID string, productIDs []string, notes *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO curation_jobs (id, status, affected_product_ids, curation_notes, created_at)
		VALUES ($1, 'queued', $2, $3, NOW())
	`, jobID, pq.Array(productIDs), notes)
	if err != nil {
		return fmt.Errorf("failed to insert curation job: %w", err)
	}
	return nil
}

// releaseJobProducts hands any product of the job still in processing back to pending
func releaseJobProducts(ctx context.Context, tx *sql.Tx, jobID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE scraped_products
		SET status = 'pending'
		WHERE status = 'processing'
		  AND id = ANY(SELECT unnest(affected_product_ids) FROM curation_jobs WHERE id = $1)
	`, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to release products of job %s: %w", jobID, err)
	}
	return result.RowsAffected()
}

// GetJob retrieves a curation job by ID
func (q *DbQueue) GetJob(ctx context.Context, jobID string) (*jobs.CurationJob, error) {
	if len(validUUIDs([]string{jobID})) == 0 {
		return nil, fmt.Errorf("curation job %s: %w", jobID, apperr.ErrNotFound)
	}
	row := q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM curation_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("curation job %s: %w", jobID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get curation job: %w", err)
	}
	return job, nil
}

// JobProducts loads the products a job was created for
func (q *DbQueue) JobProducts(ctx context.Context, jobID string) ([]curation.Product, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM scraped_products
		WHERE id = ANY(SELECT unnest(affected_product_ids) FROM curation_jobs WHERE id = $1)
		ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products of job %s: %w", jobID, err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// CompleteJob writes the worker's product decisions and the job's final
// status in one transaction. Products left in processing are released.
func (q *DbQueue) CompleteJob(ctx context.Context, result jobs.JobResult) error {
	span := sentry.StartSpan(ctx, "db.complete_job")
	defer span.Finish()
	span.SetTag("job_id", result.JobID)
	span.SetTag("status", string(result.Status))

	err := q.Execute(ctx, func(tx *sql.Tx) error {
		for i := range result.Products {
			p := &result.Products[i]
			if p.Status == curation.StatusProcessing {
				continue
			}
			if _, err := writeProductState(ctx, tx, p, curation.StatusProcessing); err != nil {
				return err
			}
		}

		released, err := releaseJobProducts(ctx, tx, result.JobID)
		if err != nil {
			return err
		}
		if released > 0 {
			log.Debug().Str("job_id", result.JobID).Int64("released", released).Msg("Released unclassified products")
		}

		var errMsg *string
		if result.ErrorMessage != "" {
			errMsg = &result.ErrorMessage
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE curation_jobs
			SET status = $2, error_message = $3, completed_at = NOW()
			WHERE id = $1
		`, result.JobID, string(result.Status), errMsg)
		if err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("curation job %s: %w", result.JobID, apperr.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		return err
	}
	return nil
}

// CancelJob fails a queued job and releases its products
func (q *DbQueue) CancelJob(ctx context.Context, jobID string) error {
	return q.Execute(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE curation_jobs
			SET status = 'failed', error_message = $2, completed_at = NOW()
			WHERE id = $1 AND status = 'queued'
		`, jobID, cancelledMessage)
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("curation job %s is no longer queued: %w", jobID, apperr.ErrIllegalTransition)
		}
		_, err = releaseJobProducts(ctx, tx, jobID)
		return err
	})
}

// FailStaleJobs fails running jobs that started before now-olderThan and
// releases their products
func (q *DbQueue) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	var swept int64
	err := q.Execute(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE curation_jobs
			SET status = 'failed',
				error_message = $2,
				completed_at = NOW()
			WHERE status = 'running'
			  AND started_at < NOW() - make_interval(secs => $1)
			RETURNING id
		`, olderThan.Seconds(), fmt.Sprintf("job did not finish within %s", olderThan))
		if err != nil {
			return fmt.Errorf("failed to fail stale jobs: %w", err)
		}

		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan stale job id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate stale jobs: %w", err)
		}

		for _, id := range ids {
			if _, err := releaseJobProducts(ctx, tx, id); err != nil {
				return err
			}
			log.Warn().Str("job_id", id).Dur("older_than", olderThan).Msg("Failed stale curation job")
		}
		swept = int64(len(ids))
		return nil
	})
	return swept, err
}

var _ jobs.JobStore = (*DbQueue)(nil)
