package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// DbQueue is the PostgreSQL-backed curation job queue. It implements
// jobs.JobStore.
type DbQueue struct {
	db *sql.DB
}

// NewDbQueue creates a PostgreSQL job queue
func NewDbQueue(db *sql.DB) *DbQueue {
	return &DbQueue{
		db: db,
	}
}

// Execute runs a database operation in a transaction
func (q *DbQueue) Execute(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ClaimNextJob moves the oldest queued job to running using row-level
// locking, so concurrent workers never claim the same job.
func (q *DbQueue) ClaimNextJob(ctx context.Context) (*jobs.CurationJob, error) {
	span := sentry.StartSpan(ctx, "db.claim_next_job")
	defer span.Finish()

	var job *jobs.CurationJob
	err := q.Execute(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM curation_jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`).Scan(&id)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE curation_jobs
			SET status = 'running', started_at = NOW()
			WHERE id = $1
			RETURNING `+jobColumns, id)
		job, err = scanJob(row)
		return err
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		span.SetTag("error", "true")
		span.SetData("error.message", err.Error())
		return nil, fmt.Errorf("failed to claim next curation job: %w", err)
	}

	span.SetTag("job_id", job.ID)
	log.Debug().Str("job_id", job.ID).Int("products", len(job.AffectedProductIDs)).Msg("Claimed curation job")
	return job, nil
}
