package jobs

import (
	"context"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
)

// JobStore defines the persistence operations the manager and worker pool need
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*CurationJob, error)
	// ClaimNextJob moves the oldest queued job to running. It returns
	// sql.ErrNoRows when nothing is queued.
	ClaimNextJob(ctx context.Context) (*CurationJob, error)
	JobProducts(ctx context.Context, jobID string) ([]curation.Product, error)
	CompleteJob(ctx context.Context, result JobResult) error
	CancelJob(ctx context.Context, jobID string) error
	FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Classifier decides the AI verdict for a single product
type Classifier interface {
	Classify(ctx context.Context, product curation.Product) (curation.Verdict, error)
}

// StatusFetcher is anything that can report a job's current state
type StatusFetcher interface {
	GetJob(ctx context.Context, jobID string) (*CurationJob, error)
}
