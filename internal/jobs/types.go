package jobs

import (
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
)

// JobStatus represents the current status of a curation job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const (
	// StaleJobTimeout is how long a job may stay running before the sweeper fails it
	StaleJobTimeout = 10 * time.Minute

	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 300 * time.Second
)

// CurationJob is a background unit of work over a set of products
type CurationJob struct {
	ID                 string     `json:"job_id"`
	Status             JobStatus  `json:"status"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	AffectedProductIDs []string   `json:"affected_product_ids"`
	Notes              *string    `json:"curation_notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// JobResult is what a worker writes back when it finishes a job. Products
// carry their post-transition state.
type JobResult struct {
	JobID        string
	Status       JobStatus
	ErrorMessage string
	Products     []curation.Product
}
