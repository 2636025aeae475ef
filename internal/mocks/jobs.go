package mocks

import (
	"context"

	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/stretchr/testify/mock"
)

// MockJobManager is a mock implementation of the curation job manager
type MockJobManager struct {
	mock.Mock
}

// GetJob mocks a job lookup
func (m *MockJobManager) GetJob(ctx context.Context, jobID string) (*jobs.CurationJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.CurationJob), args.Error(1)
}

// CancelJob mocks cancelling a queued job
func (m *MockJobManager) CancelJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// JobQueued records the worker wake-up
func (m *MockJobManager) JobQueued(jobID string) {
	m.Called(jobID)
}
