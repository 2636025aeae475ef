//go:build unit || !integration

package jobs

import (
	"context"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/stretchr/testify/mock"
)

type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) GetJob(ctx context.Context, jobID string) (*CurationJob, error) {
	args := m.Called(ctx, jobID)
	if job := args.Get(0); job != nil {
		return job.(*CurationJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobStore) ClaimNextJob(ctx context.Context) (*CurationJob, error) {
	args := m.Called(ctx)
	if job := args.Get(0); job != nil {
		return job.(*CurationJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobStore) JobProducts(ctx context.Context, jobID string) ([]curation.Product, error) {
	args := m.Called(ctx, jobID)
	if p := args.Get(0); p != nil {
		return p.([]curation.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobStore) CompleteJob(ctx context.Context, result JobResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockJobStore) CancelJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobStore) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, product curation.Product) (curation.Verdict, error) {
	args := m.Called(ctx, product)
	return args.Get(0).(curation.Verdict), args.Error(1)
}

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) RefreshProducts()    { m.Called() }
func (m *MockRefresher) RefreshSourceStats() { m.Called() }
