package mocks

import (
	"context"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/stretchr/testify/mock"
)

// MockCoordinator is a mock implementation of the curation coordinator
type MockCoordinator struct {
	mock.Mock
}

// Apply mocks a bulk action
func (m *MockCoordinator) Apply(ctx context.Context, action curation.Action, productIDs []string, payload curation.Payload) (*curation.Outcome, error) {
	args := m.Called(ctx, action, productIDs, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*curation.Outcome), args.Error(1)
}

// TransitionTo mocks a single product status change
func (m *MockCoordinator) TransitionTo(ctx context.Context, productID string, target curation.Status, payload curation.Payload) (*curation.Outcome, error) {
	args := m.Called(ctx, productID, target, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*curation.Outcome), args.Error(1)
}

// RequestConfirmation mocks issuing a delete confirmation token
func (m *MockCoordinator) RequestConfirmation(productIDs []string) (string, error) {
	args := m.Called(productIDs)
	return args.String(0), args.Error(1)
}
