package mocks

import (
	"context"

	"github.com/Harvey-AU/catalog-backoffice/internal/db"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
	"github.com/stretchr/testify/mock"
)

// MockDB is a mock implementation of the category and product stores
type MockDB struct {
	mock.Mock
}

// Ping mocks the database reachability check
func (m *MockDB) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ListCategories mocks the paginated category listing
func (m *MockDB) ListCategories(ctx context.Context, params db.CategoryListParams) (*db.CategoryPage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.CategoryPage), args.Error(1)
}

// AllCategories mocks loading every category
func (m *MockDB) AllCategories(ctx context.Context) ([]taxonomy.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]taxonomy.Category), args.Error(1)
}

// GetCategory mocks a single category lookup
func (m *MockDB) GetCategory(ctx context.Context, id int64) (*taxonomy.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*taxonomy.Category), args.Error(1)
}

// CreateCategory mocks category creation
func (m *MockDB) CreateCategory(ctx context.Context, in db.CategoryInput) (*taxonomy.Category, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*taxonomy.Category), args.Error(1)
}

// UpdateCategory mocks category updates
func (m *MockDB) UpdateCategory(ctx context.Context, id int64, in db.CategoryInput) (*taxonomy.Category, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*taxonomy.Category), args.Error(1)
}

// DeleteCategory mocks category deletion
func (m *MockDB) DeleteCategory(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ListProducts mocks the filtered product listing
func (m *MockDB) ListProducts(ctx context.Context, c filter.Criteria) (*db.ProductPage, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.ProductPage), args.Error(1)
}

// SourceStats mocks the per-source status counts
func (m *MockDB) SourceStats(ctx context.Context) ([]db.SourceStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.SourceStats), args.Error(1)
}
