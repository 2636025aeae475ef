package curation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProducts(ctx context.Context, ids []string) ([]Product, error) {
	args := m.Called(ctx, ids)
	if p := args.Get(0); p != nil {
		return p.([]Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SaveTransitions(ctx context.Context, action Action, transitions []Transition) (*BatchReceipt, error) {
	args := m.Called(ctx, action, transitions)
	if r := args.Get(0); r != nil {
		return r.(*BatchReceipt), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) DeleteProducts(ctx context.Context, ids []string) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) DispatchToAI(ctx context.Context, products []Product, notes *string) (*DispatchReceipt, error) {
	args := m.Called(ctx, products, notes)
	if r := args.Get(0); r != nil {
		return r.(*DispatchReceipt), args.Error(1)
	}
	return nil, args.Error(1)
}

type countingRefresher struct {
	products int
	stats    int
}

func (r *countingRefresher) RefreshProducts()    { r.products++ }
func (r *countingRefresher) RefreshSourceStats() { r.stats++ }

func TestCoordinator_EmptyIDsTouchesNothing(t *testing.T) {
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	for _, ids := range [][]string{nil, {}, {"", "  "}} {
		out, err := c.Apply(context.Background(), ActionApprove, ids, Payload{})
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	}

	store.AssertNotCalled(t, "GetProducts", mock.Anything, mock.Anything)
	assert.Zero(t, refresher.products)
}

func TestCoordinator_BulkApprovePartialFailure(t *testing.T) {
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	p1 := Product{ID: "p1", Status: StatusPublished, Brand: "Nike", Category: "Shoes"}
	p2 := Product{ID: "p2", Status: StatusCurated, Brand: "Nike", Category: "Shoes"}
	store.On("GetProducts", mock.Anything, []string{"p1", "p2"}).Return([]Product{p1, p2}, nil)
	store.On("SaveTransitions", mock.Anything, ActionApprove, mock.MatchedBy(func(ts []Transition) bool {
		return len(ts) == 1 && ts[0].Product.ID == "p2" && ts[0].Product.Status == StatusPublished && ts[0].From == StatusCurated
	})).Return(&BatchReceipt{Saved: 1}, nil)

	out, err := c.Apply(context.Background(), ActionApprove, []string{"p1", "p2"}, Payload{})

	require.NoError(t, err)
	require.NotNil(t, out.Sync)
	assert.Nil(t, out.Job)
	assert.Equal(t, SyncResult{Successful: 1, Failed: 1}, *out.Sync)
	assert.Equal(t, StatusPublished, p1.Status, "p1 unchanged")
	assert.Equal(t, 1, refresher.products)
	assert.Equal(t, 1, refresher.stats)
	store.AssertExpectations(t)
}

func TestCoordinator_AllIllegalSkipsSave(t *testing.T) {
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	store.On("GetProducts", mock.Anything, []string{"p1", "missing"}).
		Return([]Product{{ID: "p1", Status: StatusRejected}}, nil)

	out, err := c.Apply(context.Background(), ActionReject, []string{"p1", "missing", "p1"}, Payload{})

	require.NoError(t, err)
	assert.Equal(t, SyncResult{Successful: 0, Failed: 2}, *out.Sync)
	store.AssertNotCalled(t, "SaveTransitions", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, refresher.products)
}

func TestCoordinator_AsyncReceiptReturnsHandle(t *testing.T) {
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{{ID: "p1", Status: StatusPending}}, nil)
	store.On("SaveTransitions", mock.Anything, ActionChangeBrand, mock.Anything).Return(&BatchReceipt{JobID: "job-7"}, nil)

	out, err := c.Apply(context.Background(), ActionChangeBrand, []string{"p1"}, Payload{Brand: "Nike"})

	require.NoError(t, err)
	require.NotNil(t, out.Job)
	assert.Equal(t, "job-7", out.Job.JobID)
	assert.Nil(t, out.Sync)
	assert.Zero(t, refresher.products, "refresh waits for the job")
}

func TestCoordinator_ChangeBrandRequiresBrand(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)

	_, err := c.Apply(context.Background(), ActionChangeBrand, []string{"p1"}, Payload{})

	assert.True(t, errors.Is(err, apperr.ErrValidation))
	store.AssertNotCalled(t, "GetProducts", mock.Anything, mock.Anything)
}

func TestCoordinator_NonBulkActionRejected(t *testing.T) {
	c := NewCoordinator(&mockStore{}, nil, 0)
	_, err := c.Apply(context.Background(), ActionRestore, []string{"p1"}, Payload{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCoordinator_SendToAIReturnsJobHandle(t *testing.T) {
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	store.On("GetProducts", mock.Anything, []string{"p1", "p2"}).Return([]Product{
		{ID: "p1", Status: StatusPending},
		{ID: "p2", Status: StatusCurated},
	}, nil)
	store.On("DispatchToAI", mock.Anything, mock.MatchedBy(func(ps []Product) bool {
		return len(ps) == 1 && ps[0].ID == "p1" && ps[0].Status == StatusProcessing
	}), (*string)(nil)).Return(&DispatchReceipt{JobID: "job-1", ProductIDs: []string{"p1"}}, nil)

	out, err := c.Apply(context.Background(), ActionSendToAI, []string{"p1", "p2"}, Payload{})

	require.NoError(t, err)
	require.NotNil(t, out.Job)
	assert.Equal(t, JobHandle{JobID: "job-1", ProductIDs: []string{"p1"}, Skipped: 1}, *out.Job)
	assert.Equal(t, 1, refresher.products)
	assert.Equal(t, 1, refresher.stats)
}

func TestCoordinator_SendToAIHandleListsMovedProducts(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)

	store.On("GetProducts", mock.Anything, []string{"p1", "p2", "p3"}).Return([]Product{
		{ID: "p1", Status: StatusPending},
		{ID: "p2", Status: StatusPending},
		{ID: "p3", Status: StatusRejected},
	}, nil)
	// p2 was dispatched by someone else between load and dispatch.
	store.On("DispatchToAI", mock.Anything, mock.Anything, (*string)(nil)).
		Return(&DispatchReceipt{JobID: "job-2", ProductIDs: []string{"p1"}}, nil)

	out, err := c.Apply(context.Background(), ActionSendToAI, []string{"p1", "p2", "p3"}, Payload{})

	require.NoError(t, err)
	require.NotNil(t, out.Job)
	assert.Equal(t, JobHandle{JobID: "job-2", ProductIDs: []string{"p1"}, Skipped: 2}, *out.Job)
}

func TestCoordinator_StaleSaveCountsAsFailed(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)

	store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{
		{ID: "p1", Status: StatusCurated, Brand: "Acme", Category: "Shoes"},
	}, nil)
	store.On("SaveTransitions", mock.Anything, ActionApprove, mock.Anything).Return(&BatchReceipt{Saved: 0}, nil)

	out, err := c.Apply(context.Background(), ActionApprove, []string{"p1"}, Payload{})

	require.NoError(t, err)
	assert.Equal(t, SyncResult{Successful: 0, Failed: 1}, *out.Sync)
}

func TestCoordinator_StoreErrorPropagates(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)
	store.On("GetProducts", mock.Anything, []string{"p1"}).Return(nil, errors.New("connection reset"))

	_, err := c.Apply(context.Background(), ActionApprove, []string{"p1"}, Payload{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCoordinator_DeleteNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	_, err := c.Apply(ctx, ActionDelete, []string{"p1"}, Payload{})
	assert.True(t, errors.Is(err, apperr.ErrConfirmationRequired))

	_, err = c.Apply(ctx, ActionDelete, []string{"p1"}, Payload{ConfirmationToken: "made-up"})
	assert.True(t, errors.Is(err, apperr.ErrConfirmationRequired))

	store.AssertNotCalled(t, "GetProducts", mock.Anything, mock.Anything)

	token, err := c.RequestConfirmation([]string{"p2", "p1"})
	require.NoError(t, err)

	store.On("GetProducts", mock.Anything, []string{"p1", "p2"}).Return([]Product{
		{ID: "p1", Status: StatusRejected},
		{ID: "p2", Status: StatusPublished},
	}, nil)
	store.On("DeleteProducts", mock.Anything, []string{"p1"}).Return(1, nil)

	out, err := c.Apply(ctx, ActionDelete, []string{"p1", "p2"}, Payload{ConfirmationToken: token})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Successful: 1, Failed: 1}, *out.Sync)
	assert.Equal(t, 1, refresher.products)

	_, err = c.Apply(ctx, ActionDelete, []string{"p1", "p2"}, Payload{ConfirmationToken: token})
	assert.True(t, errors.Is(err, apperr.ErrConfirmationRequired), "tokens are single use")
}

func TestCoordinator_DeleteTokenSurvivesFailedLoad(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)

	token, err := c.RequestConfirmation([]string{"p1"})
	require.NoError(t, err)

	store.On("GetProducts", mock.Anything, []string{"p1"}).Return(nil, errors.New("connection reset")).Once()
	_, err = c.Apply(ctx, ActionDelete, []string{"p1"}, Payload{ConfirmationToken: token})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrConfirmationRequired))

	store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{{ID: "p1", Status: StatusPending}}, nil).Once()
	store.On("DeleteProducts", mock.Anything, []string{"p1"}).Return(1, nil).Once()
	out, err := c.Apply(ctx, ActionDelete, []string{"p1"}, Payload{ConfirmationToken: token})
	require.NoError(t, err, "the same token still works after the failed read")
	assert.Equal(t, SyncResult{Successful: 1}, *out.Sync)

	_, err = c.Apply(ctx, ActionDelete, []string{"p1"}, Payload{ConfirmationToken: token})
	assert.True(t, errors.Is(err, apperr.ErrConfirmationRequired), "spent once the delete ran")
}

func TestCoordinator_ConfirmationBoundToSelection(t *testing.T) {
	c := NewCoordinator(&mockStore{}, nil, 0)

	token, err := c.RequestConfirmation([]string{"p1"})
	require.NoError(t, err)

	_, err = c.Apply(context.Background(), ActionDelete, []string{"p1", "p2"}, Payload{ConfirmationToken: token})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfirmationRequired))
	assert.Contains(t, err.Error(), "different selection")
}

func TestCoordinator_ConfirmationExpires(t *testing.T) {
	c := NewCoordinator(&mockStore{}, nil, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	token, err := c.RequestConfirmation([]string{"p1"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Apply(context.Background(), ActionDelete, []string{"p1"}, Payload{ConfirmationToken: token})
	assert.True(t, errors.Is(err, apperr.ErrConfirmationRequired))

	_, err = c.RequestConfirmation(nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCoordinator_InFlightGuard(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	store.On("GetProducts", mock.Anything, []string{"p1", "p2"}).
		Run(func(mock.Arguments) {
			close(entered)
			<-unblock
		}).
		Return([]Product{}, nil).Once()
	store.On("GetProducts", mock.Anything, []string{"p3"}).Return([]Product{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Apply(context.Background(), ActionReject, []string{"p1", "p2"}, Payload{})
		done <- err
	}()
	<-entered

	_, err := c.Apply(context.Background(), ActionApprove, []string{"p2"}, Payload{})
	assert.True(t, errors.Is(err, apperr.ErrActionInFlight))

	_, err = c.Apply(context.Background(), ActionApprove, []string{"p3"}, Payload{})
	assert.NoError(t, err, "disjoint ids are not blocked")

	close(unblock)
	require.NoError(t, <-done)

	store.On("GetProducts", mock.Anything, []string{"p2"}).Return([]Product{}, nil)
	_, err = c.Apply(context.Background(), ActionApprove, []string{"p2"}, Payload{})
	assert.NoError(t, err, "guard released after the first batch")
}

func TestCoordinator_TransitionSingle(t *testing.T) {
	store := &mockStore{}
	refresher := &countingRefresher{}
	c := NewCoordinator(store, refresher, 0)

	store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{{ID: "p1", Status: StatusRejected}}, nil)
	store.On("SaveTransitions", mock.Anything, ActionRestore, mock.MatchedBy(func(ts []Transition) bool {
		return len(ts) == 1 && ts[0].Product.Status == StatusPending && ts[0].From == StatusRejected
	})).Return(&BatchReceipt{Saved: 1}, nil)

	out, err := c.Transition(context.Background(), "p1", ActionRestore, Payload{})

	require.NoError(t, err)
	assert.Equal(t, SyncResult{Successful: 1}, *out.Sync)
	assert.Equal(t, 1, refresher.stats)
}

func TestCoordinator_TransitionIllegalIsReturned(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)
	store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{{ID: "p1", Status: StatusPending}}, nil)

	_, err := c.Transition(context.Background(), "p1", ActionApprove, Payload{})

	assert.True(t, errors.Is(err, apperr.ErrIllegalTransition))
	store.AssertNotCalled(t, "SaveTransitions", mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_TransitionNotFound(t *testing.T) {
	store := &mockStore{}
	c := NewCoordinator(store, nil, 0)
	store.On("GetProducts", mock.Anything, []string{"ghost"}).Return([]Product{}, nil)

	_, err := c.Transition(context.Background(), "ghost", ActionReject, Payload{})

	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCoordinator_TransitionTo(t *testing.T) {
	t.Run("picks the action from the current status", func(t *testing.T) {
		store := &mockStore{}
		c := NewCoordinator(store, nil, 0)
		store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{{ID: "p1", Status: StatusCurated, Brand: "Acme", Category: "Shoes"}}, nil)
		store.On("SaveTransitions", mock.Anything, ActionApprove, mock.Anything).Return(&BatchReceipt{Saved: 1}, nil)

		_, err := c.TransitionTo(context.Background(), "p1", StatusPublished, Payload{})

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("unreachable target", func(t *testing.T) {
		store := &mockStore{}
		c := NewCoordinator(store, nil, 0)
		store.On("GetProducts", mock.Anything, []string{"p1"}).Return([]Product{{ID: "p1", Status: StatusPublished}}, nil)

		_, err := c.TransitionTo(context.Background(), "p1", StatusPending, Payload{})

		var illegal *IllegalTransitionError
		require.ErrorAs(t, err, &illegal)
		assert.Equal(t, StatusPublished, illegal.From)
	})

	t.Run("unknown status", func(t *testing.T) {
		c := NewCoordinator(&mockStore{}, nil, 0)
		_, err := c.TransitionTo(context.Background(), "p1", Status("archived"), Payload{})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
