package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productA = "8f2b8e3c-1a7d-4c55-9a41-3a6f0b5e1c01"
	productB = "1c9d4f70-2b3e-4d8a-8e55-7f0a9b6c2d02"
	jobA     = "c0a8012e-5d6f-4b7a-9c1d-2e3f4a5b6c7d"
)

var jobCols = []string{"id", "status", "error_message", "affected_product_ids", "curation_notes",
	"created_at", "started_at", "completed_at"}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewWithClient(sqlDB, &Config{}), mock
}

func TestDbQueueExecute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		fn        func(*sql.Tx) error
		errMsg    string
	}{
		{
			name: "successful transaction",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
			fn: func(*sql.Tx) error { return nil },
		},
		{
			name: "begin transaction fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("connection lost"))
			},
			fn:     func(*sql.Tx) error { return nil },
			errMsg: "failed to begin transaction",
		},
		{
			name: "function error rolls back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn:     func(*sql.Tx) error { return errors.New("operation failed") },
			errMsg: "operation failed",
		},
		{
			name: "commit fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(errors.New("commit failed"))
			},
			fn:     func(*sql.Tx) error { return nil },
			errMsg: "failed to commit transaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer sqlDB.Close()

			tt.setupMock(mock)
			err = NewDbQueue(sqlDB).Execute(context.Background(), tt.fn)

			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClaimNextJob(t *testing.T) {
	t.Run("claims oldest queued job", func(t *testing.T) {
		db, mock := newMockDB(t)
		created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		started := created.Add(time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(jobA))
		mock.ExpectQuery(regexp.QuoteMeta("SET status = 'running', started_at = NOW()")).
			WithArgs(jobA).
			WillReturnRows(sqlmock.NewRows(jobCols).
				AddRow(jobA, "running", "", "{"+productA+","+productB+"}", "check brands", created, started, nil))
		mock.ExpectCommit()

		job, err := db.Queue().ClaimNextJob(context.Background())

		require.NoError(t, err)
		assert.Equal(t, jobs.JobStatusRunning, job.Status)
		assert.Equal(t, []string{productA, productB}, job.AffectedProductIDs)
		require.NotNil(t, job.Notes)
		assert.Equal(t, "check brands", *job.Notes)
		require.NotNil(t, job.StartedAt)
		assert.Equal(t, started, *job.StartedAt)
		assert.Nil(t, job.CompletedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing queued", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		job, err := db.Queue().ClaimNextJob(context.Background())

		assert.Nil(t, job)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
