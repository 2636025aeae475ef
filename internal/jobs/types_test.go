//go:build unit || !integration

package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusQueued, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestCurationJob_JSON(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	job := CurationJob{
		ID:                 "job-1",
		Status:             JobStatusRunning,
		AffectedProductIDs: []string{"p1", "p2"},
		CreatedAt:          started.Add(-time.Minute),
		StartedAt:          &started,
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, "running", fields["status"])
	assert.NotContains(t, fields, "completed_at")
	assert.NotContains(t, fields, "error_message")
	assert.NotContains(t, fields, "curation_notes")
}
