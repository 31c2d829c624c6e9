package jobstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusValidating, false},
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusCompletedWithErrors, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"validating to pending", StatusValidating, StatusPending, true},
		{"validating to failed", StatusValidating, StatusFailed, true},
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to completed with errors", StatusProcessing, StatusCompletedWithErrors, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"redelivered processing transition", StatusProcessing, StatusProcessing, true},
		{"never backward to pending", StatusProcessing, StatusPending, false},
		{"never backward from completed", StatusCompleted, StatusPending, false},
		{"terminal states are final", StatusFailed, StatusProcessing, false},
		{"terminal to terminal", StatusCompleted, StatusFailed, false},
		{"terminal self write", StatusCompleted, StatusCompleted, false},
		{"unknown status", Status("BOGUS"), StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJobJSONShape(t *testing.T) {
	started, err := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	job := &Job{
		JobID:          "sample",
		Status:         StatusValidating,
		SourceLocation: "s3://uploads-bucket/uploads/sample.csv",
		StartedAt:      started,
		Message:        "Validating CSV structure",
	}

	b, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, "sample", decoded["jobId"])
	assert.Equal(t, "VALIDATING", decoded["status"])

	// Pending jobs expose null terminals, not empty strings.
	assert.Nil(t, decoded["outputPrefix"])
	assert.Nil(t, decoded["finishedAt"])

	// Counts are JSON numbers.
	assert.Equal(t, float64(0), decoded["rowCount"])
	assert.Equal(t, float64(0), decoded["errorCount"])
}

func TestUpdateEmpty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	assert.False(t, Update{Status: StatusPtr(StatusPending)}.Empty())
	assert.False(t, Update{RowCount: IntPtr(0)}.Empty())
}
