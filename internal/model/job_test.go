package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status JobStatus
		want   string
	}{
		{JobStatusPending, "pending"},
		{JobStatusInProgress, "in_progress"},
		{JobStatusCompleted, "completed"},
		{JobStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestJobStatus_CanTransition(t *testing.T) {
	t.Parallel()

	all := []JobStatus{JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed}
	allowed := map[[2]JobStatus]bool{
		{JobStatusPending, JobStatusInProgress}:   true,
		{JobStatusPending, JobStatusFailed}:       true,
		{JobStatusInProgress, JobStatusCompleted}: true,
		{JobStatusInProgress, JobStatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]JobStatus{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusInProgress.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	got, err := ParseStrategy(" Wholesale ")
	require.NoError(t, err)
	assert.Equal(t, StrategyWholesale, got)

	_, err = ParseStrategy("buy-and-hold")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStrategy))
}

func TestParseRehabTier(t *testing.T) {
	t.Parallel()

	got, err := ParseRehabTier("HEAVY")
	require.NoError(t, err)
	assert.Equal(t, RehabHeavy, got)

	_, err = ParseRehabTier("gut")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRehabTier))
}

func TestParseJobStatus(t *testing.T) {
	t.Parallel()

	got, err := ParseJobStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got)

	_, err = ParseJobStatus("queued")
	assert.Error(t, err)
}
