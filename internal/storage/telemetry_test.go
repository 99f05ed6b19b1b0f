package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickervault/internal/models"
)

func TestAppendProcessingLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()

	ok := &models.ProcessingLogEntry{
		MediaID:   &id,
		StartedAt: start,
		EndedAt:   start.Add(250 * time.Millisecond),
		MediaType: "image/webp",
		FileSize:  1000,
		Success:   true,
		Verdict:   models.VerdictNovel,
	}
	require.NoError(t, s.AppendProcessingLog(ctx, ok))
	assert.NotZero(t, ok.ID)
	assert.Equal(t, int64(250), ok.Duration)

	failed := &models.ProcessingLogEntry{
		StartedAt: start,
		EndedAt:   start.Add(50 * time.Millisecond),
		FileSize:  10,
		Verdict:   models.VerdictRejected,
	}
	require.NoError(t, s.AppendProcessingLog(ctx, failed))

	bad := &models.ProcessingLogEntry{StartedAt: start, EndedAt: start.Add(-time.Second)}
	assert.ErrorIs(t, s.AppendProcessingLog(ctx, bad), models.ErrValidation)

	stats, err := s.ProcessingStats(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Attempts)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.InDelta(t, 250, stats.AvgDurationMS, 0.001)
	assert.Equal(t, int64(1000), stats.TotalBytes)

	recent, err := s.RecentProcessing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "unknown", recent[0].MediaType)
	assert.Nil(t, recent[0].MediaID)
	require.NotNil(t, recent[1].MediaID)
	assert.Equal(t, id, *recent[1].MediaID)
}

func TestProcessingStatsEmpty(t *testing.T) {
	s := newTestStorage(t)
	stats, err := s.ProcessingStats(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, stats.Attempts)
	assert.Zero(t, stats.AvgDurationMS)
}
