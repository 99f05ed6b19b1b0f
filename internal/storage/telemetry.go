package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stickervault/internal/models"
)

// AppendProcessingLog inserts one immutable processing record. There is no
// update or delete counterpart.
func (s *Storage) AppendProcessingLog(ctx context.Context, e *models.ProcessingLogEntry) error {
	const op = "storage.AppendProcessingLog"

	if e.EndedAt.Before(e.StartedAt) {
		return fmt.Errorf("%s: %w", op, models.Validationf("processing ended before it started"))
	}
	e.Duration = e.EndedAt.Sub(e.StartedAt).Milliseconds()
	if e.MediaType == "" {
		e.MediaType = "unknown"
	}

	var mediaID any
	if e.MediaID != nil {
		mediaID = *e.MediaID
	}
	err := s.queryRow(ctx, s.db,
		`INSERT INTO processing_log (media_id, started_at, finished_at, duration_ms, media_type, file_size_bytes, success, verdict)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		mediaID, toMillis(e.StartedAt), toMillis(e.EndedAt), e.Duration, e.MediaType, e.FileSize, e.Success, string(e.Verdict)).
		Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ProcessingStats aggregates the log entries finished at or after since.
func (s *Storage) ProcessingStats(ctx context.Context, since time.Time) (models.ProcessingStats, error) {
	const op = "storage.ProcessingStats"

	var stats models.ProcessingStats
	var avg *float64
	err := s.queryRow(ctx, s.db,
		`SELECT COUNT(*),
		        CAST(COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS BIGINT),
		        CAST(AVG(CASE WHEN success THEN duration_ms END) AS DOUBLE PRECISION),
		        CAST(COALESCE(SUM(CASE WHEN success THEN file_size_bytes ELSE 0 END), 0) AS BIGINT)
		 FROM processing_log WHERE finished_at >= ?`, toMillis(since)).
		Scan(&stats.Attempts, &stats.Succeeded, &avg, &stats.TotalBytes)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	stats.Failed = stats.Attempts - stats.Succeeded
	if avg != nil {
		stats.AvgDurationMS = *avg
	}
	return stats, nil
}

// RecentProcessing returns the newest log entries first.
func (s *Storage) RecentProcessing(ctx context.Context, limit int) ([]models.ProcessingLogEntry, error) {
	const op = "storage.RecentProcessing"
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.query(ctx, s.db,
		`SELECT id, media_id, started_at, finished_at, duration_ms, media_type, file_size_bytes, success, verdict
		 FROM processing_log ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.ProcessingLogEntry
	for rows.Next() {
		var (
			e              models.ProcessingLogEntry
			mediaID        *string
			started, ended int64
			verdict        string
		)
		if err := rows.Scan(&e.ID, &mediaID, &started, &ended, &e.Duration, &e.MediaType, &e.FileSize, &e.Success, &verdict); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if mediaID != nil {
			if id, err := uuid.Parse(*mediaID); err == nil {
				e.MediaID = &id
			}
		}
		e.StartedAt = fromMillis(started)
		e.EndedAt = fromMillis(ended)
		e.Verdict = models.Verdict(verdict)
		out = append(out, e)
	}
	return out, rows.Err()
}
