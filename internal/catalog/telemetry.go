package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickervault/internal/metrics"
	"stickervault/internal/models"
)

type LogWriter interface {
	AppendProcessingLog(ctx context.Context, e *models.ProcessingLogEntry) error
}

// Attempt describes one processing run, successful or not.
type Attempt struct {
	MediaID   *uuid.UUID
	StartedAt time.Time
	EndedAt   time.Time
	MediaType string
	FileSize  int64
	Success   bool
	Verdict   models.Verdict
}

// Recorder appends processing log rows. A failed write is logged and counted
// but never reaches the caller.
type Recorder struct {
	store LogWriter
	log   zerolog.Logger
}

func NewRecorder(store LogWriter, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log.With().Str("component", "telemetry").Logger()}
}

func (r *Recorder) Record(ctx context.Context, a Attempt) {
	entry := &models.ProcessingLogEntry{
		MediaID:   a.MediaID,
		StartedAt: a.StartedAt,
		EndedAt:   a.EndedAt,
		MediaType: a.MediaType,
		FileSize:  a.FileSize,
		Success:   a.Success,
		Verdict:   a.Verdict,
	}
	// the row is written even when the request that produced it was cancelled
	if err := r.store.AppendProcessingLog(context.WithoutCancel(ctx), entry); err != nil {
		metrics.TelemetryFailuresTotal.Inc()
		r.log.Warn().Err(err).Str("verdict", string(a.Verdict)).Msg("processing log write failed")
	}
}
