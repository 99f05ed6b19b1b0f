// Package catalog holds the workflows that sit on top of the store: ingest,
// pack curation, moderation votes and processing telemetry.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickervault/internal/blobstore"
	"stickervault/internal/events"
	"stickervault/internal/hashing"
	"stickervault/internal/metrics"
	"stickervault/internal/models"
	"stickervault/internal/sanitize"
	"stickervault/internal/tags"
)

type IngestStore interface {
	FindByMD5(ctx context.Context, hash string) (*models.Media, error)
	NearestVisual(ctx context.Context, hash string) (*hashing.Match, error)
	InsertMedia(ctx context.Context, m *models.Media, tagNames []string) error
}

type Ingester struct {
	store     IngestStore
	blobs     blobstore.Store
	publisher events.Publisher
	recorder  *Recorder
	sanitizer *sanitize.Sanitizer
	policy    hashing.Policy
	minBytes  int
	maxBytes  int64
	log       zerolog.Logger
}

func NewIngester(store IngestStore, blobs blobstore.Store, publisher events.Publisher, recorder *Recorder, cfg models.Config, log zerolog.Logger) *Ingester {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Ingester{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		recorder:  recorder,
		sanitizer: sanitize.New(),
		policy: hashing.Policy{
			Threshold: cfg.Dedup.VisualThreshold,
			AllowNear: cfg.Dedup.AllowNearDuplicates,
		},
		minBytes: cfg.Ingest.MinBytes,
		maxBytes: cfg.Ingest.MaxBytes,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest runs one payload through sanitize, fingerprint, dedup, blob write
// and insert. The result is never nil: on rejection it carries the verdict
// and, for duplicates, the id of the existing media. Every call leaves a
// processing log row behind.
func (i *Ingester) Ingest(ctx context.Context, req models.IngestRequest) (res *models.IngestResult, err error) {
	const op = "catalog.Ingest"

	started := time.Now()
	res = &models.IngestResult{Verdict: models.VerdictRejected}
	defer func() {
		i.finish(ctx, req, res, err, started)
		if err != nil {
			err = fmt.Errorf("%s: %w", op, err)
		}
	}()

	if strings.TrimSpace(req.ChatID) == "" {
		return res, models.Validationf("chat_id is required")
	}
	if len(req.Data) < i.minBytes || len(req.Data) == 0 {
		return res, models.Validationf("payload of %d bytes is too small", len(req.Data))
	}
	if i.maxBytes > 0 && int64(len(req.Data)) > i.maxBytes {
		return res, models.Validationf("payload of %d bytes exceeds the %d byte limit", len(req.Data), i.maxBytes)
	}

	clean := i.sanitizer.Sanitize(req.Data)
	data := clean.Data
	res.Data = data
	res.Sanitized = clean.Changed
	res.Notes = clean.Notes
	if clean.Changed {
		metrics.SanitizedTotal.Inc()
	}

	res.Mimetype = detectMime(data, req.ClaimedMime)
	if req.ClaimedMime != "" && !strings.EqualFold(res.Mimetype, req.ClaimedMime) {
		i.log.Debug().Str("claimed", req.ClaimedMime).Str("detected", res.Mimetype).Msg("mimetype mismatch")
	}

	fp := hashing.Compute(data)
	res.HashMD5 = fp.MD5
	res.HashVisual = fp.Visual

	existing, err := i.store.FindByMD5(ctx, fp.MD5)
	if err != nil {
		return res, err
	}
	var exact *uuid.UUID
	if existing != nil {
		exact = &existing.ID
	}

	var nearest *hashing.Match
	if exact == nil && fp.Visual != "" {
		if nearest, err = i.store.NearestVisual(ctx, fp.Visual); err != nil {
			return res, err
		}
	}

	policy := i.policy
	policy.AllowNear = policy.AllowNear || req.AllowNearDuplicate
	res.Verdict, err = policy.Decide(exact, nearest)
	if res.Verdict == models.VerdictNearDup {
		d := nearest.Distance
		res.Distance = &d
	}
	if err != nil {
		var dup *models.DuplicateError
		var near *models.NearDuplicateError
		switch {
		case errors.As(err, &dup):
			res.MediaID = dup.ExistingID
		case errors.As(err, &near):
			res.MediaID = near.ExistingID
		}
		return res, err
	}

	key := blobstore.Key(fp.MD5, res.Mimetype)
	if err := i.blobs.Put(ctx, key, data, res.Mimetype); err != nil {
		res.Verdict = models.VerdictRejected
		return res, err
	}

	m := &models.Media{
		ChatID:   strings.TrimSpace(req.ChatID),
		GroupID:  optional(req.GroupID),
		SenderID: optional(req.SenderID),
		FilePath: key,
		Mimetype: res.Mimetype,
		HashMD5:  fp.MD5,
		FileSize: int64(len(data)),
	}
	if fp.Visual != "" {
		m.HashVisual = &fp.Visual
	}
	res.Tags = tags.Normalize(req.Caption)
	if err := i.store.InsertMedia(ctx, m, res.Tags); err != nil {
		var dup *models.DuplicateError
		if errors.As(err, &dup) {
			// lost the race to a concurrent identical upload; the blob is
			// shared with the winner under the same key
			res.Verdict = models.VerdictExactDup
			res.MediaID = dup.ExistingID
			return res, err
		}
		res.Verdict = models.VerdictRejected
		return res, err
	}

	res.MediaID = m.ID
	res.StorageKey = key
	return res, nil
}

func (i *Ingester) finish(ctx context.Context, req models.IngestRequest, res *models.IngestResult, err error, started time.Time) {
	ended := time.Now()
	source := req.Source
	if source == "" {
		source = "direct"
	}

	attempt := Attempt{
		StartedAt: started,
		EndedAt:   ended,
		MediaType: res.Mimetype,
		FileSize:  int64(len(req.Data)),
		Success:   err == nil,
		Verdict:   res.Verdict,
	}
	if err == nil {
		id := res.MediaID
		attempt.MediaID = &id
	}
	if i.recorder != nil {
		i.recorder.Record(ctx, attempt)
	}

	metrics.IngestsTotal.WithLabelValues(string(res.Verdict), source).Inc()
	metrics.IngestDuration.WithLabelValues(string(res.Verdict)).Observe(ended.Sub(started).Seconds())

	e := events.Event{
		Verdict:    res.Verdict,
		ChatID:     req.ChatID,
		OccurredAt: ended.UTC(),
	}
	if res.MediaID != uuid.Nil {
		id := res.MediaID
		e.MediaID = &id
	}
	if err == nil {
		metrics.IngestBytesTotal.Add(float64(len(req.Data)))
		e.Type = events.TypeIngested
		e.StorageKey = res.StorageKey
		i.log.Info().
			Str("media_id", res.MediaID.String()).
			Str("verdict", string(res.Verdict)).
			Str("mimetype", res.Mimetype).
			Bool("sanitized", res.Sanitized).
			Msg("media ingested")
	} else {
		e.Type = events.TypeRejected
		e.Reason = err.Error()
		i.log.Info().Err(err).Str("verdict", string(res.Verdict)).Msg("media rejected")
	}
	if perr := i.publisher.Publish(context.WithoutCancel(ctx), e); perr != nil {
		i.log.Warn().Err(perr).Str("type", string(e.Type)).Msg("event publish failed")
	}
}

// detectMime sniffs the payload and falls back to the claimed type only when
// sniffing finds nothing specific.
func detectMime(data []byte, claimed string) string {
	detected := mimetype.Detect(data)
	value := detected.String()
	if detected.Is("application/octet-stream") && strings.TrimSpace(claimed) != "" {
		value = claimed
	}
	value, _, _ = strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(value))
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
