package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickervault/internal/blobstore"
	"stickervault/internal/models"
)

type PurgeStore interface {
	PurgeMedia(ctx context.Context, id uuid.UUID) (*models.Media, error)
	FindByMD5(ctx context.Context, hash string) (*models.Media, error)
}

// Purge is the operator-only cascade delete. The catalog rows go first; the
// blob is removed afterwards and a failure there only leaves an orphan file.
// Blob keys are content addressed, so the blob stays when the same bytes were
// ingested again after the rows went.
func Purge(ctx context.Context, store PurgeStore, blobs blobstore.Store, id uuid.UUID, log zerolog.Logger) (*models.Media, error) {
	const op = "catalog.Purge"

	m, err := store.PurgeMedia(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	again, err := store.FindByMD5(ctx, m.HashMD5)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", m.FilePath).Msg("blob kept, re-ingest check failed")
	case again != nil:
		log.Info().Str("key", m.FilePath).Str("media_id", again.ID.String()).Msg("blob kept for re-ingested media")
	default:
		if err := blobs.Delete(ctx, m.FilePath); err != nil {
			log.Warn().Err(err).Str("key", m.FilePath).Msg("blob left behind after purge")
		}
	}
	log.Info().Str("media_id", id.String()).Str("hash_md5", m.HashMD5).Msg("media purged")
	return m, nil
}
