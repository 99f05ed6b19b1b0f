package catalog

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"stickervault/internal/models"
)

type RandomStore interface {
	RandomCandidates(ctx context.Context, includeNSFW bool, limit int) ([]models.Media, error)
	BumpRandomCount(ctx context.Context, id uuid.UUID) error
}

const randomPool = 20

// PickRandom serves one of the least served media items, chosen uniformly
// among those tied on count_random, and counts the serve.
func PickRandom(ctx context.Context, store RandomStore, includeNSFW bool) (*models.Media, error) {
	const op = "catalog.PickRandom"

	candidates, err := store.RandomCandidates(ctx, includeNSFW, randomPool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: catalog is empty: %w", op, models.ErrNotFound)
	}
	tied := 1
	for tied < len(candidates) && candidates[tied].CountRandom == candidates[0].CountRandom {
		tied++
	}
	picked := candidates[rand.Intn(tied)]
	if err := store.BumpRandomCount(ctx, picked.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	picked.CountRandom++
	return &picked, nil
}
