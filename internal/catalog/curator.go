package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickervault/internal/metrics"
	"stickervault/internal/models"
	"stickervault/internal/storage"
)

type PackStore interface {
	CreatePack(ctx context.Context, in storage.NewPack) (*models.StickerPack, error)
	GetPackByName(ctx context.Context, name string) (*models.StickerPack, error)
	AddToPack(ctx context.Context, packID int64, mediaID uuid.UUID) (int, error)
	RemoveFromPack(ctx context.Context, packID int64, mediaID uuid.UUID) error
	DeletePack(ctx context.Context, packID int64) error
	PackNamesLike(ctx context.Context, base string) ([]string, error)
}

// rolloverAttempts bounds how many fresh packs AddToNamedPack opens when
// concurrent writers keep filling them.
const rolloverAttempts = 3

type Curator struct {
	store      PackStore
	defaultMax int
	log        zerolog.Logger
}

func NewCurator(store PackStore, defaultMax int, log zerolog.Logger) *Curator {
	if defaultMax <= 0 {
		defaultMax = models.DefaultMaxStickers
	}
	return &Curator{store: store, defaultMax: defaultMax, log: log.With().Str("component", "curator").Logger()}
}

// CreatePack applies the configured capacity when maxStickers is zero.
func (c *Curator) CreatePack(ctx context.Context, name, description, createdBy string, maxStickers int) (*models.StickerPack, error) {
	if maxStickers == 0 {
		maxStickers = c.defaultMax
	}
	p, err := c.store.CreatePack(ctx, storage.NewPack{
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		MaxStickers: maxStickers,
	})
	metrics.PackOperationsTotal.WithLabelValues("create", metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}
	c.log.Info().Int64("pack_id", p.ID).Str("name", p.Name).Int("max_stickers", p.MaxStickers).Msg("pack created")
	return p, nil
}

func (c *Curator) AddToPack(ctx context.Context, packID int64, mediaID uuid.UUID) (int, error) {
	pos, err := c.store.AddToPack(ctx, packID, mediaID)
	metrics.PackOperationsTotal.WithLabelValues("add", metrics.Status(err)).Inc()
	return pos, err
}

func (c *Curator) RemoveFromPack(ctx context.Context, packID int64, mediaID uuid.UUID) error {
	err := c.store.RemoveFromPack(ctx, packID, mediaID)
	metrics.PackOperationsTotal.WithLabelValues("remove", metrics.Status(err)).Inc()
	return err
}

func (c *Curator) DeletePack(ctx context.Context, packID int64) error {
	err := c.store.DeletePack(ctx, packID)
	metrics.PackOperationsTotal.WithLabelValues("delete", metrics.Status(err)).Inc()
	if err == nil {
		c.log.Info().Int64("pack_id", packID).Msg("pack deleted")
	}
	return err
}

// SuggestPackName returns base when no pack uses it, otherwise "base (n)"
// with n one past the highest number in the series. The bare base counts as 1.
func (c *Curator) SuggestPackName(ctx context.Context, base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", models.Validationf("pack name is required")
	}
	_, highest, err := c.latestInSeries(ctx, base)
	if err != nil {
		return "", err
	}
	if highest == 0 {
		return base, nil
	}
	return fmt.Sprintf("%s (%d)", base, highest+1), nil
}

func (c *Curator) latestInSeries(ctx context.Context, base string) (string, int, error) {
	names, err := c.store.PackNamesLike(ctx, base)
	if err != nil {
		return "", 0, fmt.Errorf("catalog.latestInSeries: %w", err)
	}
	numbered := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + ` \((\d+)\)$`)
	latest, highest := "", 0
	for _, name := range names {
		n := 0
		if name == base {
			n = 1
		} else if m := numbered.FindStringSubmatch(name); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		if n > highest {
			latest, highest = name, n
		}
	}
	return latest, highest, nil
}

// Placement reports where AddToNamedPack put a sticker.
type Placement struct {
	Pack       *models.StickerPack `json:"pack"`
	Position   int                 `json:"position"`
	RolledOver bool                `json:"rolled_over"`
}

// AddToNamedPack adds the media to the newest pack of the series named base,
// creating it on first use. A full pack rolls over into "base (n+1)".
func (c *Curator) AddToNamedPack(ctx context.Context, base string, mediaID uuid.UUID, createdBy string) (*Placement, error) {
	const op = "catalog.AddToNamedPack"

	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("%s: %w", op, models.Validationf("pack name is required"))
	}
	name, _, err := c.latestInSeries(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if name == "" {
		name = base
	}

	rolled := false
	for attempt := 0; attempt <= rolloverAttempts; attempt++ {
		pack, err := c.packByName(ctx, name, createdBy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		pos, err := c.AddToPack(ctx, pack.ID, mediaID)
		if err == nil {
			pack.StickerCount++
			return &Placement{Pack: pack, Position: pos, RolledOver: rolled}, nil
		}
		if !errors.Is(err, models.ErrCapacityExceeded) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if name, err = c.SuggestPackName(ctx, base); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rolled = true
		c.log.Info().Str("full_pack", pack.Name).Str("next", name).Msg("pack full, rolling over")
	}
	return nil, fmt.Errorf("%s: no room in pack series %q: %w", op, base, models.ErrCapacityExceeded)
}

// packByName fetches the pack, creating it when absent. A concurrent create
// of the same name is resolved by reading the winner.
func (c *Curator) packByName(ctx context.Context, name, createdBy string) (*models.StickerPack, error) {
	pack, err := c.store.GetPackByName(ctx, name)
	if err == nil {
		return pack, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	pack, err = c.CreatePack(ctx, name, "", createdBy, 0)
	if errors.Is(err, models.ErrConstraint) {
		return c.store.GetPackByName(ctx, name)
	}
	return pack, err
}
