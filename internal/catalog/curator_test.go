package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickervault/internal/models"
	"stickervault/internal/storage"
)

func seedMedia(t *testing.T, s *storage.Storage, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		m := &models.Media{
			ChatID:   "c",
			FilePath: fmt.Sprintf("k/%d", i),
			Mimetype: "image/webp",
			HashMD5:  fmt.Sprintf("%032x", i+1),
		}
		require.NoError(t, s.InsertMedia(context.Background(), m, nil))
		ids = append(ids, m.ID)
	}
	return ids
}

func TestCuratorCreatePackUsesConfiguredDefault(t *testing.T) {
	f := newFixture(t)
	c := NewCurator(f.store, 12, zerolog.Nop())

	p, err := c.CreatePack(context.Background(), "defaults", "", "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, p.MaxStickers)

	p, err = c.CreatePack(context.Background(), "explicit", "desc", "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxStickers)

	_, err = c.CreatePack(context.Background(), "explicit", "", "", 0)
	assert.ErrorIs(t, err, models.ErrConstraint)
}

func TestSuggestPackName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := NewCurator(f.store, 0, zerolog.Nop())

	name, err := c.SuggestPackName(ctx, "MyPack")
	require.NoError(t, err)
	assert.Equal(t, "MyPack", name)

	for _, n := range []string{"MyPack", "MyPack (2)", "MyPack (3)", "MyPack (x)"} {
		_, err := c.CreatePack(ctx, n, "", "", 0)
		require.NoError(t, err)
	}
	name, err = c.SuggestPackName(ctx, "MyPack")
	require.NoError(t, err)
	assert.Equal(t, "MyPack (4)", name)

	_, err = c.SuggestPackName(ctx, " ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSuggestPackNameAfterGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := NewCurator(f.store, 0, zerolog.Nop())
	_, err := c.CreatePack(ctx, "Series (5)", "", "", 0)
	require.NoError(t, err)

	name, err := c.SuggestPackName(ctx, "Series")
	require.NoError(t, err)
	assert.Equal(t, "Series (6)", name)
}

func TestAddToNamedPackRollsOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := NewCurator(f.store, 2, zerolog.Nop())
	ids := seedMedia(t, f.store, 5)

	var placements []*Placement
	for _, id := range ids {
		p, err := c.AddToNamedPack(ctx, "memes", id, "u1")
		require.NoError(t, err)
		placements = append(placements, p)
	}

	names := make([]string, 0, len(placements))
	for _, p := range placements {
		names = append(names, p.Pack.Name)
	}
	assert.Equal(t, []string{"memes", "memes", "memes (2)", "memes (2)", "memes (3)"}, names)
	assert.False(t, placements[1].RolledOver)
	assert.True(t, placements[2].RolledOver)
	assert.Equal(t, 2, placements[3].Position)
	assert.Equal(t, 1, placements[4].Position)

	_, err := c.AddToNamedPack(ctx, "memes", ids[4], "u1")
	assert.ErrorIs(t, err, models.ErrDuplicate)

	_, err = c.AddToNamedPack(ctx, "  ", ids[0], "u1")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCuratorRemoveAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := NewCurator(f.store, 0, zerolog.Nop())
	ids := seedMedia(t, f.store, 3)

	p, err := c.CreatePack(ctx, "p", "", "", 0)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := c.AddToPack(ctx, p.ID, id)
		require.NoError(t, err)
	}
	require.NoError(t, c.RemoveFromPack(ctx, p.ID, ids[0]))

	members, err := f.store.PackStickers(ctx, p.ID, models.Page{})
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ids[1], members[0].Media.ID)
	assert.Equal(t, 1, members[0].Position)
	assert.Equal(t, 2, members[1].Position)

	require.NoError(t, c.DeletePack(ctx, p.ID))
	assert.ErrorIs(t, c.DeletePack(ctx, p.ID), models.ErrNotFound)
}
