package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickervault/internal/models"
)

func packPositions(t *testing.T, s *Storage, packID int64) map[uuid.UUID]int {
	t.Helper()
	members, err := s.PackStickers(context.Background(), packID, models.Page{Limit: 200})
	require.NoError(t, err)
	out := make(map[uuid.UUID]int, len(members))
	for _, m := range members {
		out[m.Media.ID] = m.Position
	}
	return out
}

func TestCreatePack(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	p, err := s.CreatePack(ctx, NewPack{Name: " Cats ", CreatedBy: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Cats", p.Name)
	assert.Equal(t, models.DefaultMaxStickers, p.MaxStickers)
	assert.Equal(t, 0, p.StickerCount)
	require.NotNil(t, p.CreatedBy)
	assert.Nil(t, p.Description)

	_, err = s.CreatePack(ctx, NewPack{Name: "Cats"})
	assert.ErrorIs(t, err, models.ErrConstraint)

	_, err = s.CreatePack(ctx, NewPack{Name: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = s.CreatePack(ctx, NewPack{Name: "neg", MaxStickers: -1})
	assert.ErrorIs(t, err, models.ErrValidation)

	byName, err := s.GetPackByName(ctx, "Cats")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	_, err = s.GetPack(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddToPackAssignsDensePositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	p, err := s.CreatePack(ctx, NewPack{Name: "dense"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		m := insertMedia(t, s, fmt.Sprintf("m%d", i))
		pos, err := s.AddToPack(ctx, p.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, i, pos)
	}

	got, err := s.GetPack(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.StickerCount)
}

func TestAddToPackErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	p, err := s.CreatePack(ctx, NewPack{Name: "errs"})
	require.NoError(t, err)
	m := insertMedia(t, s, "member")

	_, err = s.AddToPack(ctx, p.ID, m.ID)
	require.NoError(t, err)

	_, err = s.AddToPack(ctx, p.ID, m.ID)
	assert.ErrorIs(t, err, models.ErrDuplicate)

	_, err = s.AddToPack(ctx, 12345, m.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.AddToPack(ctx, p.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	// failed adds never leak into the counter
	got, err := s.GetPack(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StickerCount)
}

func TestAddToPackCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	p, err := s.CreatePack(ctx, NewPack{Name: "full"})
	require.NoError(t, err)

	for i := 0; i < models.DefaultMaxStickers; i++ {
		m := insertMedia(t, s, fmt.Sprintf("cap-%d", i))
		_, err := s.AddToPack(ctx, p.ID, m.ID)
		require.NoError(t, err)
	}

	extra := insertMedia(t, s, "cap-extra")
	_, err = s.AddToPack(ctx, p.ID, extra.ID)
	require.ErrorIs(t, err, models.ErrCapacityExceeded)

	got, err := s.GetPack(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxStickers, got.StickerCount)
	assert.True(t, got.Full())
}

func TestConcurrentAddsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	p, err := s.CreatePack(ctx, NewPack{Name: "race", MaxStickers: 5})
	require.NoError(t, err)

	media := make([]*models.Media, 12)
	for i := range media {
		media[i] = insertMedia(t, s, fmt.Sprintf("race-%d", i))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for _, m := range media {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := s.AddToPack(ctx, p.ID, id)
			if err != nil {
				assert.ErrorIs(t, err, models.ErrCapacityExceeded)
				mu.Lock()
				full++
				mu.Unlock()
			}
		}(m.ID)
	}
	wg.Wait()

	assert.Equal(t, len(media)-5, full)
	positions := packPositions(t, s, p.ID)
	require.Len(t, positions, 5)
	seen := map[int]bool{}
	for _, pos := range positions {
		seen[pos] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}, seen)
}

func TestConcurrentAddAndRemoveKeepPositionsDense(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for round := 0; round < 10; round++ {
		p, err := s.CreatePack(ctx, NewPack{Name: fmt.Sprintf("churn-%d", round)})
		require.NoError(t, err)

		var members []uuid.UUID
		for i := 0; i < 5; i++ {
			m := insertMedia(t, s, fmt.Sprintf("churn-%d-%d", round, i))
			_, err := s.AddToPack(ctx, p.ID, m.ID)
			require.NoError(t, err)
			members = append(members, m.ID)
		}
		var fresh []uuid.UUID
		for i := 0; i < 3; i++ {
			fresh = append(fresh, insertMedia(t, s, fmt.Sprintf("churn-%d-new-%d", round, i)).ID)
		}

		var wg sync.WaitGroup
		for _, id := range []uuid.UUID{members[1], members[3]} {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				assert.NoError(t, s.RemoveFromPack(ctx, p.ID, id))
			}(id)
		}
		for _, id := range fresh {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := s.AddToPack(ctx, p.ID, id)
				assert.NoError(t, err)
			}(id)
		}
		wg.Wait()

		positions := packPositions(t, s, p.ID)
		require.Len(t, positions, 6)
		seen := map[int]bool{}
		for _, pos := range positions {
			assert.False(t, seen[pos], "position %d used twice", pos)
			seen[pos] = true
		}
		for want := 1; want <= 6; want++ {
			assert.True(t, seen[want], "position %d missing", want)
		}
		assert.NotContains(t, positions, members[1])
		assert.NotContains(t, positions, members[3])

		got, err := s.GetPack(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, got.StickerCount)
	}
}

func TestRemoveFromPackRenumbers(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	p, err := s.CreatePack(ctx, NewPack{Name: "renumber"})
	require.NoError(t, err)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		m := insertMedia(t, s, fmt.Sprintf("r%d", i))
		_, err := s.AddToPack(ctx, p.ID, m.ID)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	require.NoError(t, s.RemoveFromPack(ctx, p.ID, ids[2]))

	assert.Equal(t, map[uuid.UUID]int{ids[0]: 1, ids[1]: 2, ids[3]: 3, ids[4]: 4}, packPositions(t, s, p.ID))
	got, err := s.GetPack(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.StickerCount)

	assert.ErrorIs(t, s.RemoveFromPack(ctx, p.ID, ids[2]), models.ErrNotFound)
	assert.ErrorIs(t, s.RemoveFromPack(ctx, 999, ids[0]), models.ErrNotFound)

	// the next add continues after the last dense position
	m := insertMedia(t, s, "r-next")
	pos, err := s.AddToPack(ctx, p.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, pos)
}

func TestDeletePack(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	p, err := s.CreatePack(ctx, NewPack{Name: "gone"})
	require.NoError(t, err)
	m := insertMedia(t, s, "gone-1")
	_, err = s.AddToPack(ctx, p.ID, m.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeletePack(ctx, p.ID))
	_, err = s.GetPack(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.DeletePack(ctx, p.ID), models.ErrNotFound)

	// the media itself survives
	_, err = s.GetMedia(ctx, m.ID)
	require.NoError(t, err)
}

func TestPackNamesLike(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	for _, name := range []string{"memes", "memes (2)", "memes (3)", "memes_x", "other"} {
		_, err := s.CreatePack(ctx, NewPack{Name: name})
		require.NoError(t, err)
	}

	names, err := s.PackNamesLike(ctx, "memes")
	require.NoError(t, err)
	assert.Equal(t, []string{"memes", "memes (2)", "memes (3)"}, names)

	names, err = s.PackNamesLike(ctx, "mem_s")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListPacks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	for _, name := range []string{"Cats", "Dogs", "cat memes"} {
		_, err := s.CreatePack(ctx, NewPack{Name: name})
		require.NoError(t, err)
	}

	packs, total, err := s.ListPacks(ctx, "cat", models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, packs, 2)

	packs, total, err = s.ListPacks(ctx, "", models.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, packs, 1)
}
