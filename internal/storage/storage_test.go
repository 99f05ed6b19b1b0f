package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickervault/internal/models"
)

func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	cfg := models.DatabaseConfig{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "catalog.db"),
	}
	s, err := NewStorage(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testMedia(seed string) *models.Media {
	sum := md5.Sum([]byte(seed))
	return &models.Media{
		ChatID:   "chat-1",
		FilePath: "media/" + seed + ".webp",
		Mimetype: "image/webp",
		HashMD5:  hex.EncodeToString(sum[:]),
		FileSize: int64(len(seed)),
	}
}

func insertMedia(t *testing.T, s *Storage, seed string, tagNames ...string) *models.Media {
	t.Helper()
	m := testMedia(seed)
	require.NoError(t, s.InsertMedia(context.Background(), m, tagNames))
	return m
}

// fakeClock is a settable clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t,
		"file:/tmp/x.db?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate",
		sqliteDSN("/tmp/x.db"))
	assert.Equal(t, "file:x.db?_pragma=foreign_keys(1)", sqliteDSN("file:x.db?_pragma=foreign_keys(1)"))
	assert.Contains(t, sqliteDSN("file:x.db?mode=rwc"), "mode=rwc&_pragma=")
}

func TestRebind(t *testing.T) {
	s := &Storage{dialect: dialectPostgres}
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b IN ($2, $3)", s.rebind("SELECT 1 FROM t WHERE a = ? AND b IN (?, ?)"))

	s.dialect = dialectSQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}

func TestNewStorageRejectsUnknownDriver(t *testing.T) {
	_, err := NewStorage(context.Background(), models.DatabaseConfig{Driver: "mysql", URL: "x"})
	require.Error(t, err)
}

func TestMigrationsApplied(t *testing.T) {
	s := newTestStorage(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestInsertAndGetMedia(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	group := "group-9"
	m := testMedia("cat")
	m.GroupID = &group
	require.NoError(t, s.InsertMedia(ctx, m, []string{"Cat, Funny"}))
	require.NotEqual(t, uuid.Nil, m.ID)

	got, err := s.GetMedia(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.HashMD5, got.HashMD5)
	assert.Equal(t, "chat-1", got.ChatID)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, group, *got.GroupID)
	assert.Nil(t, got.SenderID)
	assert.False(t, got.NSFW)

	tags, err := s.MediaTags(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "funny"}, tags)

	byHash, err := s.FindByMD5(ctx, m.HashMD5)
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, m.ID, byHash.ID)

	missing, err := s.FindByMD5(ctx, "0000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertMediaValidation(t *testing.T) {
	s := newTestStorage(t)
	err := s.InsertMedia(context.Background(), &models.Media{ChatID: "c"}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	m := testMedia("x")
	m.ChatID = " "
	err = s.InsertMedia(context.Background(), m, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestInsertMediaDuplicateNamesWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	winner := insertMedia(t, s, "same", "a")

	loser := testMedia("same")
	err := s.InsertMedia(ctx, loser, []string{"b"})
	require.ErrorIs(t, err, models.ErrDuplicate)

	var dup *models.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, winner.ID, dup.ExistingID)

	// the losing transaction left no tag behind
	_, err = s.GetTag(ctx, "b")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentIdenticalInsertsKeepOneRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InsertMedia(ctx, testMedia("race"), []string{"race"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, models.ErrDuplicate):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dups)

	var rows int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM media`).Scan(&rows))
	assert.Equal(t, 1, rows)

	tag, err := s.GetTag(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.UsageCount)
}

func TestMediaTextUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	m := insertMedia(t, s, "text")

	require.NoError(t, s.UpdateDescription(ctx, m.ID, "a grumpy cat"))
	require.NoError(t, s.RecordExtractedText(ctx, m.ID, "HELLO"))
	require.NoError(t, s.SetNSFW(ctx, m.ID, true))

	got, err := s.GetMedia(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	assert.Equal(t, "a grumpy cat", *got.Description)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, "HELLO", *got.ExtractedText)
	assert.True(t, got.NSFW)

	require.NoError(t, s.UpdateDescription(ctx, m.ID, "  "))
	got, err = s.GetMedia(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Description)

	missing := uuid.New()
	assert.ErrorIs(t, s.UpdateDescription(ctx, missing, "x"), models.ErrNotFound)
	assert.ErrorIs(t, s.RecordExtractedText(ctx, missing, "x"), models.ErrNotFound)
	assert.ErrorIs(t, s.SetNSFW(ctx, missing, true), models.ErrNotFound)
	assert.ErrorIs(t, s.BumpRandomCount(ctx, missing), models.ErrNotFound)
	_, err = s.GetMedia(ctx, missing)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestNearestVisual(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	none, err := s.NearestVisual(ctx, "ffffffffffffffff")
	require.NoError(t, err)
	assert.Nil(t, none)

	a := testMedia("a")
	va := "00000000000000ff"
	a.HashVisual = &va
	require.NoError(t, s.InsertMedia(ctx, a, nil))

	b := testMedia("b")
	vb := "ffffffffffffffff"
	b.HashVisual = &vb
	require.NoError(t, s.InsertMedia(ctx, b, nil))

	insertMedia(t, s, "no-visual")

	match, err := s.NearestVisual(ctx, "00000000000000fe")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, a.ID, match.ID)
	assert.Equal(t, 1, match.Distance)
}

func TestRandomCandidatesPreferLeastServed(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	first := insertMedia(t, s, "one")
	second := insertMedia(t, s, "two")
	nsfw := insertMedia(t, s, "three")
	require.NoError(t, s.SetNSFW(ctx, nsfw.ID, true))

	require.NoError(t, s.BumpRandomCount(ctx, first.ID))
	require.NoError(t, s.BumpRandomCount(ctx, first.ID))

	got, err := s.RandomCandidates(ctx, false, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, int64(2), got[1].CountRandom)

	all, err := s.RandomCandidates(ctx, true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
