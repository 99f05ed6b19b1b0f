package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickervault/internal/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestKey(t *testing.T) {
	assert.Equal(t, "ab/abcdef.webp", Key("ABCDEF", "image/webp"))
	assert.Equal(t, "ab/abcdef.png", Key("abcdef", "image/png"))
	assert.Equal(t, "ab/abcdef.bin", Key("abcdef", "application/x-nothing-known"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Health(ctx))

	key := Key("0123456789abcdef0123456789abcdef", "image/png")
	require.NoError(t, store.Put(ctx, key, pngHeader, "image/png"))
	// a second write of the same key is a no-op
	require.NoError(t, store.Put(ctx, key, []byte("other"), "image/png"))

	rc, contentType, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", contentType)

	entries, err := os.ReadDir(filepath.Join(dir, "01"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	for _, key := range []string{"../x", "/etc/passwd", ""} {
		err := store.Put(context.Background(), key, []byte("x"), "text/plain")
		assert.ErrorIs(t, err, models.ErrValidation, key)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), models.BlobConfig{Backend: "ftp"}, zerolog.Nop())
	require.Error(t, err)
}
