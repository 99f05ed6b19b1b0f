package catalog

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stickervault/internal/blobstore"
	"stickervault/internal/events"
	"stickervault/internal/models"
	"stickervault/internal/storage"
)

type fixture struct {
	store     *storage.Storage
	blobs     *blobstore.LocalStore
	publisher *recordingPublisher
	cfg       models.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.NewStorage(ctx, models.DatabaseConfig{Driver: "sqlite", URL: filepath.Join(dir, "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	blobs, err := blobstore.NewLocalStore(filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)

	cfg := models.DefaultConfig()
	return &fixture{store: store, blobs: blobs, publisher: &recordingPublisher{}, cfg: cfg}
}

func (f *fixture) ingester() *Ingester {
	return NewIngester(f.store, f.blobs, f.publisher, NewRecorder(f.store, zerolog.Nop()), f.cfg, zerolog.Nop())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type failingLog struct{}

func (failingLog) AppendProcessingLog(context.Context, *models.ProcessingLogEntry) error {
	return errors.New("disk full")
}

func gradient(w, h int, invert bool) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*200)/(w-1) + (y*40)/(h-1))
			if invert {
				v = 255 - v
			}
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}))
	return buf.Bytes()
}

func storageQueryAll() storage.MediaQuery {
	return storage.MediaQuery{Page: models.Page{Limit: 200}}
}
