package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickervault/internal/models"
)

// LocalStore writes payloads below a base directory.
type LocalStore struct {
	basePath string
	log      zerolog.Logger
}

func NewLocalStore(basePath string, log zerolog.Logger) (*LocalStore, error) {
	const op = "blobstore.NewLocalStore"

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, fmt.Errorf("%s: storage path is required", op)
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store := &LocalStore{
		basePath: basePath,
		log:      log.With().Str("component", "local-blobstore").Logger(),
	}
	store.log.Info().Str("path", basePath).Msg("local blob storage initialized")
	return store, nil
}

func (l *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", models.Validationf("invalid blob key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

// Put writes through a temp file and a rename so readers never see a partial
// payload. An existing key is left untouched.
func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	const op = "blobstore.LocalStore.Put"

	fullPath, err := l.path(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := os.Stat(fullPath); err == nil {
		l.log.Debug().Str("key", key).Msg("blob already stored")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp := filepath.Join(filepath.Dir(fullPath), ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%s: %w", op, err)
	}

	l.log.Debug().
		Str("key", key).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("blob stored")
	return nil
}

// Get opens the payload; the content type is sniffed from its first bytes.
func (l *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	const op = "blobstore.LocalStore.Get"

	fullPath, err := l.path(key)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%s: blob %s: %w", op, key, models.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	head = head[:n]
	body := struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), f), f}
	return body, mimetype.Detect(head).String(), nil
}

func (l *LocalStore) Delete(ctx context.Context, key string) error {
	const op = "blobstore.LocalStore.Delete"

	fullPath, err := l.path(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Health checks that the base directory is writable.
func (l *LocalStore) Health(ctx context.Context) error {
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
