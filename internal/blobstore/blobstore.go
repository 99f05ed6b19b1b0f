// Package blobstore keeps media payloads under content-addressed keys.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"stickervault/internal/models"
)

// Store is implemented by LocalStore and S3Store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
}

// Key derives the storage key for a payload: a two character fan-out
// directory, the md5 and the extension of the detected mimetype. Equal
// payloads always map to the same key, so repeated writes are harmless.
func Key(md5Hex, contentType string) string {
	ext := ".bin"
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	md5Hex = strings.ToLower(md5Hex)
	prefix := "00"
	if len(md5Hex) >= 2 {
		prefix = md5Hex[:2]
	}
	return prefix + "/" + md5Hex + ext
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg models.BlobConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.StoragePath, log)
	case "s3":
		return NewS3Store(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("blobstore.New: unknown backend %q", cfg.Backend)
	}
}
