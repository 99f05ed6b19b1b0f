package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationFS embed.FS

func (s *Storage) migrationProvider() (*goose.Provider, error) {
	dir, gooseDialect := "migrations/sqlite", goose.DialectSQLite3
	if s.dialect == dialectPostgres {
		dir, gooseDialect = "migrations/postgres", goose.DialectPostgres
	}
	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gooseDialect, s.db, sub)
}

func (s *Storage) runMigrations(ctx context.Context) error {
	const op = "storage.migrations"

	provider, err := s.migrationProvider()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(results) == 0 {
		s.log.Debug().Msg("no migrations to apply")
		return nil
	}
	for _, r := range results {
		s.log.Info().
			Int64("version", r.Source.Version).
			Dur("took", r.Duration).
			Msg("migration applied")
	}
	return nil
}

// SchemaVersion reports the highest applied migration version.
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := s.migrationProvider()
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
