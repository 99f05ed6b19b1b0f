// Package storage owns every persisted catalog row. All writes go through
// Storage; multi-row mutations run inside a single transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"stickervault/internal/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type Storage struct {
	db      *sql.DB
	pool    *pgxpool.Pool // postgres only
	dialect dialect
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Storage)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Storage) { s.log = log.With().Str("component", "storage").Logger() }
}

// NewStorage connects to the configured database and applies pending
// migrations.
func NewStorage(ctx context.Context, cfg models.DatabaseConfig, opts ...Option) (*Storage, error) {
	const op = "storage.NewStorage"

	s := &Storage{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.pool = pool
		s.db = stdlib.OpenDBFromPool(pool)
		s.dialect = dialectPostgres
	case "sqlite", "":
		db, err := sql.Open("sqlite", sqliteDSN(cfg.URL))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.db = db
		s.dialect = dialectSQLite
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q", op, cfg.Driver)
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	if err := s.runMigrations(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// sqliteDSN turns a plain path into a DSN with the pragmas every connection
// needs. Transactions start IMMEDIATE so writers queue on the busy timeout
// instead of failing on lock upgrade.
func sqliteDSN(url string) string {
	if strings.Contains(url, "_pragma=") {
		return url
	}
	dsn := url
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// DB exposes the handle for health checks.
func (s *Storage) DB() *sql.DB { return s.db }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Storage) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Storage) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Storage) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// rebind rewrites ? placeholders to $n for postgres. Queries in this package
// never contain a literal question mark.
func (s *Storage) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// withTx runs fn in one transaction, rolling back on any error. Raw
// constraint failures surface as models.ErrConstraint.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %w", models.ErrConstraint, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
