package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stickervault/internal/models"
)

const packColumns = `id, name, description, created_by, created_at, updated_at, sticker_count, max_stickers`

func scanPack(row rowScanner) (*models.StickerPack, error) {
	var (
		p                    models.StickerPack
		description, creator sql.NullString
		created, updated     int64
	)
	if err := row.Scan(&p.ID, &p.Name, &description, &creator, &created, &updated, &p.StickerCount, &p.MaxStickers); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	p.CreatedBy = stringPtr(creator)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

type NewPack struct {
	Name        string
	Description string
	CreatedBy   string
	MaxStickers int
}

// CreatePack fails with models.ErrConstraint when the name is taken.
func (s *Storage) CreatePack(ctx context.Context, in NewPack) (*models.StickerPack, error) {
	const op = "storage.CreatePack"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w", op, models.Validationf("pack name is required"))
	}
	if in.MaxStickers == 0 {
		in.MaxStickers = models.DefaultMaxStickers
	}
	if in.MaxStickers < 0 {
		return nil, fmt.Errorf("%s: %w", op, models.Validationf("max_stickers must be positive"))
	}

	now := toMillis(s.now())
	var id int64
	err := s.queryRow(ctx, s.db,
		`INSERT INTO sticker_packs (name, description, created_by, created_at, updated_at, sticker_count, max_stickers)
		 VALUES (?, ?, ?, ?, ?, 0, ?) RETURNING id`,
		name, nullableString(optionalString(in.Description)), nullableString(optionalString(in.CreatedBy)),
		now, now, in.MaxStickers).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%s: pack %q already exists: %w", op, name, models.ErrConstraint)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetPack(ctx, id)
}

func (s *Storage) GetPack(ctx context.Context, id int64) (*models.StickerPack, error) {
	const op = "storage.GetPack"
	p, err := scanPack(s.queryRow(ctx, s.db, `SELECT `+packColumns+` FROM sticker_packs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: pack %d: %w", op, id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *Storage) GetPackByName(ctx context.Context, name string) (*models.StickerPack, error) {
	const op = "storage.GetPackByName"
	p, err := scanPack(s.queryRow(ctx, s.db, `SELECT `+packColumns+` FROM sticker_packs WHERE name = ?`, strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: pack %q: %w", op, name, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// AddToPack appends the media at the next position. The conditional counter
// update is the first statement so it takes the pack row lock before any
// position is read; a full pack therefore stays untouched.
func (s *Storage) AddToPack(ctx context.Context, packID int64, mediaID uuid.UUID) (int, error) {
	const op = "storage.AddToPack"

	var position int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx,
			`UPDATE sticker_packs SET sticker_count = sticker_count + 1, updated_at = ?
			 WHERE id = ? AND sticker_count < max_stickers`,
			toMillis(s.now()), packID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return s.explainNoPackUpdate(ctx, tx, packID)
		}

		if err := s.mediaExists(ctx, tx, mediaID); err != nil {
			return err
		}

		err = s.queryRow(ctx, tx,
			`INSERT INTO pack_stickers (pack_id, media_id, position, added_at)
			 SELECT ?, ?, COALESCE(MAX(position), 0) + 1, ? FROM pack_stickers WHERE pack_id = ?
			 RETURNING position`,
			packID, mediaID, toMillis(s.now()), packID).Scan(&position)
		if isUniqueViolation(err) {
			return &models.DuplicateError{ExistingID: mediaID}
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return position, nil
}

func (s *Storage) explainNoPackUpdate(ctx context.Context, tx *sql.Tx, packID int64) error {
	var count, capacity int
	err := s.queryRow(ctx, tx, `SELECT sticker_count, max_stickers FROM sticker_packs WHERE id = ?`, packID).Scan(&count, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("pack %d: %w", packID, models.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("pack %d holds %d/%d stickers: %w", packID, count, capacity, models.ErrCapacityExceeded)
}

// RemoveFromPack deletes one membership and renumbers the rest to 1..N.
func (s *Storage) RemoveFromPack(ctx context.Context, packID int64, mediaID uuid.UUID) error {
	const op = "storage.RemoveFromPack"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockPack(ctx, tx, packID); err != nil {
			return err
		}
		return s.removeMemberTx(ctx, tx, packID, mediaID)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// lockPack touches the pack row so concurrent writers of the same pack
// serialize behind this transaction.
func (s *Storage) lockPack(ctx context.Context, tx *sql.Tx, packID int64) error {
	res, err := s.exec(ctx, tx, `UPDATE sticker_packs SET updated_at = ? WHERE id = ?`, toMillis(s.now()), packID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pack %d: %w", packID, models.ErrNotFound)
	}
	return nil
}

func (s *Storage) removeMemberTx(ctx context.Context, tx *sql.Tx, packID int64, mediaID uuid.UUID) error {
	res, err := s.exec(ctx, tx, `DELETE FROM pack_stickers WHERE pack_id = ? AND media_id = ?`, packID, mediaID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("media %s in pack %d: %w", mediaID, packID, models.ErrNotFound)
	}
	if _, err := s.exec(ctx, tx,
		`UPDATE sticker_packs SET sticker_count = sticker_count - 1, updated_at = ? WHERE id = ?`,
		toMillis(s.now()), packID); err != nil {
		return err
	}
	_, err = s.renumberTx(ctx, tx, packID)
	return err
}

// renumberTx rewrites positions to 1..N in current order and reports how
// many rows moved.
func (s *Storage) renumberTx(ctx context.Context, tx *sql.Tx, packID int64) (int, error) {
	rows, err := s.query(ctx, tx,
		`SELECT media_id, position FROM pack_stickers WHERE pack_id = ? ORDER BY position ASC, added_at ASC`, packID)
	if err != nil {
		return 0, err
	}
	type member struct {
		mediaID  uuid.UUID
		position int
	}
	var members []member
	for rows.Next() {
		var m member
		if err := rows.Scan(&m.mediaID, &m.position); err != nil {
			rows.Close()
			return 0, err
		}
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	moved := 0
	for i, m := range members {
		want := i + 1
		if m.position == want {
			continue
		}
		if _, err := s.exec(ctx, tx,
			`UPDATE pack_stickers SET position = ? WHERE pack_id = ? AND media_id = ?`, want, packID, m.mediaID); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// DeletePack removes every membership and then the pack itself.
func (s *Storage) DeletePack(ctx context.Context, packID int64) error {
	const op = "storage.DeletePack"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockPack(ctx, tx, packID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM pack_stickers WHERE pack_id = ?`, packID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `DELETE FROM sticker_packs WHERE id = ?`, packID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PackNamesLike returns pack names equal to base or shaped "base (n)".
func (s *Storage) PackNamesLike(ctx context.Context, base string) ([]string, error) {
	const op = "storage.PackNamesLike"
	rows, err := s.query(ctx, s.db,
		`SELECT name FROM sticker_packs WHERE name = ? OR name LIKE ? ESCAPE '\' ORDER BY name`,
		base, escapeLike(base)+" (%")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Storage) packsContaining(ctx context.Context, tx *sql.Tx, mediaID uuid.UUID) ([]int64, error) {
	rows, err := s.query(ctx, tx, `SELECT pack_id FROM pack_stickers WHERE media_id = ? ORDER BY pack_id`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(v)
}
