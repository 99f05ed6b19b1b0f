package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stickervault/internal/models"
	"stickervault/internal/tags"
)

// TagMedia links the normalized tags to a media item. Tags are created on
// first use; usage_count moves only for links that did not exist before, in
// the same transaction as the link. It returns the number of new links.
func (s *Storage) TagMedia(ctx context.Context, mediaID uuid.UUID, names []string) (int, error) {
	const op = "storage.TagMedia"

	var added int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.mediaExists(ctx, tx, mediaID); err != nil {
			return err
		}
		n, err := s.tagMediaTx(ctx, tx, mediaID, names)
		added = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return added, nil
}

func (s *Storage) tagMediaTx(ctx context.Context, tx *sql.Tx, mediaID uuid.UUID, names []string) (int, error) {
	added := 0
	for _, name := range tags.NormalizeAll(names) {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO tags (name, usage_count) VALUES (?, 0) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return added, fmt.Errorf("insert tag %q: %w", name, err)
		}
		var tagID int64
		if err := s.queryRow(ctx, tx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return added, fmt.Errorf("lookup tag %q: %w", name, err)
		}

		res, err := s.exec(ctx, tx,
			`INSERT INTO media_tags (media_id, tag_id) VALUES (?, ?) ON CONFLICT (media_id, tag_id) DO NOTHING`,
			mediaID, tagID)
		if err != nil {
			return added, fmt.Errorf("link tag %q: %w", name, err)
		}
		linked, err := res.RowsAffected()
		if err != nil {
			return added, err
		}
		if linked == 0 {
			continue
		}
		if _, err := s.exec(ctx, tx, `UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, tagID); err != nil {
			return added, fmt.Errorf("count tag %q: %w", name, err)
		}
		added++
	}
	return added, nil
}

// UntagMedia removes links and decrements the affected counters. Unknown
// tags are ignored. It returns the number of removed links.
func (s *Storage) UntagMedia(ctx context.Context, mediaID uuid.UUID, names []string) (int, error) {
	const op = "storage.UntagMedia"

	removed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.mediaExists(ctx, tx, mediaID); err != nil {
			return err
		}
		for _, name := range tags.NormalizeAll(names) {
			var tagID int64
			err := s.queryRow(ctx, tx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			res, err := s.exec(ctx, tx, `DELETE FROM media_tags WHERE media_id = ? AND tag_id = ?`, mediaID, tagID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			if _, err := s.exec(ctx, tx, `UPDATE tags SET usage_count = usage_count - 1 WHERE id = ?`, tagID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return removed, nil
}

func (s *Storage) MediaTags(ctx context.Context, mediaID uuid.UUID) ([]string, error) {
	const op = "storage.MediaTags"
	rows, err := s.query(ctx, s.db,
		`SELECT t.name FROM tags t JOIN media_tags mt ON mt.tag_id = t.id
		 WHERE mt.media_id = ? ORDER BY t.name`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Storage) GetTag(ctx context.Context, name string) (*models.Tag, error) {
	const op = "storage.GetTag"
	normalized := tags.Normalize(name)
	if len(normalized) != 1 {
		return nil, fmt.Errorf("%s: %w", op, models.Validationf("invalid tag %q", name))
	}
	var t models.Tag
	err := s.queryRow(ctx, s.db, `SELECT id, name, usage_count FROM tags WHERE name = ?`, normalized[0]).
		Scan(&t.ID, &t.Name, &t.UsageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: tag %q: %w", op, name, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

// TopTags lists the most used tags.
func (s *Storage) TopTags(ctx context.Context, limit int) ([]models.Tag, error) {
	const op = "storage.TopTags"
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.query(ctx, s.db,
		`SELECT id, name, usage_count FROM tags WHERE usage_count > 0
		 ORDER BY usage_count DESC, name ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Storage) mediaExists(ctx context.Context, q querier, id uuid.UUID) error {
	var one int
	err := s.queryRow(ctx, q, `SELECT 1 FROM media WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("media %s: %w", id, models.ErrNotFound)
	}
	return err
}
