package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stickervault/internal/hashing"
	"stickervault/internal/models"
)

const mediaColumns = `id, chat_id, group_id, sender_id, file_path, mimetype, timestamp, description,
	hash_md5, hash_visual, nsfw, count_random, extracted_text, file_size`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*models.Media, error) {
	var (
		m                                                 models.Media
		groupID, senderID, description, visual, extracted sql.NullString
		ts                                                int64
	)
	err := row.Scan(&m.ID, &m.ChatID, &groupID, &senderID, &m.FilePath, &m.Mimetype, &ts, &description,
		&m.HashMD5, &visual, &m.NSFW, &m.CountRandom, &extracted, &m.FileSize)
	if err != nil {
		return nil, err
	}
	m.GroupID = stringPtr(groupID)
	m.SenderID = stringPtr(senderID)
	m.Description = stringPtr(description)
	m.HashVisual = stringPtr(visual)
	m.ExtractedText = stringPtr(extracted)
	m.Timestamp = fromMillis(ts)
	return &m, nil
}

// InsertMedia stores a new media row and links its tags in one transaction.
// The unique index on hash_md5 decides concurrent races: the loser gets a
// *models.DuplicateError naming the winner.
func (s *Storage) InsertMedia(ctx context.Context, m *models.Media, tagNames []string) error {
	const op = "storage.InsertMedia"

	if m.HashMD5 == "" {
		return fmt.Errorf("%s: %w", op, models.Validationf("hash_md5 is required"))
	}
	if strings.TrimSpace(m.ChatID) == "" {
		return fmt.Errorf("%s: %w", op, models.Validationf("chat_id is required"))
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx,
			`INSERT INTO media (`+mediaColumns+`) VALUES (`+placeholders(14)+`)`,
			m.ID, m.ChatID, nullableString(m.GroupID), nullableString(m.SenderID), m.FilePath, m.Mimetype,
			toMillis(m.Timestamp), nullableString(m.Description), m.HashMD5, nullableString(m.HashVisual),
			m.NSFW, m.CountRandom, nullableString(m.ExtractedText), m.FileSize)
		if err != nil {
			return err
		}
		_, err = s.tagMediaTx(ctx, tx, m.ID, tagNames)
		return err
	})
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		existing, lookupErr := s.FindByMD5(ctx, m.HashMD5)
		if lookupErr != nil || existing == nil {
			return fmt.Errorf("%s: %w", op, &models.DuplicateError{})
		}
		return fmt.Errorf("%s: %w", op, &models.DuplicateError{ExistingID: existing.ID})
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Storage) GetMedia(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const op = "storage.GetMedia"
	m, err := scanMedia(s.queryRow(ctx, s.db, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: media %s: %w", op, id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// FindByMD5 returns nil without error when no row carries the hash.
func (s *Storage) FindByMD5(ctx context.Context, hash string) (*models.Media, error) {
	const op = "storage.FindByMD5"
	m, err := scanMedia(s.queryRow(ctx, s.db, `SELECT `+mediaColumns+` FROM media WHERE hash_md5 = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// NearestVisual scans stored perceptual hashes for the closest one to hash.
// It returns nil when no media has a visual hash.
func (s *Storage) NearestVisual(ctx context.Context, hash string) (*hashing.Match, error) {
	const op = "storage.NearestVisual"

	rows, err := s.query(ctx, s.db, `SELECT id, hash_visual FROM media WHERE hash_visual IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var best *hashing.Match
	for rows.Next() {
		var (
			id     uuid.UUID
			visual string
		)
		if err := rows.Scan(&id, &visual); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		d := hashing.Distance(hash, visual)
		if best == nil || d < best.Distance {
			best = &hashing.Match{ID: id, Distance: d}
		}
		if d == 0 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return best, nil
}

func (s *Storage) UpdateDescription(ctx context.Context, id uuid.UUID, text string) error {
	return s.updateMediaText(ctx, "storage.UpdateDescription", "description", id, text)
}

func (s *Storage) RecordExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	return s.updateMediaText(ctx, "storage.RecordExtractedText", "extracted_text", id, text)
}

// column is always a package constant, never caller input.
func (s *Storage) updateMediaText(ctx context.Context, op, column string, id uuid.UUID, text string) error {
	res, err := s.exec(ctx, s.db, `UPDATE media SET `+column+` = ? WHERE id = ?`, nullableString(optionalString(text)), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(op, res, fmt.Sprintf("media %s", id))
}

func (s *Storage) SetNSFW(ctx context.Context, id uuid.UUID, nsfw bool) error {
	const op = "storage.SetNSFW"
	res, err := s.exec(ctx, s.db, `UPDATE media SET nsfw = ? WHERE id = ?`, nsfw, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(op, res, fmt.Sprintf("media %s", id))
}

// BumpRandomCount records that a media item was served by random selection.
func (s *Storage) BumpRandomCount(ctx context.Context, id uuid.UUID) error {
	const op = "storage.BumpRandomCount"
	res, err := s.exec(ctx, s.db, `UPDATE media SET count_random = count_random + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(op, res, fmt.Sprintf("media %s", id))
}

// RandomCandidates returns the least served media first.
func (s *Storage) RandomCandidates(ctx context.Context, includeNSFW bool, limit int) ([]models.Media, error) {
	const op = "storage.RandomCandidates"
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + mediaColumns + ` FROM media`
	args := []any{}
	if !includeNSFW {
		query += ` WHERE nsfw = ?`
		args = append(args, false)
	}
	query += ` ORDER BY count_random ASC, timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// PurgeMedia is the privileged cascade delete. It removes tag links, pack
// memberships and delete votes together with the media row, keeping every
// counter and pack position consistent.
func (s *Storage) PurgeMedia(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const op = "storage.PurgeMedia"

	var purged *models.Media
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMedia(s.queryRow(ctx, tx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("media %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		purged = m

		if _, err := s.exec(ctx, tx,
			`UPDATE tags SET usage_count = usage_count - 1
			 WHERE id IN (SELECT tag_id FROM media_tags WHERE media_id = ?)`, id); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM media_tags WHERE media_id = ?`, id); err != nil {
			return err
		}

		packIDs, err := s.packsContaining(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, packID := range packIDs {
			if err := s.lockPack(ctx, tx, packID); err != nil {
				return err
			}
			if err := s.removeMemberTx(ctx, tx, packID, id); err != nil {
				return err
			}
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM delete_requests WHERE media_id = ?`, id); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM media WHERE id = ?`, id); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return purged, nil
}

func expectAffected(op string, res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %s: %w", op, what, models.ErrNotFound)
	}
	return nil
}
