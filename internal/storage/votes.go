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

const deleteRequestColumns = `id, media_id, user_id, group_id, first_requested_at, last_requested_at`

func scanDeleteRequest(row rowScanner) (*models.DeleteRequest, error) {
	var (
		r           models.DeleteRequest
		group       sql.NullString
		first, last int64
	)
	if err := row.Scan(&r.ID, &r.MediaID, &r.UserID, &group, &first, &last); err != nil {
		return nil, err
	}
	r.GroupID = stringPtr(group)
	r.FirstRequestedAt = fromMillis(first)
	r.LastRequestedAt = fromMillis(last)
	return &r, nil
}

// VoteOutcome is what one RegisterVote call changed. Before and After are
// the distinct voter counts across all groups around the upsert, read under
// the same lock, so exactly one call observes any given crossing.
type VoteOutcome struct {
	Request  *models.DeleteRequest
	Inserted bool
	Before   int
	After    int
}

// RegisterVote records a delete request. A repeat vote keeps
// first_requested_at and only moves last_requested_at forward. The media row
// is locked first so votes on one item serialize; sqlite gets the same from
// its immediate transactions.
func (s *Storage) RegisterVote(ctx context.Context, mediaID uuid.UUID, userID string, groupID *string) (*VoteOutcome, error) {
	const op = "storage.RegisterVote"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, models.Validationf("user id is required"))
	}

	out := &VoteOutcome{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockMedia(ctx, tx, mediaID); err != nil {
			return err
		}
		// read under the lock so timestamps follow commit order
		now := toMillis(s.now())

		var existing int
		if err := s.queryRow(ctx, tx,
			`SELECT COUNT(*) FROM delete_requests WHERE media_id = ? AND user_id = ?`,
			mediaID, userID).Scan(&existing); err != nil {
			return err
		}
		if err := s.queryRow(ctx, tx,
			`SELECT COUNT(DISTINCT user_id) FROM delete_requests WHERE media_id = ?`,
			mediaID).Scan(&out.Before); err != nil {
			return err
		}

		req, err := scanDeleteRequest(s.queryRow(ctx, tx,
			`INSERT INTO delete_requests (media_id, user_id, group_id, first_requested_at, last_requested_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (media_id, user_id) DO UPDATE SET
			   last_requested_at = CASE
			     WHEN excluded.last_requested_at > delete_requests.last_requested_at THEN excluded.last_requested_at
			     ELSE delete_requests.last_requested_at
			   END,
			   group_id = COALESCE(excluded.group_id, delete_requests.group_id)
			 RETURNING `+deleteRequestColumns,
			mediaID, userID, nullableString(groupID), now, now))
		if err != nil {
			return err
		}
		out.Request = req
		out.Inserted = existing == 0
		out.After = out.Before
		if out.Inserted {
			out.After++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// lockMedia takes the media row lock on postgres and reports a missing row.
func (s *Storage) lockMedia(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	query := `SELECT 1 FROM media WHERE id = ?`
	if s.dialect == dialectPostgres {
		query += ` FOR UPDATE`
	}
	var one int
	err := s.queryRow(ctx, tx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("media %s: %w", id, models.ErrNotFound)
	}
	return err
}

// Tally counts distinct voters, optionally only those voting from groupID.
func (s *Storage) Tally(ctx context.Context, mediaID uuid.UUID, groupID *string) (int, error) {
	const op = "storage.Tally"

	query := `SELECT COUNT(DISTINCT user_id) FROM delete_requests WHERE media_id = ?`
	args := []any{mediaID}
	if groupID != nil {
		query += ` AND group_id = ?`
		args = append(args, *groupID)
	}
	var n int
	if err := s.queryRow(ctx, s.db, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Storage) Votes(ctx context.Context, mediaID uuid.UUID) ([]models.DeleteRequest, error) {
	const op = "storage.Votes"
	rows, err := s.query(ctx, s.db,
		`SELECT `+deleteRequestColumns+` FROM delete_requests WHERE media_id = ? ORDER BY first_requested_at, id`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.DeleteRequest
	for rows.Next() {
		r, err := scanDeleteRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ClearVotes drops every delete request for a media item, used when a
// takedown is rejected.
func (s *Storage) ClearVotes(ctx context.Context, mediaID uuid.UUID) (int64, error) {
	const op = "storage.ClearVotes"
	res, err := s.exec(ctx, s.db, `DELETE FROM delete_requests WHERE media_id = ?`, mediaID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected()
}

// PendingDeleteRequests ranks media by how many users asked for removal.
func (s *Storage) PendingDeleteRequests(ctx context.Context, limit int) ([]models.PendingDeletion, error) {
	const op = "storage.PendingDeleteRequests"
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.query(ctx, s.db,
		`SELECT media_id, COUNT(DISTINCT user_id) AS votes, MIN(first_requested_at), MAX(last_requested_at) AS latest
		 FROM delete_requests
		 GROUP BY media_id
		 ORDER BY votes DESC, latest DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.PendingDeletion
	for rows.Next() {
		var (
			p           models.PendingDeletion
			first, last int64
		)
		if err := rows.Scan(&p.MediaID, &p.Votes, &first, &last); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.FirstRequestedAt = fromMillis(first)
		p.LastRequestedAt = fromMillis(last)
		out = append(out, p)
	}
	return out, rows.Err()
}
