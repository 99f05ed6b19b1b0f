package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stickervault/internal/models"
	"stickervault/internal/tags"
)

// MediaQuery filters the media listing. Zero values mean no filter.
type MediaQuery struct {
	Tag      string
	SenderID string
	NSFW     *bool
	Page     models.Page
}

// ListMedia returns one page of media, newest first, joined with tags, pack
// names and delete-vote tallies, plus the total number of matching rows.
func (s *Storage) ListMedia(ctx context.Context, q MediaQuery) ([]models.MediaView, int, error) {
	const op = "storage.ListMedia"

	var (
		where []string
		args  []any
	)
	if tag := tags.Normalize(q.Tag); len(tag) > 0 {
		where = append(where, `id IN (SELECT mt.media_id FROM media_tags mt JOIN tags t ON t.id = mt.tag_id WHERE t.name = ?)`)
		args = append(args, tag[0])
	}
	if sender := strings.TrimSpace(q.SenderID); sender != "" {
		where = append(where, `sender_id = ?`)
		args = append(args, sender)
	}
	if q.NSFW != nil {
		where = append(where, `nsfw = ?`)
		args = append(args, *q.NSFW)
	}
	clause := ""
	if len(where) > 0 {
		clause = ` WHERE ` + strings.Join(where, ` AND `)
	}

	var total int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM media`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	page := q.Page.Normalize()
	rows, err := s.query(ctx, s.db,
		`SELECT `+mediaColumns+` FROM media`+clause+` ORDER BY timestamp DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var views []models.MediaView
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		views = append(views, models.MediaView{Media: *m, Tags: []string{}, Packs: []string{}})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	rows.Close()

	if err := s.decorate(ctx, views); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return views, total, nil
}

func (s *Storage) GetMediaView(ctx context.Context, id uuid.UUID) (*models.MediaView, error) {
	const op = "storage.GetMediaView"
	m, err := s.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	views := []models.MediaView{{Media: *m, Tags: []string{}, Packs: []string{}}}
	if err := s.decorate(ctx, views); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &views[0], nil
}

// decorate fills tags, pack names and vote tallies for a page of media.
func (s *Storage) decorate(ctx context.Context, views []models.MediaView) error {
	if len(views) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]*models.MediaView, len(views))
	ids := make([]any, 0, len(views))
	for i := range views {
		index[views[i].ID] = &views[i]
		ids = append(ids, views[i].ID)
	}
	in := placeholders(len(ids))

	err := s.eachPair(ctx,
		`SELECT mt.media_id, t.name FROM media_tags mt JOIN tags t ON t.id = mt.tag_id
		 WHERE mt.media_id IN (`+in+`) ORDER BY t.name`, ids,
		func(id uuid.UUID, name string) { index[id].Tags = append(index[id].Tags, name) })
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}

	err = s.eachPair(ctx,
		`SELECT ps.media_id, p.name FROM pack_stickers ps JOIN sticker_packs p ON p.id = ps.pack_id
		 WHERE ps.media_id IN (`+in+`) ORDER BY p.name`, ids,
		func(id uuid.UUID, name string) { index[id].Packs = append(index[id].Packs, name) })
	if err != nil {
		return fmt.Errorf("packs: %w", err)
	}

	rows, err := s.query(ctx, s.db,
		`SELECT media_id, COUNT(DISTINCT user_id) FROM delete_requests
		 WHERE media_id IN (`+in+`) GROUP BY media_id`, ids...)
	if err != nil {
		return fmt.Errorf("votes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    uuid.UUID
			votes int
		)
		if err := rows.Scan(&id, &votes); err != nil {
			return err
		}
		if v, ok := index[id]; ok {
			v.DeleteVotes = votes
		}
	}
	return rows.Err()
}

func (s *Storage) eachPair(ctx context.Context, query string, args []any, fn func(uuid.UUID, string)) error {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		fn(id, name)
	}
	return rows.Err()
}

// PackStickers pages through a pack in position order.
func (s *Storage) PackStickers(ctx context.Context, packID int64, page models.Page) ([]models.PackSticker, error) {
	const op = "storage.PackStickers"

	page = page.Normalize()
	rows, err := s.query(ctx, s.db,
		`SELECT ps.position, ps.added_at, `+qualified("m", mediaColumns)+`
		 FROM pack_stickers ps JOIN media m ON m.id = ps.media_id
		 WHERE ps.pack_id = ?
		 ORDER BY ps.position ASC LIMIT ? OFFSET ?`, packID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.PackSticker
	for rows.Next() {
		var (
			position int
			added    int64
		)
		m, err := scanMedia(prefixScanner{row: rows, prefix: []any{&position, &added}})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, models.PackSticker{PackID: packID, Media: *m, Position: position, AddedAt: fromMillis(added)})
	}
	return out, rows.Err()
}

// ListPacks pages through packs, most recently changed first. search matches
// name or description.
func (s *Storage) ListPacks(ctx context.Context, search string, page models.Page) ([]models.StickerPack, int, error) {
	const op = "storage.ListPacks"

	clause := ""
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(escapeLike(search)) + "%"
		clause = ` WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM sticker_packs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	page = page.Normalize()
	rows, err := s.query(ctx, s.db,
		`SELECT `+packColumns+` FROM sticker_packs`+clause+` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.StickerPack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// prefixScanner lets scanMedia read rows that carry extra leading columns.
type prefixScanner struct {
	row    rowScanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

func qualified(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
