package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// AuditReport counts the rows Recount had to correct.
type AuditReport struct {
	TagsFixed      int64 `json:"tags_fixed"`
	PacksFixed     int64 `json:"packs_fixed"`
	PositionsMoved int   `json:"positions_moved"`
}

func (r AuditReport) Clean() bool {
	return r.TagsFixed == 0 && r.PacksFixed == 0 && r.PositionsMoved == 0
}

// Recount derives usage_count and sticker_count from their source rows and
// closes any gaps in pack positions.
func (s *Storage) Recount(ctx context.Context) (AuditReport, error) {
	const op = "storage.Recount"

	var report AuditReport
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx,
			`UPDATE tags SET usage_count = (SELECT COUNT(*) FROM media_tags mt WHERE mt.tag_id = tags.id)
			 WHERE usage_count <> (SELECT COUNT(*) FROM media_tags mt WHERE mt.tag_id = tags.id)`)
		if err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		if report.TagsFixed, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = s.exec(ctx, tx,
			`UPDATE sticker_packs SET sticker_count = (SELECT COUNT(*) FROM pack_stickers ps WHERE ps.pack_id = sticker_packs.id)
			 WHERE sticker_count <> (SELECT COUNT(*) FROM pack_stickers ps WHERE ps.pack_id = sticker_packs.id)`)
		if err != nil {
			return fmt.Errorf("packs: %w", err)
		}
		if report.PacksFixed, err = res.RowsAffected(); err != nil {
			return err
		}

		rows, err := s.query(ctx, tx, `SELECT id FROM sticker_packs ORDER BY id`)
		if err != nil {
			return err
		}
		var packIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			packIDs = append(packIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range packIDs {
			moved, err := s.renumberTx(ctx, tx, id)
			if err != nil {
				return fmt.Errorf("renumber pack %d: %w", id, err)
			}
			report.PositionsMoved += moved
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, fmt.Errorf("%s: %w", op, err)
	}
	if !report.Clean() {
		s.log.Warn().
			Int64("tags_fixed", report.TagsFixed).
			Int64("packs_fixed", report.PacksFixed).
			Int("positions_moved", report.PositionsMoved).
			Msg("counter drift corrected")
	}
	return report, nil
}
