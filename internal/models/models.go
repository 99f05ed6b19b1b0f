package models

import (
	"time"

	"github.com/google/uuid"
)

type Verdict string

const (
	VerdictNovel    Verdict = "novel"
	VerdictExactDup Verdict = "exact-duplicate"
	VerdictNearDup  Verdict = "near-duplicate"
	VerdictRejected Verdict = "rejected"
)

const (
	DefaultMaxStickers  = 30
	DefaultDeleteQuorum = 3
)

type Media struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ChatID        string    `db:"chat_id" json:"chat_id"`
	GroupID       *string   `db:"group_id" json:"group_id,omitempty"`
	SenderID      *string   `db:"sender_id" json:"sender_id,omitempty"`
	FilePath      string    `db:"file_path" json:"file_path"` // blob storage key
	Mimetype      string    `db:"mimetype" json:"mimetype"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
	Description   *string   `db:"description" json:"description,omitempty"`
	HashMD5       string    `db:"hash_md5" json:"hash_md5"`
	HashVisual    *string   `db:"hash_visual" json:"hash_visual,omitempty"`
	NSFW          bool      `db:"nsfw" json:"nsfw"`
	CountRandom   int64     `db:"count_random" json:"count_random"`
	ExtractedText *string   `db:"extracted_text" json:"extracted_text,omitempty"`
	FileSize      int64     `db:"file_size" json:"file_size"`
}

type Tag struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	UsageCount int64  `db:"usage_count" json:"usage_count"`
}

type StickerPack struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  *string   `db:"description" json:"description,omitempty"`
	CreatedBy    *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	StickerCount int       `db:"sticker_count" json:"sticker_count"`
	MaxStickers  int       `db:"max_stickers" json:"max_stickers"`
}

func (p StickerPack) Full() bool { return p.StickerCount >= p.MaxStickers }

type PackSticker struct {
	PackID   int64     `db:"pack_id" json:"pack_id"`
	Media    Media     `json:"media"`
	Position int       `db:"position" json:"position"`
	AddedAt  time.Time `db:"added_at" json:"added_at"`
}

type DeleteRequest struct {
	ID               int64     `db:"id" json:"id"`
	MediaID          uuid.UUID `db:"media_id" json:"media_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	GroupID          *string   `db:"group_id" json:"group_id,omitempty"`
	FirstRequestedAt time.Time `db:"first_requested_at" json:"first_requested_at"`
	LastRequestedAt  time.Time `db:"last_requested_at" json:"last_requested_at"`
}

// PendingDeletion aggregates the votes cast against one media item.
type PendingDeletion struct {
	MediaID          uuid.UUID `json:"media_id"`
	Votes            int       `json:"votes"`
	FirstRequestedAt time.Time `json:"first_requested_at"`
	LastRequestedAt  time.Time `json:"last_requested_at"`
}

type ProcessingLogEntry struct {
	ID        int64      `db:"id" json:"id"`
	MediaID   *uuid.UUID `db:"media_id" json:"media_id,omitempty"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   time.Time  `db:"finished_at" json:"finished_at"`
	Duration  int64      `db:"duration_ms" json:"duration_ms"`
	MediaType string     `db:"media_type" json:"media_type"`
	FileSize  int64      `db:"file_size_bytes" json:"file_size_bytes"`
	Success   bool       `db:"success" json:"success"`
	Verdict   Verdict    `db:"verdict" json:"verdict"`
}

type ProcessingStats struct {
	Attempts      int64   `json:"attempts"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	TotalBytes    int64   `json:"total_bytes"`
}

// MediaView is the read-only projection served to reporting clients.
type MediaView struct {
	Media
	Tags        []string `json:"tags"`
	Packs       []string `json:"packs"`
	DeleteVotes int      `json:"delete_votes"`
}

type Page struct {
	Limit  int
	Offset int
}

const maxPageSize = 200

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// IngestRequest is one payload submitted for cataloging, from HTTP or Kafka.
type IngestRequest struct {
	Data               []byte
	ClaimedMime        string
	ChatID             string
	GroupID            string
	SenderID           string
	Caption            string
	AllowNearDuplicate bool

	// Source labels metrics and logs ("http", "kafka").
	Source string
}

type IngestResult struct {
	MediaID    uuid.UUID `json:"media_id"`
	Verdict    Verdict   `json:"verdict"`
	Mimetype   string    `json:"mimetype"`
	HashMD5    string    `json:"hash_md5"`
	HashVisual string    `json:"hash_visual,omitempty"`
	StorageKey string    `json:"storage_key,omitempty"`
	Sanitized  bool      `json:"sanitized"`
	Notes      []string  `json:"notes,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Distance   *int      `json:"distance,omitempty"`

	// Data is the sanitized payload, ready to be sent back out.
	Data []byte `json:"-"`
}
