package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stickervault/internal/events"
	"stickervault/internal/metrics"
	"stickervault/internal/models"
	"stickervault/internal/storage"
)

type VoteStore interface {
	RegisterVote(ctx context.Context, mediaID uuid.UUID, userID string, groupID *string) (*storage.VoteOutcome, error)
	Tally(ctx context.Context, mediaID uuid.UUID, groupID *string) (int, error)
	ClearVotes(ctx context.Context, mediaID uuid.UUID) (int64, error)
}

type VoteResult struct {
	Request  *models.DeleteRequest `json:"request"`
	Inserted bool                  `json:"inserted"`
	Tally    int                   `json:"tally"`
	Quorum   int                   `json:"quorum"`
	Eligible bool                  `json:"eligible"`
}

// Voter collects delete votes. It only reports eligibility; removing the
// media is left to an operator.
type Voter struct {
	store     VoteStore
	publisher events.Publisher
	quorum    int
	log       zerolog.Logger
}

func NewVoter(store VoteStore, publisher events.Publisher, quorum int, log zerolog.Logger) *Voter {
	if quorum <= 0 {
		quorum = models.DefaultDeleteQuorum
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Voter{store: store, publisher: publisher, quorum: quorum, log: log.With().Str("component", "voter").Logger()}
}

func (v *Voter) Quorum() int { return v.quorum }

// Vote registers userID's request and returns the updated tally. Only the
// vote that carries the tally across quorum publishes delete_eligible.
func (v *Voter) Vote(ctx context.Context, mediaID uuid.UUID, userID, groupID string) (*VoteResult, error) {
	const op = "catalog.Vote"

	var group *string
	if g := strings.TrimSpace(groupID); g != "" {
		group = &g
	}
	out, err := v.store.RegisterVote(ctx, mediaID, userID, group)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	kind := "repeat"
	if out.Inserted {
		kind = "new"
	}
	metrics.VotesTotal.WithLabelValues(kind).Inc()

	res := &VoteResult{
		Request:  out.Request,
		Inserted: out.Inserted,
		Tally:    out.After,
		Quorum:   v.quorum,
		Eligible: out.After >= v.quorum,
	}

	if out.Before < v.quorum && out.After >= v.quorum {
		metrics.DeleteEligibleTotal.Inc()
		v.log.Warn().Str("media_id", mediaID.String()).Int("votes", out.After).Msg("media reached delete quorum")
		id := mediaID
		e := events.Event{Type: events.TypeDeleteEligible, MediaID: &id, Votes: out.After, OccurredAt: time.Now().UTC()}
		if err := v.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
			v.log.Warn().Err(err).Msg("event publish failed")
		}
	}
	return res, nil
}

// Tally counts distinct voters, optionally limited to one group.
func (v *Voter) Tally(ctx context.Context, mediaID uuid.UUID, groupID string) (int, bool, error) {
	var group *string
	if g := strings.TrimSpace(groupID); g != "" {
		group = &g
	}
	n, err := v.store.Tally(ctx, mediaID, group)
	if err != nil {
		return 0, false, err
	}
	return n, v.Eligible(n), nil
}

func (v *Voter) Eligible(tally int) bool { return tally >= v.quorum }

// Dismiss drops all votes on a media item after a takedown is rejected.
func (v *Voter) Dismiss(ctx context.Context, mediaID uuid.UUID) (int64, error) {
	n, err := v.store.ClearVotes(ctx, mediaID)
	if err != nil {
		return 0, err
	}
	v.log.Info().Str("media_id", mediaID.String()).Int64("votes", n).Msg("delete votes dismissed")
	return n, nil
}
