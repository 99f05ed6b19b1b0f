package hashing

import (
	"github.com/google/uuid"

	"stickervault/internal/models"
)

// Match is the closest stored fingerprint found for a candidate.
type Match struct {
	ID       uuid.UUID
	Distance int
}

// Policy decides whether a payload is novel, an exact duplicate or a near
// duplicate.
type Policy struct {
	Threshold int
	AllowNear bool
}

// Decide applies the dedup rules in order: exact hash match, then visual
// distance within Threshold, then novel. The returned error is nil when
// ingestion may proceed.
func (p Policy) Decide(exact *uuid.UUID, nearest *Match) (models.Verdict, error) {
	if exact != nil {
		return models.VerdictExactDup, &models.DuplicateError{ExistingID: *exact}
	}
	if nearest != nil && nearest.Distance <= p.Threshold {
		if p.AllowNear {
			return models.VerdictNearDup, nil
		}
		return models.VerdictNearDup, &models.NearDuplicateError{ExistingID: nearest.ID, Distance: nearest.Distance}
	}
	return models.VerdictNovel, nil
}
