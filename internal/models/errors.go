package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrDuplicate        = errors.New("duplicate")
	ErrNearDuplicate    = errors.New("near duplicate")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotFound         = errors.New("not found")
	ErrConstraint       = errors.New("constraint violation")
)

// DuplicateError is returned when an exact copy of the payload is already
// stored, or when a pack already holds the media. ExistingID names the row
// that won.
type DuplicateError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate of media %s", e.ExistingID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// NearDuplicateError is advisory: the caller may re-submit with the
// near-duplicate override enabled.
type NearDuplicateError struct {
	ExistingID uuid.UUID
	Distance   int
}

func (e *NearDuplicateError) Error() string {
	return fmt.Sprintf("near duplicate of media %s (distance %d)", e.ExistingID, e.Distance)
}

func (e *NearDuplicateError) Is(target error) bool { return target == ErrNearDuplicate }

// Validationf builds an ErrValidation with context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Terminal reports whether err must never be retried.
func Terminal(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrConstraint) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrNearDuplicate)
}
