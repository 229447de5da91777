package ports

import (
	"context"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

// EnrollmentRegistry stores single-use enrollment codes.
type EnrollmentRegistry interface {
	Insert(ctx context.Context, code domain.EnrollmentCode) error
	// Consume atomically deletes the code and returns its group. Of several
	// concurrent calls for the same code only one succeeds; the others get
	// domain.ErrNotFound.
	Consume(ctx context.Context, code string) (string, error)
	List(ctx context.Context) ([]domain.EnrollmentCode, error)
	Revoke(ctx context.Context, code string) error
}

// AttemptCounter tracks consecutive failed enrollment attempts per principal.
type AttemptCounter interface {
	// Increment records one failure and returns the running count.
	Increment(ctx context.Context, principalID string) (int, error)
	Reset(ctx context.Context, principalID string) error
}
