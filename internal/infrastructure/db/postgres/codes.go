package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// CodeRegistry implements ports.EnrollmentRegistry.
type CodeRegistry struct {
	db      DBTX
	timeout time.Duration
}

var _ ports.EnrollmentRegistry = (*CodeRegistry)(nil)

// NewCodeRegistry returns a registry bound to db.
func NewCodeRegistry(db DBTX, timeout time.Duration) *CodeRegistry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CodeRegistry{db: db, timeout: timeout}
}

// Insert stores a code. The group must exist.
func (r *CodeRegistry) Insert(ctx context.Context, c domain.EnrollmentCode) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollment_codes (code, group_id) VALUES ($1, $2)`, c.Code, c.GroupID)
	if err != nil {
		return mapError("insert code", err)
	}
	return nil
}

// Consume deletes the code and returns its group in one statement, so two
// concurrent redemptions of the same code cannot both succeed.
func (r *CodeRegistry) Consume(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var groupID string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM enrollment_codes WHERE code = $1 RETURNING group_id`, code,
	).Scan(&groupID)
	if err != nil {
		return "", mapError("consume code", err)
	}
	return groupID, nil
}

func (r *CodeRegistry) List(ctx context.Context) ([]domain.EnrollmentCode, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT code, group_id FROM enrollment_codes ORDER BY created_at`)
	if err != nil {
		return nil, mapError("list codes", err)
	}
	defer rows.Close()

	var out []domain.EnrollmentCode
	for rows.Next() {
		var c domain.EnrollmentCode
		if err := rows.Scan(&c.Code, &c.GroupID); err != nil {
			return nil, mapError("list codes", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Revoke returns domain.ErrNotFound when the code is already gone.
func (r *CodeRegistry) Revoke(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollment_codes WHERE code = $1`, code)
	if err != nil {
		return mapError("revoke code", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ DBTX = (*sql.DB)(nil)
