package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// ApprovalRepository resolves center admin registrations. The user's
// approval status and the owned center's activation move together in
// one transaction so a failure leaves the registration pending and
// retryable.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Resolve sets the user's approval status and, on approval, activates
// the center the user owns. Returns the activated center, nil when the
// user owns none.
func (r *ApprovalRepository) Resolve(ctx context.Context, userID string, status models.ApprovalStatus) (*models.Center, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve approval: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET approval_status = $2, updated_at = $3 WHERE id = $1`,
		userID, status, now); err != nil {
		return nil, fmt.Errorf("update approval status: %w", err)
	}

	var center *models.Center
	if status == models.ApprovalApproved {
		var c models.Center
		query := fmt.Sprintf(`SELECT %s FROM centers WHERE owner_id = $1`, centerColumns)
		err := tx.GetContext(ctx, &c, query, userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Admins without a center are approved as-is.
		case err != nil:
			return nil, fmt.Errorf("find owned center: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE centers SET is_active = TRUE, updated_at = $2 WHERE id = $1`,
				c.ID, now); err != nil {
				return nil, fmt.Errorf("activate center: %w", err)
			}
			c.IsActive = true
			center = &c
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve approval: %w", err)
	}
	return center, nil
}
