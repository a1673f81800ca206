package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// ParentLinkRepository handles parent↔student links. Existence of a
// link is the authorization; there is no status column.
type ParentLinkRepository struct {
	db *sqlx.DB
}

// NewParentLinkRepository constructs the repository.
func NewParentLinkRepository(db *sqlx.DB) *ParentLinkRepository {
	return &ParentLinkRepository{db: db}
}

// Link creates the pair; idempotent on the unique pair.
func (r *ParentLinkRepository) Link(ctx context.Context, parentID, studentID, relationship string) error {
	const query = `INSERT INTO parent_student_links (parent_id, student_id, relationship, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (parent_id, student_id) DO UPDATE SET relationship = EXCLUDED.relationship`
	if _, err := r.db.ExecContext(ctx, query, parentID, studentID, relationship, time.Now().UTC()); err != nil {
		return fmt.Errorf("link parent: %w", err)
	}
	return nil
}

// Unlink removes the pair.
func (r *ParentLinkRepository) Unlink(ctx context.Context, parentID, studentID string) error {
	const query = `DELETE FROM parent_student_links WHERE parent_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, parentID, studentID); err != nil {
		return fmt.Errorf("unlink parent: %w", err)
	}
	return nil
}

// Exists reports whether the link exists.
func (r *ParentLinkRepository) Exists(ctx context.Context, parentID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM parent_student_links WHERE parent_id = $1 AND student_id = $2 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, parentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check parent link: %w", err)
	}
	return true, nil
}

// ListChildren returns the links for a parent.
func (r *ParentLinkRepository) ListChildren(ctx context.Context, parentID string) ([]models.ParentStudentLink, error) {
	const query = `SELECT parent_id, student_id, relationship, created_at FROM parent_student_links WHERE parent_id = $1`
	var links []models.ParentStudentLink
	if err := r.db.SelectContext(ctx, &links, query, parentID); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return links, nil
}
