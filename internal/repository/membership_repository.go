package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// MembershipRepository handles GroupStudent rows. The unique
// (group_id, student_id) constraint is the concurrency guard: all
// writes are atomic upserts, never check-then-insert.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Upsert writes a membership row with the supplied status, overwriting
// any prior status. Staff-initiated adds rely on this to force
// approved regardless of an earlier rejection.
func (r *MembershipRepository) Upsert(ctx context.Context, groupID, studentID string, status models.MembershipStatus, joinedAt *time.Time) error {
	const query = `INSERT INTO group_students (group_id, student_id, status, is_pay, joined_at, created_at, updated_at)
        VALUES ($1, $2, $3, FALSE, $4, $5, $5)
        ON CONFLICT (group_id, student_id)
        DO UPDATE SET status = EXCLUDED.status, joined_at = COALESCE(EXCLUDED.joined_at, group_students.joined_at), updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, groupID, studentID, status, joinedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// Find returns the membership row for a (group, student) pair.
func (r *MembershipRepository) Find(ctx context.Context, groupID, studentID string) (*models.GroupStudent, error) {
	const query = `SELECT group_id, student_id, status, is_pay, joined_at, created_at, updated_at
        FROM group_students WHERE group_id = $1 AND student_id = $2`
	var membership models.GroupStudent
	if err := r.db.GetContext(ctx, &membership, query, groupID, studentID); err != nil {
		return nil, err
	}
	return &membership, nil
}

// UpdateStatus transitions an existing row.
func (r *MembershipRepository) UpdateStatus(ctx context.Context, groupID, studentID string, status models.MembershipStatus, joinedAt *time.Time) error {
	const query = `UPDATE group_students SET status = $3, joined_at = COALESCE($4, joined_at), updated_at = $5
        WHERE group_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, groupID, studentID, status, joinedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update membership status: %w", err)
	}
	return nil
}

// Roster returns approved members only; pending and rejected rows never
// appear here.
func (r *MembershipRepository) Roster(ctx context.Context, groupID string) ([]models.GroupStudentDetail, error) {
	return r.listByStatus(ctx, groupID, models.MembershipApproved)
}

// Pending returns the open join requests for a group.
func (r *MembershipRepository) Pending(ctx context.Context, groupID string) ([]models.GroupStudentDetail, error) {
	return r.listByStatus(ctx, groupID, models.MembershipPending)
}

func (r *MembershipRepository) listByStatus(ctx context.Context, groupID string, status models.MembershipStatus) ([]models.GroupStudentDetail, error) {
	const query = `SELECT gs.group_id, gs.student_id, gs.status, gs.is_pay, gs.joined_at, gs.created_at, gs.updated_at,
        u.name AS student_name, u.email AS student_email
        FROM group_students gs
        JOIN users u ON u.id = gs.student_id
        WHERE gs.group_id = $1 AND gs.status = $2
        ORDER BY u.name`
	var rows []models.GroupStudentDetail
	if err := r.db.SelectContext(ctx, &rows, query, groupID, status); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return rows, nil
}

// Delete removes a membership row.
func (r *MembershipRepository) Delete(ctx context.Context, groupID, studentID string) error {
	const query = `DELETE FROM group_students WHERE group_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, groupID, studentID); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}
