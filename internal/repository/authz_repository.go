package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// AuthzRepository backs the authorization engine's ownership graph
// with direct lookups. Every query is a point read so policy checks
// stay cheap.
type AuthzRepository struct {
	db *sqlx.DB
}

// NewAuthzRepository constructs the repository.
func NewAuthzRepository(db *sqlx.DB) *AuthzRepository {
	return &AuthzRepository{db: db}
}

// OwnedCenterID returns the center owned by the user, "" when none.
func (r *AuthzRepository) OwnedCenterID(ctx context.Context, userID string) (string, error) {
	const query = `SELECT id FROM centers WHERE owner_id = $1 LIMIT 1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("owned center: %w", err)
	}
	return id, nil
}

// CenterOwnerID returns the owning user of a center, "" when missing.
func (r *AuthzRepository) CenterOwnerID(ctx context.Context, centerID string) (string, error) {
	const query = `SELECT owner_id FROM centers WHERE id = $1`
	var owner string
	if err := r.db.GetContext(ctx, &owner, query, centerID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("center owner: %w", err)
	}
	return owner, nil
}

// GroupCenterID returns the owning center of a group.
func (r *AuthzRepository) GroupCenterID(ctx context.Context, groupID string) (string, error) {
	const query = `SELECT center_id FROM groups WHERE id = $1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, groupID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("group center: %w", err)
	}
	return id, nil
}

// GroupTeacherID returns the group's teacher, "" when unassigned.
func (r *AuthzRepository) GroupTeacherID(ctx context.Context, groupID string) (string, error) {
	const query = `SELECT COALESCE(teacher_id, '') FROM groups WHERE id = $1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, groupID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("group teacher: %w", err)
	}
	return id, nil
}

// IsApprovedMember reports an approved membership row.
func (r *AuthzRepository) IsApprovedMember(ctx context.Context, groupID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM group_students WHERE group_id = $1 AND student_id = $2 AND status = $3 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, groupID, studentID, models.MembershipApproved); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// HasApprovedLinkedChild reports whether any of the parent's linked
// students is an approved member of the group.
func (r *AuthzRepository) HasApprovedLinkedChild(ctx context.Context, parentID, groupID string) (bool, error) {
	const query = `SELECT 1 FROM parent_student_links psl
JOIN group_students gs ON gs.student_id = psl.student_id
WHERE psl.parent_id = $1 AND gs.group_id = $2 AND gs.status = $3 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, parentID, groupID, models.MembershipApproved); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check parent link: %w", err)
	}
	return true, nil
}

// IsAssistantInCenter reports approved enrollment in any group of the
// center.
func (r *AuthzRepository) IsAssistantInCenter(ctx context.Context, userID, centerID string) (bool, error) {
	const query = `SELECT 1 FROM group_students gs
JOIN groups g ON g.id = gs.group_id
WHERE gs.student_id = $1 AND g.center_id = $2 AND gs.status = $3 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, userID, centerID, models.MembershipApproved); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assistant enrollment: %w", err)
	}
	return true, nil
}
