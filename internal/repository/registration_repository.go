package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// RegistrationRepository performs the multi-step registration writes.
// Each method is a single all-or-nothing transaction: a user row must
// never persist without its center, role rows or membership.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// RegisterCenterAdmin creates the user, their owned center and the
// center_admin role row in one transaction. The user starts pending
// and the center inactive until admin approval.
func (r *RegistrationRepository) RegisterCenterAdmin(ctx context.Context, user *models.User, center *models.Center) error {
	prepareUser(user)
	user.ApprovalStatus = models.ApprovalPending

	if center.ID == "" {
		center.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	center.OwnerID = user.ID
	center.IsActive = false
	center.CreatedAt = now
	center.UpdatedAt = now
	user.CenterID = &center.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertUser = `INSERT INTO users (id, name, email, password_hash, status, approval_status, center_id, created_at, updated_at)
        VALUES (:id, :name, :email, :password_hash, :status, :approval_status, :center_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertUser, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	const insertCenter = `INSERT INTO centers (id, name, owner_id, is_active, phone, address, logo_url, created_at, updated_at)
        VALUES (:id, :name, :owner_id, :is_active, :phone, :address, :logo_url, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertCenter, center); err != nil {
		return fmt.Errorf("insert center: %w", err)
	}

	const insertRole = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, insertRole, user.ID, models.RoleCenterAdmin); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	return tx.Commit()
}

// CreateMember creates a staff or student user inside an existing
// center, assigns their roles and optionally attaches them to a group
// as an approved member, all in one transaction.
func (r *RegistrationRepository) CreateMember(ctx context.Context, user *models.User, roles []models.Role, groupID string) error {
	prepareUser(user)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member creation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertUser = `INSERT INTO users (id, name, email, password_hash, status, approval_status, center_id, created_at, updated_at)
        VALUES (:id, :name, :email, :password_hash, :status, :approval_status, :center_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertUser, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	const insertRole = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id, role) DO NOTHING`
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, insertRole, user.ID, role); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}

	if groupID != "" {
		now := time.Now().UTC()
		const insertMembership = `INSERT INTO group_students (group_id, student_id, status, is_pay, joined_at, created_at, updated_at)
            VALUES ($1, $2, $3, FALSE, $4, $4, $4)
            ON CONFLICT (group_id, student_id)
            DO UPDATE SET status = EXCLUDED.status, joined_at = EXCLUDED.joined_at, updated_at = EXCLUDED.updated_at`
		if _, err := tx.ExecContext(ctx, insertMembership, groupID, user.ID, models.MembershipApproved, now); err != nil {
			return fmt.Errorf("attach to group: %w", err)
		}
	}

	return tx.Commit()
}
