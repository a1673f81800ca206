package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// GroupRepository handles persistence of groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupColumns = `id, center_id, teacher_id, name, subject, days, start_time, session_count, is_active, created_at, updated_at`

// FindByID returns a group by its ID.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	query := fmt.Sprintf(`SELECT %s FROM groups WHERE id = $1`, groupColumns)
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// List returns groups filtered by the provided criteria. CenterID is
// the tenancy boundary; StudentID narrows to approved memberships.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	base := `FROM groups g`
	var conditions []string
	var args []interface{}

	if filter.CenterID != "" {
		conditions = append(conditions, fmt.Sprintf("g.center_id = $%d", len(args)+1))
		args = append(args, filter.CenterID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("g.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf(
			"g.id IN (SELECT gs.group_id FROM group_students gs WHERE gs.student_id = $%d AND gs.status = $%d)",
			len(args)+1, len(args)+2))
		args = append(args, filter.StudentID, models.MembershipApproved)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("g.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("g.is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(g.name ILIKE $%d OR g.subject ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT g.id, g.center_id, g.teacher_id, g.name, g.subject, g.days, g.start_time, g.session_count, g.is_active, g.created_at, g.updated_at
        %s ORDER BY g.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}
	return groups, total, nil
}

// Create persists a new group row.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	const query = `INSERT INTO groups (id, center_id, teacher_id, name, subject, days, start_time, session_count, is_active, created_at, updated_at)
        VALUES (:id, :center_id, :teacher_id, :name, :subject, :days, :start_time, :session_count, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Update persists mutable group fields. center_id is immutable.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE groups SET name = :name, subject = :subject, days = :days, start_time = :start_time,
        session_count = :session_count, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// ClearTeacher nulls the teaching link on every group taught by the
// user; the groups persist.
func (r *GroupRepository) ClearTeacher(ctx context.Context, teacherID string) error {
	const query = `UPDATE groups SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1`
	if _, err := r.db.ExecContext(ctx, query, teacherID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear teacher: %w", err)
	}
	return nil
}

// Delete removes a group and its dependent rows.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete group: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	steps := []string{
		`DELETE FROM attendances WHERE group_id = $1`,
		`DELETE FROM assessment_results WHERE assessment_id IN (SELECT id FROM assessments WHERE group_id = $1)`,
		`DELETE FROM assessments WHERE group_id = $1`,
		`DELETE FROM lessons WHERE group_id = $1`,
		`DELETE FROM group_students WHERE group_id = $1`,
		`DELETE FROM groups WHERE id = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
	}
	return tx.Commit()
}
