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

// AttendanceRepository handles attendance rows. Uniqueness is dual-key:
// per (group, student, lesson) when a lesson is linked, per
// (group, student, date) otherwise. Partial unique indexes back each
// path; both writes are atomic upserts so concurrent marks for the
// same key converge to one row, last write wins.
//
// The two keys do not see each other: date-keyed rows written before a
// lesson existed are not merged when later marks carry the lesson id.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes one attendance mark, choosing the conflict target from
// the presence of LessonID.
func (r *AttendanceRepository) Upsert(ctx context.Context, att *models.Attendance) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	att.UpdatedAt = now

	if att.LessonID != nil {
		const query = `INSERT INTO attendances (id, center_id, group_id, student_id, lesson_id, attended_on, status, note, marked_by, created_at, updated_at)
        VALUES (:id, :center_id, :group_id, :student_id, :lesson_id, :attended_on, :status, :note, :marked_by, :created_at, :updated_at)
        ON CONFLICT (group_id, student_id, lesson_id) WHERE lesson_id IS NOT NULL
        DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
		if _, err := r.db.NamedExecContext(ctx, query, att); err != nil {
			return fmt.Errorf("upsert lesson attendance: %w", err)
		}
		return nil
	}

	const query = `INSERT INTO attendances (id, center_id, group_id, student_id, lesson_id, attended_on, status, note, marked_by, created_at, updated_at)
        VALUES (:id, :center_id, :group_id, :student_id, NULL, :attended_on, :status, :note, :marked_by, :created_at, :updated_at)
        ON CONFLICT (group_id, student_id, attended_on) WHERE lesson_id IS NULL
        DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, att); err != nil {
		return fmt.Errorf("upsert daily attendance: %w", err)
	}
	return nil
}

// FindByID returns an attendance row by its ID.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	const query = `SELECT id, center_id, group_id, student_id, lesson_id, attended_on, status, note, marked_by, created_at, updated_at
        FROM attendances WHERE id = $1`
	var att models.Attendance
	if err := r.db.GetContext(ctx, &att, query, id); err != nil {
		return nil, err
	}
	return &att, nil
}

// List returns attendance rows filtered by the provided criteria.
// CenterID is the tenancy boundary.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM attendances a
JOIN users u ON u.id = a.student_id
JOIN groups g ON g.id = a.group_id`
	var conditions []string
	var args []interface{}

	if filter.CenterID != "" {
		conditions = append(conditions, fmt.Sprintf("a.center_id = $%d", len(args)+1))
		args = append(args, filter.CenterID)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, fmt.Sprintf("a.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.LessonID != "" {
		conditions = append(conditions, fmt.Sprintf("a.lesson_id = $%d", len(args)+1))
		args = append(args, filter.LessonID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.attended_on >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.attended_on <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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

	query := fmt.Sprintf(`SELECT a.id, a.center_id, a.group_id, a.student_id, a.lesson_id, a.attended_on, a.status, a.note, a.marked_by, a.created_at, a.updated_at,
        u.name AS student_name, g.name AS group_name
        %s ORDER BY a.attended_on DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// SheetRows returns ordered rows for an exported attendance sheet.
func (r *AttendanceRepository) SheetRows(ctx context.Context, groupID string, from, to time.Time) ([]models.AttendanceSheetRow, error) {
	const query = `SELECT u.name AS student_name, a.attended_on, a.status, a.note
        FROM attendances a
        JOIN users u ON u.id = a.student_id
        WHERE a.group_id = $1 AND a.attended_on >= $2 AND a.attended_on <= $3
        ORDER BY a.attended_on, u.name`
	var rows []models.AttendanceSheetRow
	if err := r.db.SelectContext(ctx, &rows, query, groupID, from, to); err != nil {
		return nil, fmt.Errorf("sheet rows: %w", err)
	}
	return rows, nil
}

// Delete removes an attendance row.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM attendances WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}
