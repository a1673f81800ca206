package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
	"github.com/edustack/lcm-api/pkg/export"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, att *models.Attendance) error
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	SheetRows(ctx context.Context, groupID string, from, to time.Time) ([]models.AttendanceSheetRow, error)
	Delete(ctx context.Context, id string) error
}

type membershipChecker interface {
	IsApprovedMember(ctx context.Context, groupID, studentID string) (bool, error)
}

// MarkAttendanceRequest marks one student. When LessonID is set the
// mark is unique per lesson; otherwise per calendar date.
type MarkAttendanceRequest struct {
	StudentID  string                  `json:"student_id" validate:"required"`
	LessonID   *string                 `json:"lesson_id"`
	AttendedOn time.Time               `json:"attended_on" validate:"required"`
	Status     models.AttendanceStatus `json:"status" validate:"required"`
	Note       *string                 `json:"note"`
}

// BulkMarkRequest marks a whole group for one lesson or date at once.
type BulkMarkRequest struct {
	LessonID   *string    `json:"lesson_id"`
	AttendedOn time.Time  `json:"attended_on" validate:"required"`
	Marks      []BulkMark `json:"marks" validate:"required,min=1,dive"`
}

// BulkMark is one entry of a bulk marking call.
type BulkMark struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
	Note      *string                 `json:"note"`
}

// ExportFormat selects the attendance sheet output encoding.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

var sheetHeaders = []string{"Student", "Date", "Status", "Note"}

// AttendanceService marks and reads attendance. Students and parents
// have no write or read rules here; their views come through rosters
// and results.
type AttendanceService struct {
	repo      attendanceRepository
	groups    groupReader
	members   membershipChecker
	engine    *authz.Engine
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, groups groupReader, members membershipChecker, engine *authz.Engine, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		groups:    groups,
		members:   members,
		engine:    engine,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// Mark upserts one attendance row. Re-marking the same key replaces
// the status instead of erroring.
func (s *AttendanceService) Mark(ctx context.Context, actor authz.Actor, groupID string, req MarkAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
	}
	group, err := s.writableGroup(ctx, actor, groupID, authz.ActionCreate)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, group.ID, req.StudentID); err != nil {
		return nil, err
	}
	att := &models.Attendance{
		CenterID:   group.CenterID,
		GroupID:    group.ID,
		StudentID:  req.StudentID,
		LessonID:   req.LessonID,
		AttendedOn: req.AttendedOn,
		Status:     req.Status,
		Note:       req.Note,
		MarkedBy:   actor.ID,
	}
	if err := s.repo.Upsert(ctx, att); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return att, nil
}

// BulkMark marks every listed student for one lesson or date. Each row
// upserts independently; a failure stops at that row.
func (s *AttendanceService) BulkMark(ctx context.Context, actor authz.Actor, groupID string, req BulkMarkRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	for _, mark := range req.Marks {
		if !mark.Status.Valid() {
			return 0, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
		}
	}
	group, err := s.writableGroup(ctx, actor, groupID, authz.ActionCreate)
	if err != nil {
		return 0, err
	}
	for _, mark := range req.Marks {
		if err := s.requireMember(ctx, group.ID, mark.StudentID); err != nil {
			return 0, err
		}
	}
	marked := 0
	for _, mark := range req.Marks {
		att := &models.Attendance{
			CenterID:   group.CenterID,
			GroupID:    group.ID,
			StudentID:  mark.StudentID,
			LessonID:   req.LessonID,
			AttendedOn: req.AttendedOn,
			Status:     mark.Status,
			Note:       mark.Note,
			MarkedBy:   actor.ID,
		}
		if err := s.repo.Upsert(ctx, att); err != nil {
			return marked, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("failed to mark attendance for student %s", mark.StudentID))
		}
		marked++
	}
	return marked, nil
}

// List returns attendance records within the actor's visibility.
func (s *AttendanceService) List(ctx context.Context, actor authz.Actor, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	if filter.GroupID != "" {
		if _, err := s.writableGroup(ctx, actor, filter.GroupID, authz.ActionView); err != nil {
			return nil, 0, err
		}
	} else {
		scope, err := s.engine.CenterScope(ctx, actor)
		if err != nil {
			if errors.Is(err, authz.ErrNoCenter) {
				return []models.AttendanceRecord{}, 0, nil
			}
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
		}
		if !scope.All {
			filter.CenterID = scope.CenterID
		}
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, total, nil
}

// Delete removes one attendance row.
func (s *AttendanceService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	att, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if _, err := s.writableGroup(ctx, actor, att.GroupID, authz.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}
	return nil
}

// ExportSheet renders a group's attendance between two dates as CSV or
// PDF bytes plus a suggested content type.
func (s *AttendanceService) ExportSheet(ctx context.Context, actor authz.Actor, groupID string, from, to time.Time, format ExportFormat) ([]byte, string, error) {
	group, err := s.writableGroup(ctx, actor, groupID, authz.ActionView)
	if err != nil {
		return nil, "", err
	}
	if to.Before(from) {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "date range is inverted")
	}
	rows, err := s.repo.SheetRows(ctx, groupID, from, to)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance sheet")
	}

	data := export.Dataset{Headers: sheetHeaders}
	for _, row := range rows {
		note := ""
		if row.Note != nil {
			note = *row.Note
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student": row.StudentName,
			"Date":    row.Date.Format("2006-01-02"),
			"Status":  string(row.Status),
			"Note":    note,
		})
	}

	switch format {
	case ExportCSV, "":
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return out, "text/csv", nil
	case ExportPDF:
		title := fmt.Sprintf("Attendance - %s", group.Name)
		out, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return out, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// requireMember rejects marks for students who are not approved
// members of the group. Pending and rejected students accrue no rows.
func (s *AttendanceService) requireMember(ctx context.Context, groupID, studentID string) error {
	ok, err := s.members.IsApprovedMember(ctx, groupID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not an approved member of the group", studentID))
	}
	return nil
}

// writableGroup loads the group and checks the attendance rule for the
// action. Out-of-scope groups read as not found.
func (s *AttendanceService) writableGroup(ctx context.Context, actor authz.Actor, groupID string, action authz.Action) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	ok, err := s.engine.Can(ctx, actor, action, authz.GroupChildResource(authz.EntityAttendance, "", group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	return group, nil
}
