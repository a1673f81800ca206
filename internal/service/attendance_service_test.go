package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type mockAttendanceRepo struct {
	upserts    []models.Attendance
	byID       map[string]models.Attendance
	records    []models.AttendanceRecord
	sheetRows  []models.AttendanceSheetRow
	lastFilter models.AttendanceFilter
	deleted    []string
	failFor    string
}

func (m *mockAttendanceRepo) Upsert(_ context.Context, att *models.Attendance) error {
	if m.failFor != "" && att.StudentID == m.failFor {
		return errors.New("boom")
	}
	m.upserts = append(m.upserts, *att)
	return nil
}

func (m *mockAttendanceRepo) FindByID(_ context.Context, id string) (*models.Attendance, error) {
	if att, ok := m.byID[id]; ok {
		return &att, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) List(_ context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	m.lastFilter = filter
	return m.records, len(m.records), nil
}

func (m *mockAttendanceRepo) SheetRows(_ context.Context, _ string, _, _ time.Time) ([]models.AttendanceSheetRow, error) {
	return m.sheetRows, nil
}

func (m *mockAttendanceRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newAttendanceFixture() (*AttendanceService, *mockAttendanceRepo) {
	teacherID := "teacher-1"
	repo := &mockAttendanceRepo{byID: make(map[string]models.Attendance)}
	groups := &mockGroupReader{groups: map[string]models.Group{
		"group-1": {ID: "group-1", CenterID: "center-1", TeacherID: &teacherID, Name: "Algebra", IsActive: true},
		"group-2": {ID: "group-2", CenterID: "center-2", Name: "Remote", IsActive: true},
	}}
	graph := &stubGraph{
		ownedCenters: map[string]string{"owner-1": "center-1"},
		centerOwners: map[string]string{"center-1": "owner-1"},
		members: map[string]bool{
			"group-1/student-1": true,
			"group-1/student-2": true,
			"group-1/student-3": true,
		},
	}
	engine := authz.NewEngine(graph, nil)
	svc := NewAttendanceService(repo, groups, graph, engine, validator.New(), zap.NewNop())
	return svc, repo
}

func TestAttendanceMark(t *testing.T) {
	svc, repo := newAttendanceFixture()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	att, err := svc.Mark(context.Background(), teacherActor(), "group-1", MarkAttendanceRequest{
		StudentID:  "student-1",
		AttendedOn: day,
		Status:     models.AttendancePresent,
	})
	require.NoError(t, err)
	assert.Equal(t, "center-1", att.CenterID)
	assert.Equal(t, "teacher-1", att.MarkedBy)
	assert.Nil(t, att.LessonID)
	require.Len(t, repo.upserts, 1)
}

func TestAttendanceMarkLessonKeyed(t *testing.T) {
	svc, repo := newAttendanceFixture()
	lessonID := "lesson-1"

	att, err := svc.Mark(context.Background(), teacherActor(), "group-1", MarkAttendanceRequest{
		StudentID:  "student-1",
		LessonID:   &lessonID,
		AttendedOn: time.Now().UTC(),
		Status:     models.AttendanceLate,
	})
	require.NoError(t, err)
	require.NotNil(t, att.LessonID)
	assert.Equal(t, "lesson-1", *att.LessonID)
	assert.Len(t, repo.upserts, 1)
}

func TestAttendanceMarkInvalidStatus(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), teacherActor(), "group-1", MarkAttendanceRequest{
		StudentID:  "student-1",
		AttendedOn: time.Now().UTC(),
		Status:     "asleep",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceMarkForeignGroup(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), teacherActor(), "group-2", MarkAttendanceRequest{
		StudentID:  "student-1",
		AttendedOn: time.Now().UTC(),
		Status:     models.AttendancePresent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceMarkDeniedForStudent(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), studentActor("student-1"), "group-1", MarkAttendanceRequest{
		StudentID:  "student-1",
		AttendedOn: time.Now().UTC(),
		Status:     models.AttendancePresent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceMarkRejectsNonMember(t *testing.T) {
	svc, repo := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), teacherActor(), "group-1", MarkAttendanceRequest{
		StudentID:  "outsider-1",
		AttendedOn: time.Now().UTC(),
		Status:     models.AttendancePresent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "outsider-1")
	assert.Empty(t, repo.upserts)
}

func TestAttendanceBulkMarkRejectsNonMember(t *testing.T) {
	svc, repo := newAttendanceFixture()

	marked, err := svc.BulkMark(context.Background(), teacherActor(), "group-1", BulkMarkRequest{
		AttendedOn: time.Now().UTC(),
		Marks: []BulkMark{
			{StudentID: "student-1", Status: models.AttendancePresent},
			{StudentID: "outsider-1", Status: models.AttendanceAbsent},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, marked)
	assert.Empty(t, repo.upserts)
}

func TestAttendanceBulkMark(t *testing.T) {
	svc, repo := newAttendanceFixture()

	marked, err := svc.BulkMark(context.Background(), teacherActor(), "group-1", BulkMarkRequest{
		AttendedOn: time.Now().UTC(),
		Marks: []BulkMark{
			{StudentID: "student-1", Status: models.AttendancePresent},
			{StudentID: "student-2", Status: models.AttendanceAbsent},
			{StudentID: "student-3", Status: models.AttendanceExcused},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, marked)
	assert.Len(t, repo.upserts, 3)
}

func TestAttendanceBulkMarkStopsAtFailure(t *testing.T) {
	svc, repo := newAttendanceFixture()
	repo.failFor = "student-2"

	marked, err := svc.BulkMark(context.Background(), teacherActor(), "group-1", BulkMarkRequest{
		AttendedOn: time.Now().UTC(),
		Marks: []BulkMark{
			{StudentID: "student-1", Status: models.AttendancePresent},
			{StudentID: "student-2", Status: models.AttendanceAbsent},
			{StudentID: "student-3", Status: models.AttendancePresent},
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, marked)
	assert.Contains(t, err.Error(), "student-2")
	assert.Len(t, repo.upserts, 1)
}

func TestAttendanceListClampsToScope(t *testing.T) {
	svc, repo := newAttendanceFixture()

	_, _, err := svc.List(context.Background(), teacherActor(), models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, "center-1", repo.lastFilter.CenterID)

	// Admins get the unclamped filter.
	_, _, err = svc.List(context.Background(), adminActor(), models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.CenterID)
}

func TestAttendanceDelete(t *testing.T) {
	svc, repo := newAttendanceFixture()
	repo.byID["att-1"] = models.Attendance{ID: "att-1", GroupID: "group-1", StudentID: "student-1"}

	err := svc.Delete(context.Background(), teacherActor(), "att-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "att-1")

	err = svc.Delete(context.Background(), teacherActor(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceExportCSV(t *testing.T) {
	svc, repo := newAttendanceFixture()
	note := "left early"
	repo.sheetRows = []models.AttendanceSheetRow{
		{StudentName: "Student One", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: models.AttendancePresent},
		{StudentName: "Student Two", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: models.AttendanceLate, Note: &note},
	}
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	out, contentType, err := svc.ExportSheet(context.Background(), teacherActor(), "group-1", from, to, ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(out), "Student,Date,Status,Note")
	assert.Contains(t, string(out), "Student Two,2026-03-02,late,left early")
}

func TestAttendanceExportPDF(t *testing.T) {
	svc, repo := newAttendanceFixture()
	repo.sheetRows = []models.AttendanceSheetRow{
		{StudentName: "Student One", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: models.AttendancePresent},
	}
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	out, contentType, err := svc.ExportSheet(context.Background(), teacherActor(), "group-1", from, to, ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestAttendanceExportValidation(t *testing.T) {
	svc, _ := newAttendanceFixture()
	from := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := svc.ExportSheet(context.Background(), teacherActor(), "group-1", from, to, ExportCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = svc.ExportSheet(context.Background(), teacherActor(), "group-1", to, from, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
