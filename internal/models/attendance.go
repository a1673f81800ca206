package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	default:
		return false
	}
}

// Attendance marks one student for one lesson, or for one calendar date
// when no lesson is linked (legacy fallback). Uniqueness is per
// (group, student, lesson) when LessonID is set, else per
// (group, student, date).
type Attendance struct {
	ID         string           `db:"id" json:"id"`
	CenterID   string           `db:"center_id" json:"center_id"`
	GroupID    string           `db:"group_id" json:"group_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	LessonID   *string          `db:"lesson_id" json:"lesson_id,omitempty"`
	AttendedOn time.Time        `db:"attended_on" json:"attended_on"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Note       *string          `db:"note" json:"note,omitempty"`
	MarkedBy   string           `db:"marked_by" json:"marked_by"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the row with student metadata.
type AttendanceRecord struct {
	Attendance
	StudentName string `db:"student_name" json:"student_name"`
	GroupName   string `db:"group_name" json:"group_name"`
}

// AttendanceFilter captures listing criteria for attendance.
type AttendanceFilter struct {
	CenterID  string
	GroupID   string
	StudentID string
	LessonID  string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// AttendanceSheetRow is one line of an exported attendance sheet.
type AttendanceSheetRow struct {
	StudentName string           `db:"student_name"`
	Date        time.Time        `db:"attended_on"`
	Status      AttendanceStatus `db:"status"`
	Note        *string          `db:"note"`
}
