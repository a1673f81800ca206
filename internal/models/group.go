package models

import "time"

// Group is a class/cohort of students taught by one teacher within one
// center. CenterID is immutable once set; TeacherID may be nulled when
// the teacher is removed from the center.
type Group struct {
	ID           string    `db:"id" json:"id"`
	CenterID     string    `db:"center_id" json:"center_id"`
	TeacherID    *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	Name         string    `db:"name" json:"name"`
	Subject      string    `db:"subject" json:"subject"`
	Days         string    `db:"days" json:"days"`
	StartTime    string    `db:"start_time" json:"start_time"`
	SessionCount int       `db:"session_count" json:"session_count"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TaughtBy reports whether the given user is the group's teacher.
func (g *Group) TaughtBy(userID string) bool {
	return g.TeacherID != nil && *g.TeacherID == userID
}

// GroupFilter captures listing criteria for groups.
type GroupFilter struct {
	CenterID  string
	TeacherID string
	StudentID string
	Subject   string
	IsActive  *bool
	Search    string
	Page      int
	PageSize  int
}
