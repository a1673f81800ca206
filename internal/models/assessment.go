package models

import "time"

// Assessment belongs to a group and optionally to one of its lessons.
type Assessment struct {
	ID        string     `db:"id" json:"id"`
	GroupID   string     `db:"group_id" json:"group_id"`
	LessonID  *string    `db:"lesson_id" json:"lesson_id,omitempty"`
	Title     string     `db:"title" json:"title"`
	MaxScore  float64    `db:"max_score" json:"max_score"`
	DueAt     *time.Time `db:"due_at" json:"due_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// AssessmentResult is one student's score, unique per
// (assessment_id, student_id).
type AssessmentResult struct {
	ID           string    `db:"id" json:"id"`
	AssessmentID string    `db:"assessment_id" json:"assessment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Score        float64   `db:"score" json:"score"`
	Feedback     *string   `db:"feedback" json:"feedback,omitempty"`
	GradedBy     string    `db:"graded_by" json:"graded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AssessmentFilter captures listing criteria for assessments.
type AssessmentFilter struct {
	GroupID  string
	CenterID string
	LessonID string
	Page     int
	PageSize int
}
