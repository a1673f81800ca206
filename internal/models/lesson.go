package models

import "time"

// Lesson belongs to exactly one group.
type Lesson struct {
	ID          string    `db:"id" json:"id"`
	GroupID     string    `db:"group_id" json:"group_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LessonFilter captures listing criteria for lessons.
type LessonFilter struct {
	GroupID  string
	CenterID string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
