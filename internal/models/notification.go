package models

import "time"

// NotificationType tags the notification payload.
type NotificationType string

const (
	NotificationApprovalStatus NotificationType = "approval_status"
	NotificationMembership     NotificationType = "membership"
	NotificationNewAssessment  NotificationType = "new_assessment"
	NotificationWelcome        NotificationType = "welcome"
)

// Notification is addressed to one user and carries a typed payload.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Icon      *string          `db:"icon" json:"icon,omitempty"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
