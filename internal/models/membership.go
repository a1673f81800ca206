package models

import "time"

// MembershipStatus is the GroupStudent state machine: pending rows come
// from self-service join requests, approved and rejected are terminal.
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
	MembershipRejected MembershipStatus = "rejected"
)

// Valid returns true when the status is a supported value.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipPending, MembershipApproved, MembershipRejected:
		return true
	default:
		return false
	}
}

// GroupStudent is the membership join row. Unique per (group, student);
// only approved rows count toward the roster.
type GroupStudent struct {
	GroupID   string           `db:"group_id" json:"group_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    MembershipStatus `db:"status" json:"status"`
	IsPay     bool             `db:"is_pay" json:"is_pay"`
	JoinedAt  *time.Time       `db:"joined_at" json:"joined_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// GroupStudentDetail extends the membership row with student metadata.
type GroupStudentDetail struct {
	GroupStudent
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// ParentStudentLink links a parent user to a student user. Existence of
// the link is the authorization: there is no status field.
type ParentStudentLink struct {
	ParentID     string    `db:"parent_id" json:"parent_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Relationship string    `db:"relationship" json:"relationship"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
