package models

import "time"

// Role names the access levels recognised by the policy engine. A user
// may hold several roles at once.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCenterAdmin Role = "center_admin"
	RoleTeacher     Role = "teacher"
	RoleAssistant   Role = "assistant"
	RoleStudent     Role = "student"
	RoleParent      Role = "parent"
)

// AllRoles lists every assignable role.
var AllRoles = []Role{RoleAdmin, RoleCenterAdmin, RoleTeacher, RoleAssistant, RoleStudent, RoleParent}

// Valid returns true when the role is a supported value.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCenterAdmin, RoleTeacher, RoleAssistant, RoleStudent, RoleParent:
		return true
	default:
		return false
	}
}

// UserStatus represents account activation state.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// ApprovalStatus tracks the admin approval workflow for self-registered
// center admins. Other users are created approved.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// User represents an application user stored in the users table. Roles
// holds the normalized role set: rows from user_roles merged with the
// legacy scalar role column at load time.
type User struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Email          string         `db:"email" json:"email"`
	PasswordHash   string         `db:"password_hash" json:"-"`
	Status         UserStatus     `db:"status" json:"status"`
	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	CenterID       *string        `db:"center_id" json:"center_id,omitempty"`
	LegacyRole     *Role          `db:"role" json:"-"`
	Roles          []Role         `db:"-" json:"roles"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// HasRole reports membership in the normalized role set.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role           *Role
	CenterID       string
	Status         *UserStatus
	ApprovalStatus *ApprovalStatus
	Search         string
	Page           int
	PageSize       int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
