package models

import "time"

// Center is the multi-tenancy boundary. Every group, lesson,
// assessment and attendance row belongs transitively to one center.
type Center struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	LogoURL   *string   `db:"logo_url" json:"logo_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CenterFilter captures listing criteria for centers.
type CenterFilter struct {
	IsActive *bool
	Search   string
	Page     int
	PageSize int
}
