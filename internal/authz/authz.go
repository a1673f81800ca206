// Package authz centralizes authorization decisions for the API.
// Services call Engine.Can instead of performing ad-hoc permission
// checks: every (role, entity, action) outcome lives in one declarative
// rule table, evaluated deny-by-default against the actor's tenant
// scope and the entity ownership graph.
package authz

import (
	"context"

	"github.com/edustack/lcm-api/internal/models"
)

// Entity tags the resource kind a decision applies to.
type Entity string

const (
	EntityCenter     Entity = "center"
	EntityGroup      Entity = "group"
	EntityLesson     Entity = "lesson"
	EntityAssessment Entity = "assessment"
	EntityAttendance Entity = "attendance"
	EntityUser       Entity = "user"
)

// Action is the operation being decided.
type Action string

const (
	ActionViewAny Action = "view_any"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

// Actor is the authenticated user making a request. It is always
// passed explicitly; nothing in this package reads ambient auth state.
type Actor struct {
	ID       string
	Roles    []models.Role
	CenterID *string
}

// HasRole reports membership in the actor's role set.
func (a Actor) HasRole(role models.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) ownCenterID() string {
	if a.CenterID == nil {
		return ""
	}
	return *a.CenterID
}

// Resource describes the decision target: an existing record, or for
// creates, the intended new record's parent. Zero fields are resolved
// lazily through the ownership graph when a predicate needs them.
type Resource struct {
	Entity    Entity
	ID        string
	CenterID  string
	GroupID   string
	TeacherID string
}

// GroupResource builds the decision target for a group row.
func GroupResource(g *models.Group) Resource {
	r := Resource{Entity: EntityGroup, ID: g.ID, CenterID: g.CenterID, GroupID: g.ID}
	if g.TeacherID != nil {
		r.TeacherID = *g.TeacherID
	}
	return r
}

// GroupChildResource builds the target for a lesson, assessment or
// attendance row owned by the given group.
func GroupChildResource(entity Entity, id string, g *models.Group) Resource {
	r := Resource{Entity: entity, ID: id, CenterID: g.CenterID, GroupID: g.ID}
	if g.TeacherID != nil {
		r.TeacherID = *g.TeacherID
	}
	return r
}

// CenterResource builds the target for a center row.
func CenterResource(c *models.Center) Resource {
	return Resource{Entity: EntityCenter, ID: c.ID, CenterID: c.ID}
}

// UserResource builds the target for a user row.
func UserResource(u *models.User) Resource {
	r := Resource{Entity: EntityUser, ID: u.ID}
	if u.CenterID != nil {
		r.CenterID = *u.CenterID
	}
	return r
}

// Graph exposes the ownership relationships the rule predicates
// consult. Implemented by the repository layer.
type Graph interface {
	// OwnedCenterID returns the center owned by the user, "" when none.
	OwnedCenterID(ctx context.Context, userID string) (string, error)
	// CenterOwnerID returns the owning user of a center, "" when the
	// center does not exist.
	CenterOwnerID(ctx context.Context, centerID string) (string, error)
	GroupCenterID(ctx context.Context, groupID string) (string, error)
	GroupTeacherID(ctx context.Context, groupID string) (string, error)
	// IsApprovedMember reports an approved GroupStudent row.
	IsApprovedMember(ctx context.Context, groupID, studentID string) (bool, error)
	// HasApprovedLinkedChild reports whether any student linked to the
	// parent is an approved member of the group.
	HasApprovedLinkedChild(ctx context.Context, parentID, groupID string) (bool, error)
	// IsAssistantInCenter reports whether the user is enrolled in any
	// group of the center. Assistants are modeled as group memberships
	// for some checks and as a center_id for others; callers check both.
	IsAssistantInCenter(ctx context.Context, userID, centerID string) (bool, error)
}
