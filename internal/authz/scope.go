package authz

import (
	"context"
	"errors"

	"github.com/edustack/lcm-api/internal/models"
)

// ErrNoCenter is returned when a non-admin actor has neither an owned
// center nor a center_id. Callers must treat it as "nothing visible",
// not a failure.
var ErrNoCenter = errors.New("authz: actor has no center")

// Scope is the accessible center range for an actor: everything for
// admins, a single center for everyone else.
type Scope struct {
	All      bool
	CenterID string
}

// Contains reports whether the given center falls inside the scope.
func (s Scope) Contains(centerID string) bool {
	return s.All || (s.CenterID != "" && s.CenterID == centerID)
}

// CenterScope resolves the actor's tenant scope. Center admins resolve
// through the center they own, falling back to their center_id when the
// ownership record is missing; center_id is set lazily in some legacy
// data, so both lookups are kept. The resolver never mutates anything:
// backfilling center_id is an explicit repair step in the user service.
func (e *Engine) CenterScope(ctx context.Context, actor Actor) (Scope, error) {
	if actor.HasRole(models.RoleAdmin) {
		return Scope{All: true}, nil
	}

	if actor.HasRole(models.RoleCenterAdmin) {
		owned, err := e.graph.OwnedCenterID(ctx, actor.ID)
		if err != nil {
			return Scope{}, err
		}
		if owned != "" {
			return Scope{CenterID: owned}, nil
		}
	}

	if id := actor.ownCenterID(); id != "" {
		return Scope{CenterID: id}, nil
	}
	return Scope{}, ErrNoCenter
}
