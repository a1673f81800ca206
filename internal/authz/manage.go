package authz

import (
	"context"

	"github.com/edustack/lcm-api/internal/models"
)

// CanManageGroup gates the membership workflow: the group's teacher,
// the center_admin whose scope resolves to the group's center, or an
// assistant attached to that center (by center_id or by enrollment in
// any of its groups).
func (e *Engine) CanManageGroup(ctx context.Context, actor Actor, group *models.Group) (bool, error) {
	if group.TaughtBy(actor.ID) && actor.HasRole(models.RoleTeacher) {
		return true, nil
	}

	if actor.HasRole(models.RoleCenterAdmin) {
		scope, err := e.CenterScope(ctx, actor)
		if err != nil && err != ErrNoCenter {
			return false, err
		}
		if err == nil && scope.Contains(group.CenterID) {
			return true, nil
		}
	}

	if actor.HasRole(models.RoleAssistant) {
		if actor.ownCenterID() == group.CenterID {
			return true, nil
		}
		return e.graph.IsAssistantInCenter(ctx, actor.ID, group.CenterID)
	}

	return false, nil
}
