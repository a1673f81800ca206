package authz

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine evaluates the rule table against the ownership graph.
type Engine struct {
	graph     Graph
	decisions *prometheus.CounterVec
}

// NewEngine constructs the engine. reg may be nil when decision
// metrics are not wanted (tests).
func NewEngine(graph Graph, reg prometheus.Registerer) *Engine {
	e := &Engine{graph: graph}
	if reg != nil {
		e.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by entity, action and outcome",
		}, []string{"entity", "action", "outcome"})
		reg.MustRegister(e.decisions)
	}
	return e
}

// Can decides whether the actor may perform the action on the
// resource. Absence of an explicit allow is a denial; errors are
// infrastructure failures only, never "wrong role".
func (e *Engine) Can(ctx context.Context, actor Actor, action Action, res Resource) (bool, error) {
	allowed, err := e.evaluate(ctx, actor, action, res)
	if err != nil {
		return false, err
	}
	e.observe(res.Entity, action, allowed)
	return allowed, nil
}

func (e *Engine) evaluate(ctx context.Context, actor Actor, action Action, res Resource) (bool, error) {
	entityRules, ok := ruleTable[res.Entity]
	if ok {
		for _, role := range actor.Roles {
			preds, ok := entityRules[role][action]
			if !ok {
				continue
			}
			for _, pred := range preds {
				allowed, err := pred(ctx, e, actor, res)
				if err != nil {
					return false, err
				}
				if allowed {
					return true, nil
				}
			}
		}
	}

	// Every user may view their own record regardless of role.
	if res.Entity == EntityUser && action == ActionView && res.ID == actor.ID {
		return true, nil
	}

	return false, nil
}

func (e *Engine) observe(entity Entity, action Action, allowed bool) {
	if e.decisions == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	e.decisions.WithLabelValues(string(entity), string(action), outcome).Inc()
}

// centerOf resolves the owning center of the resource, consulting the
// graph when the caller did not populate it.
func (e *Engine) centerOf(ctx context.Context, res Resource) (string, error) {
	if res.Entity == EntityCenter {
		if res.ID != "" {
			return res.ID, nil
		}
		return res.CenterID, nil
	}
	if res.CenterID != "" {
		return res.CenterID, nil
	}
	if res.GroupID != "" {
		return e.graph.GroupCenterID(ctx, res.GroupID)
	}
	return "", nil
}

func (e *Engine) teacherOf(ctx context.Context, res Resource) (string, error) {
	if res.TeacherID != "" {
		return res.TeacherID, nil
	}
	if res.GroupID != "" {
		return e.graph.GroupTeacherID(ctx, res.GroupID)
	}
	return "", nil
}

type predicate func(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error)

// anyone allows unconditionally; used for admin-wide rules.
func anyone(context.Context, *Engine, Actor, Resource) (bool, error) {
	return true, nil
}

// scoped allows when the actor resolves to a center scope at all; list
// endpoints then pre-filter by that scope.
func scoped(ctx context.Context, e *Engine, actor Actor, _ Resource) (bool, error) {
	_, err := e.CenterScope(ctx, actor)
	if err == ErrNoCenter {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ownCenter allows when the resource's center matches the actor's
// resolved scope (owned center or center_id, per the fallback chain).
func ownCenter(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	scope, err := e.CenterScope(ctx, actor)
	if err == ErrNoCenter {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	centerID, err := e.centerOf(ctx, res)
	if err != nil {
		return false, err
	}
	return centerID != "" && scope.Contains(centerID), nil
}

// ownsCenter allows only when the actor is the owning user of the
// resource's center. A center_id match without ownership does not
// qualify; delete rules use this stricter form.
func ownsCenter(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	centerID, err := e.centerOf(ctx, res)
	if err != nil {
		return false, err
	}
	if centerID == "" {
		return false, nil
	}
	owner, err := e.graph.CenterOwnerID(ctx, centerID)
	if err != nil {
		return false, err
	}
	return owner != "" && owner == actor.ID, nil
}

// groupTeacher allows the teacher assigned to the resource's group.
func groupTeacher(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	teacherID, err := e.teacherOf(ctx, res)
	if err != nil {
		return false, err
	}
	return teacherID != "" && teacherID == actor.ID, nil
}

// teacherSelfCreate allows a teacher to create a group with themselves
// as teacher inside their own center.
func teacherSelfCreate(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	if res.TeacherID != actor.ID {
		return false, nil
	}
	return ownCenter(ctx, e, actor, res)
}

// assistantOfCenter checks both assistant paths: the direct center_id
// and enrollment in any group of the center.
func assistantOfCenter(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	centerID, err := e.centerOf(ctx, res)
	if err != nil {
		return false, err
	}
	if centerID == "" {
		return false, nil
	}
	if actor.ownCenterID() == centerID {
		return true, nil
	}
	return e.graph.IsAssistantInCenter(ctx, actor.ID, centerID)
}

// approvedMember allows students with an approved membership in the
// resource's group.
func approvedMember(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	if res.GroupID == "" {
		return false, nil
	}
	return e.graph.IsApprovedMember(ctx, res.GroupID, actor.ID)
}

// linkedChildMember allows parents whose linked child is an approved
// member of the resource's group.
func linkedChildMember(ctx context.Context, e *Engine, actor Actor, res Resource) (bool, error) {
	if res.GroupID == "" {
		return false, nil
	}
	return e.graph.HasApprovedLinkedChild(ctx, actor.ID, res.GroupID)
}
