package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type groupRepository interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
}

type parentLinkReader interface {
	ListChildren(ctx context.Context, parentID string) ([]models.ParentStudentLink, error)
}

// CreateGroupRequest creates a group taught by the requesting teacher.
type CreateGroupRequest struct {
	Name         string `json:"name" validate:"required"`
	Subject      string `json:"subject" validate:"required"`
	Days         string `json:"days"`
	StartTime    string `json:"start_time"`
	SessionCount int    `json:"session_count" validate:"gte=0"`
}

// UpdateGroupRequest carries mutable group fields. The owning center
// never changes and teachers cannot hand a group to someone else here.
type UpdateGroupRequest struct {
	Name         string `json:"name" validate:"required"`
	Subject      string `json:"subject" validate:"required"`
	Days         string `json:"days"`
	StartTime    string `json:"start_time"`
	SessionCount int    `json:"session_count" validate:"gte=0"`
	IsActive     *bool  `json:"is_active"`
}

// GroupService exposes group CRUD with role-scoped visibility.
type GroupService struct {
	repo      groupRepository
	links     parentLinkReader
	engine    *authz.Engine
	cache     rosterCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs GroupService. links and cache may be nil.
func NewGroupService(repo groupRepository, links parentLinkReader, engine *authz.Engine, cache rosterCache, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{repo: repo, links: links, engine: engine, cache: cache, validator: validate, logger: logger}
}

// Create makes a new group with the acting teacher as its teacher,
// inside the teacher's own center. Nobody else creates groups.
func (s *GroupService) Create(ctx context.Context, actor authz.Actor, req CreateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	scope, err := s.engine.CenterScope(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoCenter) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no center scope")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
	}
	if scope.All {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "groups are created by their teacher")
	}

	teacherID := actor.ID
	group := &models.Group{
		CenterID:     scope.CenterID,
		TeacherID:    &teacherID,
		Name:         req.Name,
		Subject:      req.Subject,
		Days:         req.Days,
		StartTime:    req.StartTime,
		SessionCount: req.SessionCount,
		IsActive:     true,
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionCreate, authz.GroupResource(group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	return group, nil
}

// Get returns a group the actor may view, not found otherwise.
func (s *GroupService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Group, error) {
	group, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionView, authz.GroupResource(group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	return group, nil
}

// List returns the groups visible to the actor's strongest role:
// admins see all, center staff their center, teachers their own
// groups, students their enrolled groups, parents their children's
// groups.
func (s *GroupService) List(ctx context.Context, actor authz.Actor, filter models.GroupFilter) ([]models.Group, int, error) {
	switch {
	case actor.HasRole(models.RoleAdmin):
		// No clamp.
	case actor.HasRole(models.RoleCenterAdmin), actor.HasRole(models.RoleAssistant):
		scope, err := s.engine.CenterScope(ctx, actor)
		if err != nil {
			if errors.Is(err, authz.ErrNoCenter) {
				return []models.Group{}, 0, nil
			}
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
		}
		filter.CenterID = scope.CenterID
	case actor.HasRole(models.RoleTeacher):
		filter.TeacherID = actor.ID
	case actor.HasRole(models.RoleStudent):
		filter.StudentID = actor.ID
	case actor.HasRole(models.RoleParent):
		return s.listForParent(ctx, actor, filter)
	default:
		return []models.Group{}, 0, nil
	}

	groups, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, total, nil
}

// listForParent merges the groups each linked child is approved into.
func (s *GroupService) listForParent(ctx context.Context, actor authz.Actor, filter models.GroupFilter) ([]models.Group, int, error) {
	if s.links == nil {
		return []models.Group{}, 0, nil
	}
	children, err := s.links.ListChildren(ctx, actor.ID)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	seen := make(map[string]struct{})
	var merged []models.Group
	for _, link := range children {
		childFilter := filter
		childFilter.StudentID = link.StudentID
		groups, _, err := s.repo.List(ctx, childFilter)
		if err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
		}
		for _, g := range groups {
			if _, ok := seen[g.ID]; ok {
				continue
			}
			seen[g.ID] = struct{}{}
			merged = append(merged, g)
		}
	}
	if merged == nil {
		merged = []models.Group{}
	}
	return merged, len(merged), nil
}

// Update changes group metadata; the teacher of the group and center
// assistants may do this.
func (s *GroupService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateGroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	group, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionUpdate, authz.GroupResource(group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	group.Name = req.Name
	group.Subject = req.Subject
	group.Days = req.Days
	group.StartTime = req.StartTime
	group.SessionCount = req.SessionCount
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group")
	}
	return group, nil
}

// Delete removes a group and everything hanging off it. Only the
// owner of the group's center may do this; a center admin attached by
// center_id alone may not.
func (s *GroupService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	group, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionDelete, authz.GroupResource(group))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	s.logger.Info("group deleted", zap.String("group_id", id), zap.String("actor_id", actor.ID))
	return nil
}

func (s *GroupService) fetch(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}
