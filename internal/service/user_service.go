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

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListMembers(ctx context.Context, centerID string) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	AssignRole(ctx context.Context, userID string, role models.Role) error
	RemoveRole(ctx context.Context, userID string, role models.Role) error
	UpdateCenterID(ctx context.Context, id, centerID string) error
}

// UpdateUserRequest carries mutable profile fields.
type UpdateUserRequest struct {
	Name   string             `json:"name" validate:"required"`
	Email  string             `json:"email" validate:"required,email"`
	Status *models.UserStatus `json:"status"`
}

// UserService exposes user directory operations. Every call takes the
// acting identity explicitly and resolves visibility through the rule
// engine; there is no ambient caller.
type UserService struct {
	repo      userRepository
	engine    *authz.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, engine *authz.Engine, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, engine: engine, validator: validate, logger: logger}
}

// Get returns a user the actor is allowed to see. Users out of scope
// come back as not found rather than forbidden so their existence does
// not leak across centers.
func (s *UserService) Get(ctx context.Context, actor authz.Actor, id string) (*models.User, error) {
	user, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, user); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// List returns users visible to the actor. Admins see everything;
// everyone else is clamped to their center scope regardless of the
// filter they pass.
func (s *UserService) List(ctx context.Context, actor authz.Actor, filter models.UserFilter) ([]models.User, int, error) {
	scope, err := s.engine.CenterScope(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoCenter) {
			return []models.User{}, 0, nil
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
	}
	if !scope.All {
		filter.CenterID = scope.CenterID
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Members returns everyone reachable in the actor's center, whether by
// a direct center_id or an approved group membership.
func (s *UserService) Members(ctx context.Context, actor authz.Actor) ([]models.User, error) {
	scope, err := s.engine.CenterScope(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoCenter) {
			return []models.User{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
	}
	if scope.All {
		return nil, appErrors.Clone(appErrors.ErrValidation, "member listing requires a center scope")
	}
	members, err := s.repo.ListMembers(ctx, scope.CenterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	return members, nil
}

// Update changes a user's profile if the actor may update them.
func (s *UserService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	user, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionUpdate, user); err != nil {
		return nil, err
	}
	user.Name = req.Name
	user.Email = req.Email
	if req.Status != nil {
		user.Status = *req.Status
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// Delete removes a user. Groups the user taught are left without a
// teacher instead of being deleted with them.
func (s *UserService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	user, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionDelete, user); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// AssignRole grants a role to a user in the actor's scope.
func (s *UserService) AssignRole(ctx context.Context, actor authz.Actor, id string, role models.Role) error {
	if !role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	if role == models.RoleAdmin && !actor.HasRole(models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may grant admin")
	}
	user, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionUpdate, user); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, id, role); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}
	return nil
}

// RemoveRole revokes a role row. The legacy scalar role column is not
// touched here; it only ever changes through migration tooling.
func (s *UserService) RemoveRole(ctx context.Context, actor authz.Actor, id string, role models.Role) error {
	if !role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	user, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionUpdate, user); err != nil {
		return err
	}
	if err := s.repo.RemoveRole(ctx, id, role); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove role")
	}
	return nil
}

// RepairCenterID re-attaches a user whose center_id was lost to the
// given center. Reads never mutate; this is the only repair path.
func (s *UserService) RepairCenterID(ctx context.Context, actor authz.Actor, id, centerID string) error {
	if !actor.HasRole(models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	if centerID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "center_id is required")
	}
	if _, err := s.fetch(ctx, id); err != nil {
		return err
	}
	if err := s.repo.UpdateCenterID(ctx, id, centerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to repair center link")
	}
	s.logger.Info("user center repaired",
		zap.String("user_id", id), zap.String("center_id", centerID), zap.String("actor_id", actor.ID))
	return nil
}

func (s *UserService) fetch(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) authorize(ctx context.Context, actor authz.Actor, action authz.Action, user *models.User) error {
	ok, err := s.engine.Can(ctx, actor, action, authz.UserResource(user))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	return nil
}
