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

type centerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Center, error)
	List(ctx context.Context, filter models.CenterFilter) ([]models.Center, int, error)
	Update(ctx context.Context, center *models.Center) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// UpdateCenterRequest carries mutable center fields. Ownership is
// immutable; there is no owner field here. Nil optional fields keep
// the stored value.
type UpdateCenterRequest struct {
	Name    string  `json:"name" validate:"required"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	LogoURL *string `json:"logo_url" validate:"omitempty,url"`
}

// CenterService exposes center CRUD. Centers are only ever created
// through registration, so there is no Create here.
type CenterService struct {
	repo      centerRepository
	engine    *authz.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCenterService constructs CenterService.
func NewCenterService(repo centerRepository, engine *authz.Engine, validate *validator.Validate, logger *zap.Logger) *CenterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CenterService{repo: repo, engine: engine, validator: validate, logger: logger}
}

// Get returns a center visible to the actor, not found otherwise.
func (s *CenterService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Center, error) {
	center, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionView, authz.CenterResource(center))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "center not found")
	}
	return center, nil
}

// List returns centers visible to the actor: all of them for admins,
// exactly their own for everyone attached to one, none otherwise.
func (s *CenterService) List(ctx context.Context, actor authz.Actor, filter models.CenterFilter) ([]models.Center, int, error) {
	scope, err := s.engine.CenterScope(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoCenter) {
			return []models.Center{}, 0, nil
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
	}
	if !scope.All {
		center, err := s.fetch(ctx, scope.CenterID)
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
				return []models.Center{}, 0, nil
			}
			return nil, 0, err
		}
		return []models.Center{*center}, 1, nil
	}
	centers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list centers")
	}
	return centers, total, nil
}

// Update changes center metadata for admins or the owning center admin.
func (s *CenterService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateCenterRequest) (*models.Center, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid center payload")
	}
	center, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionUpdate, authz.CenterResource(center))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "center not found")
	}
	center.Name = req.Name
	if req.Phone != nil {
		center.Phone = req.Phone
	}
	if req.Address != nil {
		center.Address = req.Address
	}
	if req.LogoURL != nil {
		center.LogoURL = req.LogoURL
	}
	if err := s.repo.Update(ctx, center); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update center")
	}
	return center, nil
}

// SetActive toggles a center. Admin only; deactivation is how a
// center is suspended without destroying its data.
func (s *CenterService) SetActive(ctx context.Context, actor authz.Actor, id string, active bool) error {
	if !actor.HasRole(models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	if _, err := s.fetch(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update center state")
	}
	s.logger.Info("center state changed",
		zap.String("center_id", id), zap.Bool("active", active), zap.String("actor_id", actor.ID))
	return nil
}

// Delete removes a center. Center admins may only delete the center
// they own through the owner record; a mere center_id link is not
// enough.
func (s *CenterService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	center, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionDelete, authz.CenterResource(center))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "center not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete center")
	}
	s.logger.Info("center deleted", zap.String("center_id", id), zap.String("actor_id", actor.ID))
	return nil
}

func (s *CenterService) fetch(ctx context.Context, id string) (*models.Center, error) {
	center, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "center not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load center")
	}
	return center, nil
}
