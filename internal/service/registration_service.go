package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type registrationRepository interface {
	RegisterCenterAdmin(ctx context.Context, user *models.User, center *models.Center) error
	CreateMember(ctx context.Context, user *models.User, roles []models.Role, groupID string) error
}

type registrationUserReader interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// RegisterCenterRequest is the self-registration payload.
type RegisterCenterRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	CenterName string `json:"center_name" validate:"required"`
}

// CreateMemberRequest creates a staff or student user in the actor's
// center.
type CreateMemberRequest struct {
	Name     string        `json:"name" validate:"required"`
	Email    string        `json:"email" validate:"required,email"`
	Password string        `json:"password" validate:"required,min=8"`
	Roles    []models.Role `json:"roles" validate:"required,min=1"`
	GroupID  string        `json:"group_id"`
}

// RegistrationService runs the multi-step account creation flows. All
// database writes for one registration happen in a single transaction;
// notifications go out only after it commits.
type RegistrationService struct {
	repo      registrationRepository
	users     registrationUserReader
	engine    *authz.Engine
	notify    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(repo registrationRepository, users registrationUserReader, engine *authz.Engine, notify notifier, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, users: users, engine: engine, notify: notify, validator: validate, logger: logger}
}

// RegisterCenterAdmin self-registers a center admin with their center.
// The account starts pending and the center inactive until an admin
// approves them.
func (s *RegistrationService) RegisterCenterAdmin(ctx context.Context, req RegisterCenterRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	center := &models.Center{Name: req.CenterName}

	if err := s.repo.RegisterCenterAdmin(ctx, user, center); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "registration failed")
	}
	user.Roles = []models.Role{models.RoleCenterAdmin}

	if s.notify != nil {
		s.notify.Notify(ctx, user.ID, models.NotificationWelcome, "Registration received",
			"Your center registration is awaiting review.")
	}
	return user, nil
}

// CreateMember creates a user inside the actor's center scope. The
// actor must pass the user create rule; the new user inherits the
// actor's center.
func (s *RegistrationService) CreateMember(ctx context.Context, actor authz.Actor, req CreateMemberRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member payload")
	}
	for _, role := range req.Roles {
		if !role.Valid() || role == models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid role")
		}
	}

	scope, err := s.engine.CenterScope(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoCenter) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no center scope")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scope")
	}
	if scope.All {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admins must create users through the user API")
	}

	allowed, err := s.engine.Can(ctx, actor, authz.ActionCreate, authz.Resource{Entity: authz.EntityUser, CenterID: scope.CenterID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	centerID := scope.CenterID
	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		CenterID:     &centerID,
	}

	if err := s.repo.CreateMember(ctx, user, req.Roles, req.GroupID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "member creation failed")
	}
	user.Roles = req.Roles

	if s.notify != nil {
		s.notify.Notify(ctx, user.ID, models.NotificationWelcome, "Account created",
			"An account has been created for you.")
	}
	return user, nil
}
