package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type parentLinkRepository interface {
	Link(ctx context.Context, parentID, studentID, relationship string) error
	Unlink(ctx context.Context, parentID, studentID string) error
	ListChildren(ctx context.Context, parentID string) ([]models.ParentStudentLink, error)
}

// ParentLinkService manages parent to student links. The link itself
// is the authorization: a linked parent sees their child's groups.
type ParentLinkService struct {
	repo   parentLinkRepository
	users  userReader
	engine *authz.Engine
	logger *zap.Logger
}

// NewParentLinkService constructs ParentLinkService.
func NewParentLinkService(repo parentLinkRepository, users userReader, engine *authz.Engine, logger *zap.Logger) *ParentLinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParentLinkService{repo: repo, users: users, engine: engine, logger: logger}
}

// Link connects a parent to a student. The actor must be allowed to
// update the student; both ends must carry the matching role.
func (s *ParentLinkService) Link(ctx context.Context, actor authz.Actor, parentID, studentID, relationship string) error {
	parent, student, err := s.pair(ctx, actor, parentID, studentID)
	if err != nil {
		return err
	}
	if !parent.HasRole(models.RoleParent) {
		return appErrors.Clone(appErrors.ErrValidation, "user is not a parent")
	}
	if !student.HasRole(models.RoleStudent) {
		return appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if err := s.repo.Link(ctx, parentID, studentID, relationship); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link parent")
	}
	return nil
}

// Unlink removes the pair.
func (s *ParentLinkService) Unlink(ctx context.Context, actor authz.Actor, parentID, studentID string) error {
	if _, _, err := s.pair(ctx, actor, parentID, studentID); err != nil {
		return err
	}
	if err := s.repo.Unlink(ctx, parentID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlink parent")
	}
	return nil
}

// Children returns a parent's links. Parents read their own; staff
// read any parent they may view.
func (s *ParentLinkService) Children(ctx context.Context, actor authz.Actor, parentID string) ([]models.ParentStudentLink, error) {
	if actor.ID != parentID {
		parent, err := s.users.FindByID(ctx, parentID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		ok, err := s.engine.Can(ctx, actor, authz.ActionView, authz.UserResource(parent))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
	}
	links, err := s.repo.ListChildren(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	return links, nil
}

// pair loads both users and checks the actor may update the student.
func (s *ParentLinkService) pair(ctx context.Context, actor authz.Actor, parentID, studentID string) (*models.User, *models.User, error) {
	parent, err := s.users.FindByID(ctx, parentID)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
	}
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	ok, err := s.engine.Can(ctx, actor, authz.ActionUpdate, authz.UserResource(student))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	return parent, student, nil
}
