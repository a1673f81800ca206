package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type approvalUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type approvalOutcomeRepository interface {
	Resolve(ctx context.Context, userID string, status models.ApprovalStatus) (*models.Center, error)
}

// ApprovalService runs the admin-only activation workflow for
// self-registered center admins. Approve and reject are guarded on the
// pending state: repeating either is an error with no mutation and no
// second notification.
type ApprovalService struct {
	users    approvalUserRepository
	outcomes approvalOutcomeRepository
	notify   notifier
	logger   *zap.Logger
}

// NewApprovalService constructs ApprovalService.
func NewApprovalService(users approvalUserRepository, outcomes approvalOutcomeRepository, notify notifier, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{users: users, outcomes: outcomes, notify: notify, logger: logger}
}

// Pending lists center admins awaiting approval.
func (s *ApprovalService) Pending(ctx context.Context, actor authz.Actor, page, pageSize int) ([]models.User, *models.Pagination, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "admin only")
	}
	role := models.RoleCenterAdmin
	status := models.ApprovalPending
	users, total, err := s.users.List(ctx, models.UserFilter{Role: &role, ApprovalStatus: &status, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list center admins")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Approve activates a pending center admin and their owned center. Both
// writes commit together, so a failure leaves the user pending.
func (s *ApprovalService) Approve(ctx context.Context, actor authz.Actor, userID string) (*models.User, error) {
	user, err := s.guard(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.outcomes.Resolve(ctx, userID, models.ApprovalApproved); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve")
	}

	if s.notify != nil {
		s.notify.Notify(ctx, userID, models.NotificationApprovalStatus, "Registration approved",
			"Your center registration has been approved. Welcome aboard.")
	}

	user.ApprovalStatus = models.ApprovalApproved
	return user, nil
}

// Reject marks a pending center admin rejected; the owned center stays
// inactive.
func (s *ApprovalService) Reject(ctx context.Context, actor authz.Actor, userID, reason string) (*models.User, error) {
	user, err := s.guard(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.outcomes.Resolve(ctx, userID, models.ApprovalRejected); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject")
	}

	if s.notify != nil {
		message := "Your center registration was rejected."
		if reason != "" {
			message = fmt.Sprintf("Your center registration was rejected: %s", reason)
		}
		s.notify.Notify(ctx, userID, models.NotificationApprovalStatus, "Registration rejected", message)
	}

	user.ApprovalStatus = models.ApprovalRejected
	return user, nil
}

// guard enforces the shared preconditions: admin actor, target holds
// the center_admin role, target still pending.
func (s *ApprovalService) guard(ctx context.Context, actor authz.Actor, userID string) (*models.User, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin only")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.HasRole(models.RoleCenterAdmin) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a center admin")
	}
	if user.ApprovalStatus != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("approval status is %s, expected pending", user.ApprovalStatus))
	}
	return user, nil
}
