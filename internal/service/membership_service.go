package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type membershipRepository interface {
	Upsert(ctx context.Context, groupID, studentID string, status models.MembershipStatus, joinedAt *time.Time) error
	Find(ctx context.Context, groupID, studentID string) (*models.GroupStudent, error)
	UpdateStatus(ctx context.Context, groupID, studentID string, status models.MembershipStatus, joinedAt *time.Time) error
	Roster(ctx context.Context, groupID string) ([]models.GroupStudentDetail, error)
	Pending(ctx context.Context, groupID string) ([]models.GroupStudentDetail, error)
	Delete(ctx context.Context, groupID, studentID string) error
}

type groupReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, userID string, typ models.NotificationType, title, message string)
}

type rosterCache interface {
	Get(ctx context.Context, groupID string) ([]models.GroupStudentDetail, bool)
	Set(ctx context.Context, groupID string, roster []models.GroupStudentDetail)
	Invalidate(ctx context.Context, groupID string)
}

// MembershipService runs the GroupStudent state machine:
// pending → approved or pending → rejected, both terminal. Staff adds
// bypass pending entirely and force approved whatever the prior status
// was, including rejected; that overwrite is existing behavior kept on
// purpose.
type MembershipService struct {
	repo   membershipRepository
	groups groupReader
	users  userReader
	engine *authz.Engine
	notify notifier
	cache  rosterCache
	logger *zap.Logger
}

// NewMembershipService constructs MembershipService. notify and cache
// may be nil.
func NewMembershipService(repo membershipRepository, groups groupReader, users userReader, engine *authz.Engine, notify notifier, cache rosterCache, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{repo: repo, groups: groups, users: users, engine: engine, notify: notify, cache: cache, logger: logger}
}

func (s *MembershipService) manageableGroup(ctx context.Context, actor authz.Actor, groupID string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	ok, err := s.engine.CanManageGroup(ctx, actor, group)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		// Out-of-scope groups look nonexistent.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	return group, nil
}

// Add is the staff-initiated enrollment: the target must hold the
// student role and the row is upserted straight to approved with no
// pending step.
func (s *MembershipService) Add(ctx context.Context, actor authz.Actor, groupID, studentID string) (*models.GroupStudent, error) {
	group, err := s.manageableGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.HasRole(models.RoleStudent) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user does not hold the student role")
	}
	if student.CenterID == nil || *student.CenterID != group.CenterID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student belongs to a different center")
	}

	now := time.Now().UTC()
	if err := s.repo.Upsert(ctx, groupID, studentID, models.MembershipApproved, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add student")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, groupID)
	}
	if s.notify != nil {
		s.notify.Notify(ctx, studentID, models.NotificationMembership, "Added to group",
			fmt.Sprintf("You were added to %s.", group.Name))
	}

	membership, err := s.repo.Find(ctx, groupID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	return membership, nil
}

// Request is the student self-service join flow; it produces the only
// pending rows in the system.
func (s *MembershipService) Request(ctx context.Context, actor authz.Actor, groupID string) (*models.GroupStudent, error) {
	if !actor.HasRole(models.RoleStudent) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can request to join")
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	// Groups in other centers read as nonexistent, same as the staff
	// paths.
	if actor.CenterID == nil || *actor.CenterID != group.CenterID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	if !group.IsActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "group is not active")
	}

	if err := s.repo.Upsert(ctx, groupID, actor.ID, models.MembershipPending, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request membership")
	}

	membership, err := s.repo.Find(ctx, groupID, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	return membership, nil
}

// Approve transitions a pending request to approved and stamps
// joined_at. Non-pending rows are rejected with a descriptive error.
func (s *MembershipService) Approve(ctx context.Context, actor authz.Actor, groupID, studentID string) (*models.GroupStudent, error) {
	return s.transition(ctx, actor, groupID, studentID, models.MembershipApproved)
}

// Reject transitions a pending request to rejected.
func (s *MembershipService) Reject(ctx context.Context, actor authz.Actor, groupID, studentID string) (*models.GroupStudent, error) {
	return s.transition(ctx, actor, groupID, studentID, models.MembershipRejected)
}

func (s *MembershipService) transition(ctx context.Context, actor authz.Actor, groupID, studentID string, target models.MembershipStatus) (*models.GroupStudent, error) {
	group, err := s.manageableGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}

	membership, err := s.repo.Find(ctx, groupID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	if membership.Status != models.MembershipPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("membership is %s, expected pending", membership.Status))
	}

	var joinedAt *time.Time
	if target == models.MembershipApproved {
		now := time.Now().UTC()
		joinedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, groupID, studentID, target, joinedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update membership")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, groupID)
	}
	if s.notify != nil {
		title := "Join request approved"
		message := fmt.Sprintf("Your request to join %s was approved.", group.Name)
		if target == models.MembershipRejected {
			title = "Join request rejected"
			message = fmt.Sprintf("Your request to join %s was rejected.", group.Name)
		}
		s.notify.Notify(ctx, studentID, models.NotificationMembership, title, message)
	}

	updated, err := s.repo.Find(ctx, groupID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	return updated, nil
}

// Roster returns the approved members of a group, via cache when
// enabled. Visibility follows the group view rule.
func (s *MembershipService) Roster(ctx context.Context, actor authz.Actor, groupID string) ([]models.GroupStudentDetail, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	allowed, err := s.engine.Can(ctx, actor, authz.ActionView, authz.GroupResource(group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}

	if s.cache != nil {
		if roster, ok := s.cache.Get(ctx, groupID); ok {
			return roster, nil
		}
	}
	roster, err := s.repo.Roster(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if s.cache != nil {
		s.cache.Set(ctx, groupID, roster)
	}
	return roster, nil
}

// PendingRequests lists open join requests, visible to group managers
// only.
func (s *MembershipService) PendingRequests(ctx context.Context, actor authz.Actor, groupID string) ([]models.GroupStudentDetail, error) {
	if _, err := s.manageableGroup(ctx, actor, groupID); err != nil {
		return nil, err
	}
	pending, err := s.repo.Pending(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requests")
	}
	return pending, nil
}

// Remove deletes a membership row.
func (s *MembershipService) Remove(ctx context.Context, actor authz.Actor, groupID, studentID string) error {
	if _, err := s.manageableGroup(ctx, actor, groupID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, groupID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove membership")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, groupID)
	}
	return nil
}
