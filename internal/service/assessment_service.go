package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type assessmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
	Create(ctx context.Context, assessment *models.Assessment) error
	Update(ctx context.Context, assessment *models.Assessment) error
	Delete(ctx context.Context, id string) error
	UpsertResult(ctx context.Context, result *models.AssessmentResult) error
	ListResults(ctx context.Context, assessmentID string) ([]models.AssessmentResult, error)
}

type rosterReader interface {
	Roster(ctx context.Context, groupID string) ([]models.GroupStudentDetail, error)
}

// AssessmentRequest creates or updates an assessment.
type AssessmentRequest struct {
	Title    string     `json:"title" validate:"required"`
	LessonID *string    `json:"lesson_id"`
	MaxScore float64    `json:"max_score" validate:"gt=0"`
	DueAt    *time.Time `json:"due_at"`
}

// SubmitResultRequest records one student's score.
type SubmitResultRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Score     float64 `json:"score" validate:"gte=0"`
	Feedback  *string `json:"feedback"`
}

// AssessmentService exposes assessment CRUD and result grading.
type AssessmentService struct {
	repo      assessmentRepository
	groups    groupReader
	roster    rosterReader
	engine    *authz.Engine
	notify    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssessmentService constructs AssessmentService. roster and notify
// may be nil; without them new assessments go unannounced.
func NewAssessmentService(repo assessmentRepository, groups groupReader, roster rosterReader, engine *authz.Engine, notify notifier, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{repo: repo, groups: groups, roster: roster, engine: engine, notify: notify, validator: validate, logger: logger}
}

// Create adds an assessment to a group and announces it to every
// approved member once the row is in.
func (s *AssessmentService) Create(ctx context.Context, actor authz.Actor, groupID string, req AssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	group, err := s.visibleGroup(ctx, actor, groupID, authz.ActionCreate, "")
	if err != nil {
		return nil, err
	}
	assessment := &models.Assessment{
		GroupID:  group.ID,
		LessonID: req.LessonID,
		Title:    req.Title,
		MaxScore: req.MaxScore,
		DueAt:    req.DueAt,
	}
	if err := s.repo.Create(ctx, assessment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment")
	}
	s.announce(ctx, group, assessment)
	return assessment, nil
}

// announce notifies approved group members of a new assessment.
// Failures are logged and swallowed; the assessment already exists.
func (s *AssessmentService) announce(ctx context.Context, group *models.Group, assessment *models.Assessment) {
	if s.notify == nil || s.roster == nil {
		return
	}
	roster, err := s.roster.Roster(ctx, group.ID)
	if err != nil {
		s.logger.Warn("failed to load roster for announcement",
			zap.String("group_id", group.ID), zap.Error(err))
		return
	}
	message := fmt.Sprintf("New assessment %q in %s.", assessment.Title, group.Name)
	for _, member := range roster {
		s.notify.Notify(ctx, member.StudentID, models.NotificationNewAssessment, "New assessment", message)
	}
}

// Get returns an assessment the actor may view, not found otherwise.
func (s *AssessmentService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Assessment, error) {
	assessment, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleGroup(ctx, actor, assessment.GroupID, authz.ActionView, assessment.ID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
	}
	return assessment, nil
}

// List returns the assessments of a group visible to the actor.
func (s *AssessmentService) List(ctx context.Context, actor authz.Actor, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	if filter.GroupID == "" {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "group_id is required")
	}
	if _, err := s.visibleGroup(ctx, actor, filter.GroupID, authz.ActionView, ""); err != nil {
		return nil, 0, err
	}
	assessments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	return assessments, total, nil
}

// Update changes an assessment's fields.
func (s *AssessmentService) Update(ctx context.Context, actor authz.Actor, id string, req AssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	assessment, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleGroup(ctx, actor, assessment.GroupID, authz.ActionUpdate, assessment.ID); err != nil {
		return nil, err
	}
	assessment.Title = req.Title
	assessment.LessonID = req.LessonID
	assessment.MaxScore = req.MaxScore
	assessment.DueAt = req.DueAt
	if err := s.repo.Update(ctx, assessment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assessment")
	}
	return assessment, nil
}

// Delete removes an assessment and its results.
func (s *AssessmentService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	assessment, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.visibleGroup(ctx, actor, assessment.GroupID, authz.ActionDelete, assessment.ID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment")
	}
	return nil
}

// SubmitResult records or re-records a student's score, one row per
// (assessment, student). The score may not exceed the assessment's
// maximum.
func (s *AssessmentService) SubmitResult(ctx context.Context, actor authz.Actor, assessmentID string, req SubmitResultRequest) (*models.AssessmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}
	assessment, err := s.fetch(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if req.Score > assessment.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("score %.2f exceeds maximum %.2f", req.Score, assessment.MaxScore))
	}
	if _, err := s.visibleGroup(ctx, actor, assessment.GroupID, authz.ActionUpdate, assessment.ID); err != nil {
		return nil, err
	}
	result := &models.AssessmentResult{
		AssessmentID: assessment.ID,
		StudentID:    req.StudentID,
		Score:        req.Score,
		Feedback:     req.Feedback,
		GradedBy:     actor.ID,
	}
	if err := s.repo.UpsertResult(ctx, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record result")
	}
	return result, nil
}

// ListResults returns all recorded results for an assessment.
func (s *AssessmentService) ListResults(ctx context.Context, actor authz.Actor, assessmentID string) ([]models.AssessmentResult, error) {
	assessment, err := s.fetch(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleGroup(ctx, actor, assessment.GroupID, authz.ActionView, assessment.ID); err != nil {
		return nil, err
	}
	results, err := s.repo.ListResults(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	return results, nil
}

func (s *AssessmentService) visibleGroup(ctx context.Context, actor authz.Actor, groupID string, action authz.Action, assessmentID string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	ok, err := s.engine.Can(ctx, actor, action, authz.GroupChildResource(authz.EntityAssessment, assessmentID, group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
	}
	return group, nil
}

func (s *AssessmentService) fetch(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	return assessment, nil
}
