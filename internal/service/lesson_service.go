package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
}

// LessonRequest creates or updates a lesson within a group.
type LessonRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description *string   `json:"description"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// LessonService exposes lesson CRUD gated per group.
type LessonService struct {
	repo      lessonRepository
	groups    groupReader
	engine    *authz.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(repo lessonRepository, groups groupReader, engine *authz.Engine, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{repo: repo, groups: groups, engine: engine, validator: validate, logger: logger}
}

// Create adds a lesson to a group the actor may write to.
func (s *LessonService) Create(ctx context.Context, actor authz.Actor, groupID string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	group, err := s.visibleGroup(ctx, actor, groupID, authz.ActionCreate, "")
	if err != nil {
		return nil, err
	}
	lesson := &models.Lesson{
		GroupID:     group.ID,
		Title:       req.Title,
		Description: req.Description,
		ScheduledAt: req.ScheduledAt,
	}
	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// Get returns a lesson the actor may view, not found otherwise.
func (s *LessonService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Lesson, error) {
	lesson, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleGroup(ctx, actor, lesson.GroupID, authz.ActionView, lesson.ID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	return lesson, nil
}

// List returns the lessons of a group visible to the actor.
func (s *LessonService) List(ctx context.Context, actor authz.Actor, filter models.LessonFilter) ([]models.Lesson, int, error) {
	if filter.GroupID == "" {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "group_id is required")
	}
	if _, err := s.visibleGroup(ctx, actor, filter.GroupID, authz.ActionView, ""); err != nil {
		return nil, 0, err
	}
	lessons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, total, nil
}

// Update changes a lesson's fields.
func (s *LessonService) Update(ctx context.Context, actor authz.Actor, id string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleGroup(ctx, actor, lesson.GroupID, authz.ActionUpdate, lesson.ID); err != nil {
		return nil, err
	}
	lesson.Title = req.Title
	lesson.Description = req.Description
	lesson.ScheduledAt = req.ScheduledAt
	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// Delete removes a lesson. Assistants may create and update but not
// delete; the rule table enforces that.
func (s *LessonService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	lesson, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.visibleGroup(ctx, actor, lesson.GroupID, authz.ActionDelete, lesson.ID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	return nil
}

// visibleGroup loads the group and checks the action against the
// lesson rules; failures surface as not found to hide existence.
func (s *LessonService) visibleGroup(ctx context.Context, actor authz.Actor, groupID string, action authz.Action, lessonID string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	ok, err := s.engine.Can(ctx, actor, action, authz.GroupChildResource(authz.EntityLesson, lessonID, group))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate permissions")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	return group, nil
}

func (s *LessonService) fetch(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}
