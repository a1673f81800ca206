package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
	"github.com/edustack/lcm-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// Mailer delivers a notification out of process. Delivery is best
// effort; the core never awaits success.
type Mailer interface {
	Send(ctx context.Context, userID, subject, body string) error
}

// LogMailer logs instead of delivering; the default when no mail
// provider is configured.
type LogMailer struct {
	Logger *zap.Logger
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, userID, subject, _ string) error {
	if m.Logger != nil {
		m.Logger.Sugar().Infow("mail suppressed", "user_id", userID, "subject", subject)
	}
	return nil
}

// NotificationService persists notifications and defers delivery
// through the job queue. Callers invoke Notify only after their own
// transaction has committed; a failed dispatch is logged, never
// propagated, and never rolls the primary mutation back.
type NotificationService struct {
	repo   notificationRepository
	queue  *jobs.Queue
	mailer Mailer
	logger *zap.Logger
}

type notificationJob struct {
	notification models.Notification
}

// NewNotificationService constructs the service and its dispatch
// queue. Start must be called before notifications flow.
func NewNotificationService(repo notificationRepository, mailer Mailer, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = &LogMailer{Logger: logger}
	}
	s := &NotificationService{repo: repo, mailer: mailer, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification for the user. Fire and forget.
func (s *NotificationService) Notify(ctx context.Context, userID string, typ models.NotificationType, title, message string) {
	n := models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s", typ, userID),
		Type:    string(typ),
		Payload: notificationJob{notification: n},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue notification", "user_id", userID, "type", typ, "error", err)
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		s.logger.Sugar().Errorw("unexpected notification payload", "job_id", job.ID)
		return nil
	}
	n := payload.notification
	if err := s.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	if err := s.mailer.Send(ctx, n.UserID, n.Title, n.Message); err != nil {
		// Mail failure is collateral, never a request failure.
		s.logger.Sugar().Warnw("mail dispatch failed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
	return nil
}

// ListForUser returns the actor's own notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead stamps one of the actor's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead stamps all of the actor's notifications read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
