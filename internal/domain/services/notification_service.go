package services

import (
	"context"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

// NotificationService exposes the in-app notifications the worker writes
// from queued workflow events.
type NotificationService struct {
	repo repositories.NotificationRepository
}

func NewNotificationService(repo repositories.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor, params repositories.ListParams) ([]models.Notification, int64, error) {
	return s.repo.ListByEmail(ctx, actor.Email, params)
}

// MarkRead flags one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, id, actor.Email); err != nil {
		if isNotFound(err) {
			return fail(ErrNotificationNotFound, id, "mark_notification_read", err)
		}
		return err
	}
	return nil
}
