package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) repositories.NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	notification.TenantID = tenantID
	notification.UserEmail = strings.ToLower(notification.UserEmail)
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByEmail(ctx context.Context, email string, params repositories.ListParams) ([]models.Notification, int64, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, 0, err
	}
	params = params.Normalize()

	var notifications []models.Notification
	var total int64
	query := q.Model(&models.Notification{}).Where("user_email = ?", strings.ToLower(email))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	err = query.Order("created_at DESC").Offset(params.Offset()).Limit(params.PageSize).Find(&notifications).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, id uuid.UUID, email string) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Model(&models.Notification{}).
		Where("id = ? AND user_email = ?", id, strings.ToLower(email)).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found: %w", repositories.ErrNotFound)
	}
	return nil
}
