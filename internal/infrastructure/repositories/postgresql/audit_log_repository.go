package postgresql

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

type AuditLogRepository struct {
	db *database.DB
}

func NewAuditLogRepository(db *database.DB) repositories.AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	log.TenantID = tenantID
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) ListByResource(ctx context.Context, resourceID uuid.UUID, params repositories.ListParams) ([]models.AuditLog, int64, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, 0, err
	}
	params = params.Normalize()

	var logs []models.AuditLog
	var total int64
	query := q.Model(&models.AuditLog{}).Where("resource_id = ?", resourceID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	orderBy := orderClause(params.SortBy, params.SortDesc, map[string]bool{"created_at": true, "action": true}, "created_at DESC")
	err = query.Order(orderBy).Offset(params.Offset()).Limit(params.PageSize).Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}
