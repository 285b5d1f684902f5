package postgresql

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

type PermissionGrantRepository struct {
	db *database.DB
}

func NewPermissionGrantRepository(db *database.DB) repositories.PermissionGrantRepository {
	return &PermissionGrantRepository{db: db}
}

func (r *PermissionGrantRepository) Grant(ctx context.Context, grant *models.UserPermissionGrant) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	grant.TenantID = tenantID
	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("permission '%s' already granted: %w", grant.Permission, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

func (r *PermissionGrantRepository) Revoke(ctx context.Context, documentID, userID uuid.UUID, permission models.DocumentPermissionName) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Where("document_id = ? AND user_id = ? AND permission = ?", documentID, userID, permission).
		Delete(&models.UserPermissionGrant{})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke permission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("grant not found: %w", repositories.ErrNotFound)
	}
	return nil
}

func (r *PermissionGrantRepository) ListForUser(ctx context.Context, documentID, userID uuid.UUID) ([]models.DocumentPermissionName, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var names []models.DocumentPermissionName
	err = q.Model(&models.UserPermissionGrant{}).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		Pluck("permission", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return names, nil
}

func (r *PermissionGrantRepository) ListForDocument(ctx context.Context, documentID uuid.UUID) ([]models.UserPermissionGrant, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var grants []models.UserPermissionGrant
	if err := q.Where("document_id = ?", documentID).Order("created_at ASC").Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

func (r *PermissionGrantRepository) HoldersOf(ctx context.Context, documentID uuid.UUID, permission models.DocumentPermissionName) ([]uuid.UUID, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err = q.Model(&models.UserPermissionGrant{}).
		Where("document_id = ? AND permission = ?", documentID, permission).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list permission holders: %w", err)
	}
	return ids, nil
}
