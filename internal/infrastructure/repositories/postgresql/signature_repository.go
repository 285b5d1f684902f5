package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SignatureRepository struct {
	db *database.DB
}

func NewSignatureRepository(db *database.DB) repositories.SignatureRepository {
	return &SignatureRepository{db: db}
}

func (r *SignatureRepository) Create(ctx context.Context, signature *models.Signature) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	signature.TenantID = tenantID

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Concurrent requests for the same version queue on its row.
		var version models.DocumentVersion
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("tenant_id = ? AND id = ?", tenantID, signature.VersionID).
			First(&version).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("document version not found: %w", repositories.ErrNotFound)
			}
			return fmt.Errorf("failed to lock document version: %w", err)
		}

		if signature.Status == models.SignaturePending {
			var pending int64
			err := tx.Model(&models.Signature{}).
				Where("tenant_id = ? AND version_id = ? AND user_id = ? AND status = ?",
					tenantID, signature.VersionID, signature.UserID, models.SignaturePending).
				Count(&pending).Error
			if err != nil {
				return fmt.Errorf("failed to check pending signatures: %w", err)
			}
			if pending > 0 {
				return fmt.Errorf("signer already has a pending signature: %w", repositories.ErrDuplicate)
			}
		}

		if err := tx.Omit(clause.Associations).Create(signature).Error; err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("signer already has a pending signature: %w", repositories.ErrDuplicate)
			}
			return fmt.Errorf("failed to create signature: %w", err)
		}
		return nil
	})
}

func (r *SignatureRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Signature, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var signature models.Signature
	if err := q.Where("id = ?", id).First(&signature).Error; err != nil {
		return nil, notFound(err, "signature")
	}
	return &signature, nil
}

func (r *SignatureRepository) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.Signature, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var signatures []models.Signature
	if err := q.Preload("User").Where("version_id = ?", versionID).Order("sent_at ASC").Find(&signatures).Error; err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	return signatures, nil
}

func (r *SignatureRepository) CountByVersion(ctx context.Context, versionID uuid.UUID) (int64, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := q.Model(&models.Signature{}).Where("version_id = ?", versionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count signatures: %w", err)
	}
	return count, nil
}

func (r *SignatureRepository) HasPending(ctx context.Context, versionID, userID uuid.UUID) (bool, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return false, err
	}
	var count int64
	err = q.Model(&models.Signature{}).
		Where("version_id = ? AND user_id = ? AND status = ?", versionID, userID, models.SignaturePending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending signatures: %w", err)
	}
	return count > 0, nil
}

func (r *SignatureRepository) Complete(ctx context.Context, id uuid.UUID, status models.SignatureStatus, signedAt time.Time, data string) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"status":    status,
		"signed_at": signedAt,
	}
	if data != "" {
		updates["signature_data"] = data
	}
	result := q.Model(&models.Signature{}).
		Where("id = ? AND status = ?", id, models.SignaturePending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to complete signature: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("signature %s is no longer pending: %w", id, repositories.ErrConflict)
	}
	return nil
}

func (r *SignatureRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Where("id = ?", id).Delete(&models.Signature{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete signature: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("signature not found: %w", repositories.ErrNotFound)
	}
	return nil
}
