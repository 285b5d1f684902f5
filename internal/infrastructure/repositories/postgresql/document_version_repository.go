package postgresql

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentVersionRepository struct {
	db *database.DB
}

func NewDocumentVersionRepository(db *database.DB) repositories.DocumentVersionRepository {
	return &DocumentVersionRepository{db: db}
}

func (r *DocumentVersionRepository) Create(ctx context.Context, version *models.DocumentVersion) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	version.TenantID = tenantID
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(version).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("version %d already exists: %w", version.VersionNumber, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create document version: %w", err)
	}
	return nil
}

func (r *DocumentVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentVersion, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var version models.DocumentVersion
	err = q.Preload("Signatures", func(db *gorm.DB) *gorm.DB {
		return db.Order("sent_at ASC")
	}).
		Preload("VotingProcesses").
		Where("id = ?", id).First(&version).Error
	if err != nil {
		return nil, notFound(err, "document version")
	}
	return &version, nil
}

func (r *DocumentVersionRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.DocumentVersion, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var versions []models.DocumentVersion
	if err := q.Where("document_id = ?", documentID).Order("version_number ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list document versions: %w", err)
	}
	return versions, nil
}

func (r *DocumentVersionRepository) LatestNumber(ctx context.Context, documentID uuid.UUID) (int, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return 0, err
	}
	var latest *int
	err = q.Model(&models.DocumentVersion{}).
		Where("document_id = ?", documentID).
		Select("MAX(version_number)").Scan(&latest).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get latest version number: %w", err)
	}
	if latest == nil {
		return 0, nil
	}
	return *latest, nil
}

// CompareAndSwapStatus is the only writer of document_versions.status.
func (r *DocumentVersionRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expectedLock int64, status models.DocumentStatus) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Model(&models.DocumentVersion{}).
		Where("id = ? AND lock_version = ?", id, expectedLock).
		Updates(map[string]interface{}{
			"status":       status,
			"lock_version": gorm.Expr("lock_version + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update version status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document version %s lock %d: %w", id, expectedLock, repositories.ErrConflict)
	}
	return nil
}
