package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepository struct {
	db *database.DB
}

func NewDocumentRepository(db *database.DB) repositories.DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, document *models.Document, version *models.DocumentVersion, grant *models.UserPermissionGrant) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	document.TenantID = tenantID
	document.CurrentVersionID = &version.ID
	version.TenantID = tenantID
	version.DocumentID = document.ID
	grant.TenantID = tenantID
	grant.DocumentID = document.ID

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(document).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if err := tx.Omit(clause.Associations).Create(version).Error; err != nil {
			return fmt.Errorf("failed to create document version: %w", err)
		}
		if err := tx.Create(grant).Error; err != nil {
			return fmt.Errorf("failed to create creator grant: %w", err)
		}
		return nil
	})
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var document models.Document
	err = q.Preload("DocumentType").
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number ASC")
		}).
		Preload("Grants").
		Where("id = ?", id).First(&document).Error
	if err != nil {
		return nil, notFound(err, "document")
	}
	return &document, nil
}

func (r *DocumentRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Model(&models.Document{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to rename document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document not found: %w", repositories.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) SetCurrentVersion(ctx context.Context, id, versionID uuid.UUID) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Model(&models.Document{}).Where("id = ?", id).Update("current_version_id", versionID)
	if result.Error != nil {
		return fmt.Errorf("failed to set current version: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document not found: %w", repositories.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) List(ctx context.Context, params repositories.ListParams) ([]models.Document, int64, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, 0, err
	}
	params = params.Normalize()

	var documents []models.Document
	var total int64
	query := q.Model(&models.Document{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	orderBy := orderClause(params.SortBy, params.SortDesc,
		map[string]bool{"name": true, "created_at": true, "updated_at": true}, "created_at DESC")
	err = query.Order(orderBy).Offset(params.Offset()).Limit(params.PageSize).Find(&documents).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return documents, total, nil
}

// Delete refuses with ErrConflict when any version sits outside draft or archived.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var document models.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND id = ?", tenantID, id).First(&document).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("document not found: %w", repositories.ErrNotFound)
			}
			return fmt.Errorf("failed to lock document: %w", err)
		}

		var busy int64
		err := tx.Model(&models.DocumentVersion{}).
			Where("document_id = ? AND status NOT IN ?", id,
				[]models.DocumentStatus{models.StatusDraft, models.StatusArchived}).
			Count(&busy).Error
		if err != nil {
			return fmt.Errorf("failed to check version status: %w", err)
		}
		if busy > 0 {
			return fmt.Errorf("document has versions in workflow: %w", repositories.ErrConflict)
		}

		versions := tx.Model(&models.DocumentVersion{}).Select("id").Where("document_id = ?", id)
		processes := tx.Model(&models.VotingProcess{}).Select("id").Where("version_id IN (?)", versions)

		steps := []struct {
			model interface{}
			where string
			arg   interface{}
		}{
			{&models.Vote{}, "process_id IN (?)", processes},
			{&models.VotingProcessVoter{}, "process_id IN (?)", processes},
			{&models.VotingProcess{}, "version_id IN (?)", versions},
			{&models.Signature{}, "version_id IN (?)", versions},
			{&models.UserPermissionGrant{}, "document_id = ?", id},
			{&models.DocumentVersion{}, "document_id = ?", id},
			{&models.Document{}, "id = ?", id},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, step.arg).Delete(step.model).Error; err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
		}
		return nil
	})
}
