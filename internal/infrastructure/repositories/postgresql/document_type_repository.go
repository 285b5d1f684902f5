package postgresql

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

type DocumentTypeRepository struct {
	db *database.DB
}

func NewDocumentTypeRepository(db *database.DB) repositories.DocumentTypeRepository {
	return &DocumentTypeRepository{db: db}
}

func (r *DocumentTypeRepository) Create(ctx context.Context, docType *models.DocumentType) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	docType.TenantID = tenantID
	if err := r.db.WithContext(ctx).Create(docType).Error; err != nil {
		return fmt.Errorf("failed to create document type: %w", err)
	}
	return nil
}

func (r *DocumentTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentType, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var docType models.DocumentType
	if err := q.Where("id = ?", id).First(&docType).Error; err != nil {
		return nil, notFound(err, "document type")
	}
	return &docType, nil
}

func (r *DocumentTypeRepository) List(ctx context.Context) ([]models.DocumentType, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var types []models.DocumentType
	if err := q.Order("name ASC").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to list document types: %w", err)
	}
	return types, nil
}
