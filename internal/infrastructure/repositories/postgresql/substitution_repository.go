package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

type SubstitutionRepository struct {
	db *database.DB
}

func NewSubstitutionRepository(db *database.DB) repositories.SubstitutionRepository {
	return &SubstitutionRepository{db: db}
}

// Upsert relies on the unique principal_id index: last write wins.
func (r *SubstitutionRepository) Upsert(ctx context.Context, substitution *models.Substitution) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	substitution.TenantID = tenantID
	if substitution.ID == uuid.Nil {
		substitution.ID = uuid.New()
	}

	err = r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "principal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"substitute_id", "until", "updated_at"}),
	}).Create(substitution).Error
	if err != nil {
		return fmt.Errorf("failed to save substitution: %w", err)
	}
	return nil
}

func (r *SubstitutionRepository) GetByPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Substitution, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var substitution models.Substitution
	if err := q.Preload("Substitute").Where("principal_id = ?", principalID).First(&substitution).Error; err != nil {
		return nil, notFound(err, "substitution")
	}
	return &substitution, nil
}

func (r *SubstitutionRepository) ListActiveForSubstitute(ctx context.Context, substituteID uuid.UUID, now time.Time) ([]models.Substitution, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var substitutions []models.Substitution
	err = q.Where("substitute_id = ? AND until > ?", substituteID, now).
		Order("updated_at DESC").Find(&substitutions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list substitutions: %w", err)
	}
	return substitutions, nil
}

func (r *SubstitutionRepository) DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Where("principal_id = ?", principalID).Delete(&models.Substitution{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete substitution: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("substitution not found: %w", repositories.ErrNotFound)
	}
	return nil
}
