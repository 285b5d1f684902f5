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

type VotingProcessRepository struct {
	db *database.DB
}

func NewVotingProcessRepository(db *database.DB) repositories.VotingProcessRepository {
	return &VotingProcessRepository{db: db}
}

func (r *VotingProcessRepository) Create(ctx context.Context, process *models.VotingProcess) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	if process.ID == uuid.Nil {
		process.ID = uuid.New()
	}
	process.TenantID = tenantID
	for i := range process.Voters {
		process.Voters[i].TenantID = tenantID
		process.Voters[i].ProcessID = process.ID
		process.Voters[i].Position = i
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(process).Error; err != nil {
			return fmt.Errorf("failed to create voting process: %w", err)
		}
		if len(process.Voters) > 0 {
			if err := tx.Create(&process.Voters).Error; err != nil {
				return fmt.Errorf("failed to create voters: %w", err)
			}
		}
		return nil
	})
}

func (r *VotingProcessRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VotingProcess, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var process models.VotingProcess
	err = q.Preload("Voters", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).
		Preload("Votes", func(db *gorm.DB) *gorm.DB {
			return db.Order("cast_at ASC")
		}).
		Where("id = ?", id).First(&process).Error
	if err != nil {
		return nil, notFound(err, "voting process")
	}
	return &process, nil
}

func (r *VotingProcessRepository) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.VotingProcess, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var processes []models.VotingProcess
	err = q.Preload("Voters", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).
		Preload("Votes").
		Where("version_id = ?", versionID).Order("created_at ASC").Find(&processes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list voting processes: %w", err)
	}
	return processes, nil
}

func (r *VotingProcessRepository) CountByVersion(ctx context.Context, versionID uuid.UUID) (int64, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := q.Model(&models.VotingProcess{}).Where("version_id = ?", versionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count voting processes: %w", err)
	}
	return count, nil
}

func (r *VotingProcessRepository) Resolve(ctx context.Context, id uuid.UUID, status models.VotingStatus) error {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	result := q.Model(&models.VotingProcess{}).
		Where("id = ? AND status = ?", id, models.VotingInProgress).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to resolve voting process: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("voting process %s is no longer in progress: %w", id, repositories.ErrConflict)
	}
	return nil
}

func (r *VotingProcessRepository) Reconfigure(ctx context.Context, id uuid.UUID, voters []uuid.UUID, deadline time.Time) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var process models.VotingProcess
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND id = ?", tenantID, id).First(&process).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("voting process not found: %w", repositories.ErrNotFound)
			}
			return fmt.Errorf("failed to lock voting process: %w", err)
		}
		if process.Status != models.VotingInProgress {
			return fmt.Errorf("voting process %s is no longer in progress: %w", id, repositories.ErrConflict)
		}

		var votes int64
		if err := tx.Model(&models.Vote{}).Where("process_id = ?", id).Count(&votes).Error; err != nil {
			return fmt.Errorf("failed to count votes: %w", err)
		}
		if votes > 0 {
			return fmt.Errorf("voting process %s already has votes: %w", id, repositories.ErrConflict)
		}

		if voters != nil {
			if err := tx.Where("process_id = ?", id).Delete(&models.VotingProcessVoter{}).Error; err != nil {
				return fmt.Errorf("failed to clear voters: %w", err)
			}
			rows := make([]models.VotingProcessVoter, 0, len(voters))
			for i, userID := range voters {
				rows = append(rows, models.VotingProcessVoter{
					Base:      models.Base{TenantID: tenantID},
					ProcessID: id,
					UserID:    userID,
					Position:  i,
				})
			}
			if len(rows) > 0 {
				if err := tx.Create(&rows).Error; err != nil {
					return fmt.Errorf("failed to create voters: %w", err)
				}
			}
		}

		if err := tx.Model(&models.VotingProcess{}).Where("id = ?", id).Update("deadline", deadline).Error; err != nil {
			return fmt.Errorf("failed to update deadline: %w", err)
		}
		return nil
	})
}

func (r *VotingProcessRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("process_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("failed to delete votes: %w", err)
		}
		if err := tx.Where("process_id = ?", id).Delete(&models.VotingProcessVoter{}).Error; err != nil {
			return fmt.Errorf("failed to delete voters: %w", err)
		}
		result := tx.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.VotingProcess{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete voting process: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("voting process not found: %w", repositories.ErrNotFound)
		}
		return nil
	})
}
