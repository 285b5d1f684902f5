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

type VoteRepository struct {
	db *database.DB
}

func NewVoteRepository(db *database.DB) repositories.VoteRepository {
	return &VoteRepository{db: db}
}

func (r *VoteRepository) Create(ctx context.Context, vote *models.Vote) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	vote.TenantID = tenantID

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Reconfigure takes the same lock, so the voter list cannot change
		// between the eligibility check and the insert.
		var process models.VotingProcess
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND id = ?", tenantID, vote.ProcessID).
			First(&process).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("voting process not found: %w", repositories.ErrNotFound)
			}
			return fmt.Errorf("failed to lock voting process: %w", err)
		}
		if process.Status != models.VotingInProgress {
			return fmt.Errorf("voting process %s is no longer in progress: %w", vote.ProcessID, repositories.ErrConflict)
		}

		var eligible int64
		if err := tx.Model(&models.VotingProcessVoter{}).
			Where("process_id = ? AND user_id = ?", vote.ProcessID, vote.UserID).
			Count(&eligible).Error; err != nil {
			return fmt.Errorf("failed to check voter: %w", err)
		}
		if eligible == 0 {
			return fmt.Errorf("user %s: %w", vote.UserID, repositories.ErrNotEligible)
		}

		if err := tx.Create(vote).Error; err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("user already voted: %w", repositories.ErrDuplicate)
			}
			return fmt.Errorf("failed to create vote: %w", err)
		}
		return nil
	})
}

func (r *VoteRepository) ListByProcess(ctx context.Context, processID uuid.UUID) ([]models.Vote, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var votes []models.Vote
	if err := q.Where("process_id = ?", processID).Order("cast_at ASC").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}
