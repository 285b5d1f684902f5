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

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) repositories.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	_, tenantID, err := scoped(ctx, r.db)
	if err != nil {
		return err
	}
	user.TenantID = tenantID
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("user with email '%s' already exists: %w", user.Email, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := q.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// GetByEmail matches case-insensitively; emails are stored lowercased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var user models.User
	email = strings.ToLower(strings.TrimSpace(email))
	if err := q.Where("email = ? AND is_active = ?", email, true).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := q.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) List(ctx context.Context, params repositories.ListParams) ([]models.User, int64, error) {
	q, _, err := scoped(ctx, r.db)
	if err != nil {
		return nil, 0, err
	}
	params = params.Normalize()

	var users []models.User
	var total int64
	query := q.Model(&models.User{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	orderBy := orderClause(params.SortBy, params.SortDesc,
		map[string]bool{"email": true, "created_at": true, "last_name": true}, "created_at DESC")
	err = query.Order(orderBy).Offset(params.Offset()).Limit(params.PageSize).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}
