package postgresql

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

// TenantRepository is the only repository not filtered by tenant scope; it
// resolves the scope itself.
type TenantRepository struct {
	db *database.DB
}

func NewTenantRepository(db *database.DB) repositories.TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("tenant with subdomain '%s' already exists: %w", tenant.Subdomain, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, notFound(err, "tenant")
	}
	return &tenant, nil
}

func (r *TenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).Where("subdomain = ? AND is_active = ?", subdomain, true).First(&tenant).Error
	if err != nil {
		return nil, notFound(err, "tenant")
	}
	return &tenant, nil
}

func (r *TenantRepository) List(ctx context.Context, params repositories.ListParams) ([]models.Tenant, int64, error) {
	params = params.Normalize()
	var tenants []models.Tenant
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Tenant{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	err := query.Order("created_at DESC").Offset(params.Offset()).Limit(params.PageSize).Find(&tenants).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, total, nil
}
