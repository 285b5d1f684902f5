package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// scoped returns a session filtered to the tenant on ctx.
func scoped(ctx context.Context, db *database.DB) (*gorm.DB, uuid.UUID, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, uuid.Nil, repositories.ErrMissingTenantScope
	}
	return db.WithContext(ctx).Where("tenant_id = ?", tenantID), tenantID, nil
}

// notFound maps gorm's missing-row error onto the repository sentinel.
func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s not found: %w", entity, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// PostgreSQL and SQLite wording
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func orderClause(sortBy string, desc bool, allowed map[string]bool, fallback string) string {
	if sortBy == "" || !allowed[sortBy] {
		return fallback
	}
	if desc {
		return sortBy + " DESC"
	}
	return sortBy + " ASC"
}
