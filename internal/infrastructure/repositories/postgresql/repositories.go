package postgresql

import (
	"context"
	"fmt"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	TenantRepo       repositories.TenantRepository
	UserRepo         repositories.UserRepository
	DocumentTypeRepo repositories.DocumentTypeRepository
	DocumentRepo     repositories.DocumentRepository
	VersionRepo      repositories.DocumentVersionRepository
	GrantRepo        repositories.PermissionGrantRepository
	SignatureRepo    repositories.SignatureRepository
	VotingRepo       repositories.VotingProcessRepository
	VoteRepo         repositories.VoteRepository
	SubstitutionRepo repositories.SubstitutionRepository
	AuditRepo        repositories.AuditLogRepository
	NotificationRepo repositories.NotificationRepository

	// Internal reference to database for health checks
	db *database.DB
}

// NewRepositories creates a new repositories container
func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		TenantRepo:       NewTenantRepository(db),
		UserRepo:         NewUserRepository(db),
		DocumentTypeRepo: NewDocumentTypeRepository(db),
		DocumentRepo:     NewDocumentRepository(db),
		VersionRepo:      NewDocumentVersionRepository(db),
		GrantRepo:        NewPermissionGrantRepository(db),
		SignatureRepo:    NewSignatureRepository(db),
		VotingRepo:       NewVotingProcessRepository(db),
		VoteRepo:         NewVoteRepository(db),
		SubstitutionRepo: NewSubstitutionRepository(db),
		AuditRepo:        NewAuditLogRepository(db),
		NotificationRepo: NewNotificationRepository(db),
		db:               db,
	}
}

// HealthCheck verifies database connectivity
func (r *Repositories) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
