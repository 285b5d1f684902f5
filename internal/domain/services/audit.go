package services

import (
	"context"
	"log/slog"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
)

// Resource types written to the audit log
const (
	ResourceDocument      = "document"
	ResourceVersion       = "document_version"
	ResourceSignature     = "signature"
	ResourceVotingProcess = "voting_process"
	ResourceSubstitution  = "substitution"
)

// auditTrail writes audit rows without failing the operation that produced them.
type auditTrail struct {
	repo   repositories.AuditLogRepository
	logger *logger.Logger
}

func (a auditTrail) record(ctx context.Context, by Identity, resourceType string, resourceID uuid.UUID, action models.AuditAction, details models.JSONB) {
	if a.repo == nil {
		return
	}
	if details == nil {
		details = models.JSONB{}
	}
	if by.Delegated() {
		details["acting_user_id"] = by.ActorID.String()
	}

	entry := &models.AuditLog{
		UserID:       by.PerformedAs,
		ActorID:      by.ActorID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Action:       action,
		Details:      details,
	}
	if err := a.repo.Create(ctx, entry); err != nil && a.logger != nil {
		a.logger.Warn("failed to write audit log",
			slog.String("resource_type", resourceType),
			slog.String("resource_id", resourceID.String()),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}
