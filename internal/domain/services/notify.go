package services

import (
	"context"
	"log/slog"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
)

// notifier turns workflow outcomes into events for the emitter. Lookup
// failures are logged; notification never fails the workflow.
type notifier struct {
	emitter   EventEmitter
	grantRepo repositories.PermissionGrantRepository
	userRepo  repositories.UserRepository
	clock     Clock
	logger    *logger.Logger
}

func (n notifier) toEmails(ctx context.Context, versionID uuid.UUID, eventType EventType, emails ...string) {
	if n.emitter == nil {
		return
	}
	tenantID, _ := tenant.FromContext(ctx)
	for _, email := range emails {
		n.emitter.Emit(ctx, WorkflowEvent{
			ID:                uuid.New(),
			TenantID:          tenantID,
			DocumentVersionID: versionID,
			UserEmail:         email,
			EventType:         eventType,
			OccurredAt:        n.clock(),
		})
	}
}

func (n notifier) toUsers(ctx context.Context, versionID uuid.UUID, eventType EventType, userIDs []uuid.UUID) {
	if n.emitter == nil || len(userIDs) == 0 {
		return
	}
	users, err := n.userRepo.GetByIDs(ctx, userIDs)
	if err != nil {
		n.logger.Warn("failed to resolve event recipients",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
		return
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	n.toEmails(ctx, versionID, eventType, emails...)
}

// toCreators notifies everyone holding CREATOR on the document.
func (n notifier) toCreators(ctx context.Context, documentID, versionID uuid.UUID, eventType EventType) {
	if n.emitter == nil {
		return
	}
	holders, err := n.grantRepo.HoldersOf(ctx, documentID, models.PermissionCreator)
	if err != nil {
		n.logger.Warn("failed to resolve document creators",
			slog.String("document_id", documentID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	n.toUsers(ctx, versionID, eventType, holders)
}
