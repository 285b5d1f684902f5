package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
)

// DelegationResolver manages substitutions. Expiry is evaluated lazily against
// the clock on every lookup; nothing sweeps expired rows.
type DelegationResolver struct {
	substitutionRepo repositories.SubstitutionRepository
	userRepo         repositories.UserRepository
	audit            auditTrail
	clock            Clock
	logger           *logger.Logger
}

func NewDelegationResolver(
	substitutionRepo repositories.SubstitutionRepository,
	userRepo repositories.UserRepository,
	auditRepo repositories.AuditLogRepository,
	clock Clock,
	log *logger.Logger,
) *DelegationResolver {
	if clock == nil {
		clock = SystemClock
	}
	return &DelegationResolver{
		substitutionRepo: substitutionRepo,
		userRepo:         userRepo,
		audit:            auditTrail{repo: auditRepo, logger: log},
		clock:            clock,
		logger:           log,
	}
}

// Assign makes the user behind substituteEmail act for principal until the
// given time, replacing whatever substitution principal held before.
func (r *DelegationResolver) Assign(ctx context.Context, principal Actor, substituteEmail string, until time.Time) (*models.Substitution, error) {
	const action = "assign_substitution"

	substituteEmail = strings.TrimSpace(substituteEmail)
	if substituteEmail == "" {
		return nil, fail(ErrInvalidInput, principal.UserID, action, nil)
	}
	if !until.After(r.clock()) {
		return nil, fail(ErrInvalidInput, principal.UserID, action, errUntilInPast)
	}

	substitute, err := r.userRepo.GetByEmail(ctx, substituteEmail)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrUserNotFound, uuid.Nil, action, err)
		}
		return nil, err
	}
	if substitute.ID == principal.UserID {
		return nil, fail(ErrSelfSubstitution, principal.UserID, action, nil)
	}

	sub := &models.Substitution{
		PrincipalID:  principal.UserID,
		SubstituteID: substitute.ID,
		Until:        until.UTC(),
	}
	if err := r.substitutionRepo.Upsert(ctx, sub); err != nil {
		return nil, err
	}

	saved, err := r.substitutionRepo.GetByPrincipal(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	r.audit.record(ctx, principal.Self(), ResourceSubstitution, saved.ID, models.AuditSubstitute, models.JSONB{
		"substitute_id": substitute.ID.String(),
		"until":         saved.Until.Format(time.RFC3339),
	})
	r.logger.Info("substitution assigned",
		slog.String("principal_id", principal.UserID.String()),
		slog.String("substitute_id", substitute.ID.String()),
	)
	return saved, nil
}

// Clear removes the principal's substitution.
func (r *DelegationResolver) Clear(ctx context.Context, principal Actor) error {
	if err := r.substitutionRepo.DeleteByPrincipal(ctx, principal.UserID); err != nil {
		if isNotFound(err) {
			return fail(ErrSubstitutionNotFound, principal.UserID, "clear_substitution", err)
		}
		return err
	}
	r.audit.record(ctx, principal.Self(), ResourceSubstitution, principal.UserID, models.AuditDelete, nil)
	return nil
}

// Current returns the principal's active substitution, or nil when none is in force.
func (r *DelegationResolver) Current(ctx context.Context, principalID uuid.UUID) (*models.Substitution, error) {
	sub, err := r.substitutionRepo.GetByPrincipal(ctx, principalID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !sub.IsActiveAt(r.clock()) {
		return nil, nil
	}
	return sub, nil
}

// EffectivePrincipal returns the user actorID is currently substituting for.
// When several principals named the actor, the most recently assigned wins.
func (r *DelegationResolver) EffectivePrincipal(ctx context.Context, actorID uuid.UUID) (*uuid.UUID, error) {
	principals, err := r.ActivePrincipals(ctx, actorID)
	if err != nil || len(principals) == 0 {
		return nil, err
	}
	return &principals[0], nil
}

// ActivePrincipals lists every user actorID may currently act for, most
// recently assigned first.
func (r *DelegationResolver) ActivePrincipals(ctx context.Context, actorID uuid.UUID) ([]uuid.UUID, error) {
	now := r.clock()
	active, err := r.substitutionRepo.ListActiveForSubstitute(ctx, actorID, now)
	if err != nil {
		return nil, err
	}
	principals := make([]uuid.UUID, 0, len(active))
	for _, sub := range active {
		if sub.IsActiveAt(now) {
			principals = append(principals, sub.PrincipalID)
		}
	}
	return principals, nil
}

// actingFor reports whether actorID may currently act for principalID.
func (r *DelegationResolver) actingFor(ctx context.Context, actorID, principalID uuid.UUID) (bool, error) {
	principals, err := r.ActivePrincipals(ctx, actorID)
	if err != nil {
		return false, err
	}
	for _, p := range principals {
		if p == principalID {
			return true, nil
		}
	}
	return false, nil
}
