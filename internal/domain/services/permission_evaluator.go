package services

import (
	"context"
	"errors"
	"sort"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

// Capability is an action class a caller can be required to hold on a document.
type Capability string

const (
	CapabilityRead           Capability = "read"
	CapabilityEdit           Capability = "edit"
	CapabilitySendForSigning Capability = "send_for_signing"
	CapabilitySendForVoting  Capability = "send_for_voting"
	CapabilityCreator        Capability = "creator"
)

// PermissionSet is the set of permission names a user holds on one document.
type PermissionSet map[models.DocumentPermissionName]struct{}

func NewPermissionSet(names ...models.DocumentPermissionName) PermissionSet {
	s := make(PermissionSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(name models.DocumentPermissionName) bool {
	_, ok := s[name]
	return ok
}

// Union returns a new set holding the members of both.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for n := range s {
		out[n] = struct{}{}
	}
	for n := range other {
		out[n] = struct{}{}
	}
	return out
}

// Names lists the members in canonical order.
func (s PermissionSet) Names() []models.DocumentPermissionName {
	names := make([]models.DocumentPermissionName, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	order := make(map[models.DocumentPermissionName]int, len(models.AllPermissions))
	for i, p := range models.AllPermissions {
		order[p] = i
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })
	return names
}

func (s PermissionSet) IsCreator() bool {
	return s.Has(models.PermissionCreator)
}

func (s PermissionSet) CanEdit() bool {
	return s.Has(models.PermissionEdit) || s.IsCreator()
}

func (s PermissionSet) CanRead() bool {
	return s.Has(models.PermissionRead) || s.CanEdit()
}

func (s PermissionSet) CanSendForSigning() bool {
	return s.Has(models.PermissionSendForSigning) || s.IsCreator()
}

func (s PermissionSet) CanSendForVoting() bool {
	return s.Has(models.PermissionSendForVoting) || s.IsCreator()
}

// Satisfies reports whether the set grants capability.
func (s PermissionSet) Satisfies(capability Capability) bool {
	switch capability {
	case CapabilityRead:
		return s.CanRead()
	case CapabilityEdit:
		return s.CanEdit()
	case CapabilitySendForSigning:
		return s.CanSendForSigning()
	case CapabilitySendForVoting:
		return s.CanSendForVoting()
	case CapabilityCreator:
		return s.IsCreator()
	}
	return false
}

// Authority is the result of a successful permission check.
type Authority struct {
	Identity    Identity
	Permissions PermissionSet
}

// PermissionEvaluator derives effective capabilities, folding in the grants of
// a principal the actor is currently substituting for.
type PermissionEvaluator struct {
	grantRepo  repositories.PermissionGrantRepository
	delegation *DelegationResolver
}

func NewPermissionEvaluator(grantRepo repositories.PermissionGrantRepository, delegation *DelegationResolver) *PermissionEvaluator {
	return &PermissionEvaluator{grantRepo: grantRepo, delegation: delegation}
}

// CapabilitiesOf returns the actor's own grants united with those of their
// active principal, if any.
func (e *PermissionEvaluator) CapabilitiesOf(ctx context.Context, actor Actor, documentID uuid.UUID) (PermissionSet, error) {
	own, _, delegated, err := e.resolve(ctx, actor, documentID)
	if err != nil {
		return nil, err
	}
	return own.Union(delegated), nil
}

// Require fails with ErrMissingPermission unless the actor's effective set
// satisfies capability. The returned Authority names the identity the action
// runs as: the actor when their own grants suffice, otherwise the principal.
func (e *PermissionEvaluator) Require(ctx context.Context, capability Capability, actor Actor, documentID uuid.UUID) (Authority, error) {
	own, principal, delegated, err := e.resolve(ctx, actor, documentID)
	if err != nil {
		return Authority{}, err
	}

	all := own.Union(delegated)
	if !all.Satisfies(capability) {
		return Authority{}, fail(ErrMissingPermission, documentID, string(capability), nil)
	}

	identity := actor.Self()
	if !own.Satisfies(capability) && principal != nil {
		identity.PerformedAs = *principal
	}
	return Authority{Identity: identity, Permissions: all}, nil
}

// RequireIdentity checks capability for an identity already resolved by a
// workflow, such as a substitute signing for a specific principal. The grants
// of the principal and of the acting user both count.
func (e *PermissionEvaluator) RequireIdentity(ctx context.Context, capability Capability, by Identity, documentID uuid.UUID) error {
	names, err := e.grantRepo.ListForUser(ctx, documentID, by.PerformedAs)
	if err != nil {
		return err
	}
	set := NewPermissionSet(names...)
	if by.Delegated() {
		acting, err := e.grantRepo.ListForUser(ctx, documentID, by.ActorID)
		if err != nil {
			return err
		}
		set = set.Union(NewPermissionSet(acting...))
	}
	if !set.Satisfies(capability) {
		return fail(ErrMissingPermission, documentID, string(capability), nil)
	}
	return nil
}

func (e *PermissionEvaluator) resolve(ctx context.Context, actor Actor, documentID uuid.UUID) (PermissionSet, *uuid.UUID, PermissionSet, error) {
	ownNames, err := e.grantRepo.ListForUser(ctx, documentID, actor.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	own := NewPermissionSet(ownNames...)

	var principal *uuid.UUID
	delegated := PermissionSet{}
	if e.delegation != nil {
		principal, err = e.delegation.EffectivePrincipal(ctx, actor.UserID)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if principal != nil {
		names, err := e.grantRepo.ListForUser(ctx, documentID, *principal)
		if err != nil {
			return nil, nil, nil, err
		}
		delegated = NewPermissionSet(names...)
	}
	return own, principal, delegated, nil
}

// isNotFound is shared by the workflows to translate repository misses.
func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}
