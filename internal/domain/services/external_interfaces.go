package services

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// External collaborator interfaces the workflow engine depends on

// EventType names a downstream notification.
type EventType string

const (
	EventSignatureRequested EventType = "signature_requested"
	EventSignatureAccepted  EventType = "signature_accepted"
	EventSignatureRejected  EventType = "signature_rejected"
	EventVoteRequested      EventType = "vote_requested"
	EventVotingAccepted     EventType = "voting_accepted"
	EventVotingRejected     EventType = "voting_rejected"
	EventVotingProcessEnded EventType = "voting_process_ended"
)

// WorkflowEvent is the record handed to the notification collaborator.
type WorkflowEvent struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	DocumentVersionID uuid.UUID `json:"document_version_id"`
	UserEmail         string    `json:"user_email"`
	EventType         EventType `json:"event_type"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// EventEmitter accepts workflow events for asynchronous delivery. Emit never
// reports failure to the caller; implementations log and move on.
type EventEmitter interface {
	Emit(ctx context.Context, event WorkflowEvent)
}

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Actor is an already-authenticated user invoking the engine.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// Identity records who an action was performed as and who actually performed it.
// They differ when a substitute acts for an absent principal.
type Identity struct {
	PerformedAs uuid.UUID
	ActorID     uuid.UUID
}

// Self is the identity of an actor acting under their own authority.
func (a Actor) Self() Identity {
	return Identity{PerformedAs: a.UserID, ActorID: a.UserID}
}

// Delegated reports whether the action ran under someone else's authority.
func (i Identity) Delegated() bool {
	return i.PerformedAs != i.ActorID
}

// TokenClaims is what a verified bearer token says about its holder. TenantID
// is uuid.Nil when the token carries no tenant.
type TokenClaims struct {
	Email    string
	TenantID uuid.UUID
}

// TokenValidator verifies bearer tokens issued by the identity provider.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}
