package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/internal/observability/metrics"
	"github.com/archivus/docflow/internal/observability/tracing"
	"github.com/archivus/docflow/internal/reliability/retry"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventKind is the trigger of a status transition.
type EventKind string

const (
	EventKindSendForSigning    EventKind = "send_for_signing"
	EventKindSendForVoting     EventKind = "send_for_voting"
	EventKindSignatureComplete EventKind = "signature_complete"
	EventKindVotingComplete    EventKind = "voting_complete"
	EventKindArchive           EventKind = "archive"
)

// Outcome qualifies the completion events.
type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeReject Outcome = "reject"
)

// StatusEvent is a transition request. Outcome is set only for completion events.
type StatusEvent struct {
	Kind    EventKind
	Outcome Outcome
}

func SendForSigning() StatusEvent { return StatusEvent{Kind: EventKindSendForSigning} }
func SendForVoting() StatusEvent  { return StatusEvent{Kind: EventKindSendForVoting} }
func Archive() StatusEvent        { return StatusEvent{Kind: EventKindArchive} }

func SignatureComplete(outcome Outcome) StatusEvent {
	return StatusEvent{Kind: EventKindSignatureComplete, Outcome: outcome}
}

func VotingComplete(outcome Outcome) StatusEvent {
	return StatusEvent{Kind: EventKindVotingComplete, Outcome: outcome}
}

func (e StatusEvent) String() string {
	if e.Outcome == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Outcome)
}

type edge struct {
	from  models.DocumentStatus
	event StatusEvent
}

var transitions = map[edge]models.DocumentStatus{
	{models.StatusDraft, SendForSigning()}:                                  models.StatusSignatureInProgress,
	{models.StatusDraft, SendForVoting()}:                                   models.StatusVotingInProgress,
	{models.StatusSignatureInProgress, SignatureComplete(OutcomeAccept)}:    models.StatusSignatureAccepted,
	{models.StatusSignatureInProgress, SignatureComplete(OutcomeReject)}:    models.StatusSignatureRejected,
	{models.StatusVotingInProgress, VotingComplete(OutcomeAccept)}:          models.StatusVotingAccepted,
	{models.StatusVotingInProgress, VotingComplete(OutcomeReject)}:          models.StatusVotingRejected,
	{models.StatusSignatureAccepted, Archive()}:                             models.StatusArchived,
	{models.StatusSignatureRejected, Archive()}:                             models.StatusArchived,
	{models.StatusVotingAccepted, Archive()}:                                models.StatusArchived,
	{models.StatusVotingRejected, Archive()}:                                models.StatusArchived,
}

// resultOf is the status each event leads to, used to recognise repeats.
var resultOf = map[StatusEvent]models.DocumentStatus{}

func init() {
	for e, to := range transitions {
		resultOf[e.event] = to
	}
}

// NextStatus applies the transition table. When current already equals the
// status event would produce, the repeat is accepted and current is returned.
func NextStatus(current models.DocumentStatus, event StatusEvent) (models.DocumentStatus, error) {
	if next, ok := transitions[edge{current, event}]; ok {
		return next, nil
	}
	if target, ok := resultOf[event]; ok && target == current {
		return current, nil
	}
	return "", fail(ErrIllegalTransition, uuid.Nil, event.String(),
		fmt.Errorf("no transition from %s", current))
}

// CanEdit reports whether a new version may be created from a version in status.
func CanEdit(status models.DocumentStatus) bool {
	return status == models.StatusDraft
}

// CanDelete reports whether a version in status allows deleting its document.
func CanDelete(status models.DocumentStatus) bool {
	return status == models.StatusDraft || status == models.StatusArchived
}

// DocumentStateMachine is the only writer of document version status.
type DocumentStateMachine struct {
	versionRepo repositories.DocumentVersionRepository
	audit       auditTrail
	retry       *retry.Config
	logger      *logger.Logger
}

func NewDocumentStateMachine(
	versionRepo repositories.DocumentVersionRepository,
	auditRepo repositories.AuditLogRepository,
	retryConfig *retry.Config,
	log *logger.Logger,
) *DocumentStateMachine {
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}
	return &DocumentStateMachine{
		versionRepo: versionRepo,
		audit:       auditTrail{repo: auditRepo, logger: log},
		retry:       retryConfig.OnlyOn(repositories.ErrConflict),
		logger:      log,
	}
}

// TransitionResult describes what a transition request did.
type TransitionResult struct {
	From    models.DocumentStatus
	To      models.DocumentStatus
	Applied bool
}

// Transition loads the version, applies event and commits the new status with a
// compare-and-swap on lock_version, retrying lost races a bounded number of times.
// A repeated event whose result is already in place succeeds without writing.
func (m *DocumentStateMachine) Transition(ctx context.Context, by Identity, versionID uuid.UUID, event StatusEvent) (TransitionResult, error) {
	return m.run(ctx, by, versionID, event, false)
}

// Join behaves like Transition, except that when the version already sits in
// the event's target status it still bumps lock_version. Callers that add a
// signature or voting process use it so that a completion check which read
// the version before their insert loses its compare-and-swap and re-reads.
func (m *DocumentStateMachine) Join(ctx context.Context, by Identity, versionID uuid.UUID, event StatusEvent) (TransitionResult, error) {
	return m.run(ctx, by, versionID, event, true)
}

// TransitionAt applies event against a snapshot without retrying. The error
// matches repositories.ErrConflict when the version changed after the snapshot
// was read; completion checks use it to re-evaluate against fresh state.
func (m *DocumentStateMachine) TransitionAt(ctx context.Context, by Identity, version *models.DocumentVersion, event StatusEvent) (TransitionResult, error) {
	result, err := m.apply(ctx, version, event, false)
	if err != nil {
		return TransitionResult{}, err
	}
	if result.Applied {
		m.committed(ctx, by, version.ID, event, result)
	}
	return result, nil
}

func (m *DocumentStateMachine) run(ctx context.Context, by Identity, versionID uuid.UUID, event StatusEvent, touch bool) (TransitionResult, error) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "DocumentStateMachine.Transition", trace.WithAttributes(
		attribute.String("version.id", versionID.String()),
		attribute.String("event", event.String()),
	))
	defer span.End()

	result, err := retry.Do(ctx, m.retry, m.logger.Logger, "transition", func(ctx context.Context) (TransitionResult, error) {
		version, err := m.versionRepo.GetByID(ctx, versionID)
		if err != nil {
			if isNotFound(err) {
				return TransitionResult{}, fail(ErrVersionNotFound, versionID, event.String(), err)
			}
			return TransitionResult{}, err
		}
		return m.apply(ctx, version, event, touch)
	})
	metrics.ObserveOperation("transition", err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, retry.ErrExhausted) {
			return TransitionResult{}, fail(ErrConcurrentModification, versionID, event.String(), err)
		}
		return TransitionResult{}, err
	}

	span.SetAttributes(attribute.Bool("applied", result.Applied), attribute.String("status", string(result.To)))
	if !result.Applied {
		m.logger.Debug("transition already applied",
			slog.String("version_id", versionID.String()),
			slog.String("event", event.String()),
			slog.String("status", string(result.To)),
		)
		return result, nil
	}
	m.committed(ctx, by, versionID, event, result)
	return result, nil
}

func (m *DocumentStateMachine) apply(ctx context.Context, version *models.DocumentVersion, event StatusEvent, touch bool) (TransitionResult, error) {
	next, err := NextStatus(version.Status, event)
	if err != nil {
		var we *WorkflowError
		if errors.As(err, &we) {
			return TransitionResult{}, fail(we, version.ID, event.String(), we.Err)
		}
		return TransitionResult{}, err
	}

	result := TransitionResult{From: version.Status, To: next, Applied: next != version.Status}
	if !result.Applied && !touch {
		return result, nil
	}

	if err := m.versionRepo.CompareAndSwapStatus(ctx, version.ID, version.LockVersion, next); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			metrics.ObserveConflict("transition")
		}
		return TransitionResult{}, err
	}
	return result, nil
}

func (m *DocumentStateMachine) committed(ctx context.Context, by Identity, versionID uuid.UUID, event StatusEvent, result TransitionResult) {
	metrics.ObserveTransition(string(result.From), string(result.To), string(event.Kind))
	m.audit.record(ctx, by, ResourceVersion, versionID, models.AuditTransition, models.JSONB{
		"from":  string(result.From),
		"to":    string(result.To),
		"event": event.String(),
	})
	m.logger.Info("document version transitioned",
		slog.String("version_id", versionID.String()),
		slog.String("from", string(result.From)),
		slog.String("to", string(result.To)),
	)
}
