package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/internal/observability/metrics"
	"github.com/archivus/docflow/internal/observability/tracing"
	"github.com/archivus/docflow/internal/reliability/retry"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VotingWorkflow runs quorum votes on a document version. A version may carry
// several processes; it is accepted once every process is accepted and
// rejected as soon as one is rejected or expires.
type VotingWorkflow struct {
	versionRepo repositories.DocumentVersionRepository
	processRepo repositories.VotingProcessRepository
	voteRepo    repositories.VoteRepository
	userRepo    repositories.UserRepository

	permissions *PermissionEvaluator
	delegation  *DelegationResolver
	machine     *DocumentStateMachine
	audit       auditTrail
	notify      notifier
	retry       *retry.Config
	clock       Clock
	logger      *logger.Logger

	defaultDeadlineDays int
}

func NewVotingWorkflow(
	versionRepo repositories.DocumentVersionRepository,
	processRepo repositories.VotingProcessRepository,
	voteRepo repositories.VoteRepository,
	userRepo repositories.UserRepository,
	grantRepo repositories.PermissionGrantRepository,
	auditRepo repositories.AuditLogRepository,
	permissions *PermissionEvaluator,
	delegation *DelegationResolver,
	machine *DocumentStateMachine,
	emitter EventEmitter,
	retryConfig *retry.Config,
	clock Clock,
	defaultDeadlineDays int,
	log *logger.Logger,
) *VotingWorkflow {
	if clock == nil {
		clock = SystemClock
	}
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}
	if defaultDeadlineDays <= 0 {
		defaultDeadlineDays = 7
	}
	return &VotingWorkflow{
		versionRepo:         versionRepo,
		processRepo:         processRepo,
		voteRepo:            voteRepo,
		userRepo:            userRepo,
		permissions:         permissions,
		delegation:          delegation,
		machine:             machine,
		audit:               auditTrail{repo: auditRepo, logger: log},
		notify:              notifier{emitter: emitter, grantRepo: grantRepo, userRepo: userRepo, clock: clock, logger: log},
		retry:               retryConfig.OnlyOn(repositories.ErrConflict),
		clock:               clock,
		logger:              log,
		defaultDeadlineDays: defaultDeadlineDays,
	}
}

// CreateVotingProcessParams contains parameters for opening a vote
type CreateVotingProcessParams struct {
	VersionID    uuid.UUID `json:"version_id"`
	VoterEmails  []string  `json:"voter_emails"`
	DeadlineDays int       `json:"deadline_days"`
}

// UpdateVotingProcessParams replaces the voter list and/or the deadline.
// Nil fields are left unchanged.
type UpdateVotingProcessParams struct {
	VoterEmails  []string `json:"voter_emails,omitempty"`
	DeadlineDays *int     `json:"deadline_days,omitempty"`
}

// CreateVotingProcess opens a vote among the given users. The first process
// moves a draft version into voting.
func (w *VotingWorkflow) CreateVotingProcess(ctx context.Context, actor Actor, params CreateVotingProcessParams) (process *models.VotingProcess, err error) {
	const action = "create_voting_process"
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "VotingWorkflow.CreateVotingProcess",
		trace.WithAttributes(attribute.String("version.id", params.VersionID.String())))
	defer func() {
		metrics.ObserveOperation(action, err, time.Since(start))
		span.End()
	}()

	if len(params.VoterEmails) == 0 {
		return nil, fail(ErrInvalidInput, params.VersionID, action, errors.New("at least one voter is required"))
	}
	days, err := w.deadlineDays(params.DeadlineDays, params.VersionID, action)
	if err != nil {
		return nil, err
	}

	version, err := w.loadVersion(ctx, params.VersionID, action)
	if err != nil {
		return nil, err
	}
	authority, err := w.permissions.Require(ctx, CapabilitySendForVoting, actor, version.DocumentID)
	if err != nil {
		return nil, err
	}
	if version.Status != models.StatusDraft && version.Status != models.StatusVotingInProgress {
		return nil, fail(ErrStatusIncorrectForCreateVotingProcess, version.ID, action, fmt.Errorf("status is %s", version.Status))
	}

	voters, err := w.resolveVoters(ctx, params.VoterEmails, version.ID, action)
	if err != nil {
		return nil, err
	}

	process = &models.VotingProcess{
		VersionID: version.ID,
		Status:    models.VotingInProgress,
		Deadline:  w.clock().Add(time.Duration(days) * 24 * time.Hour),
		CreatedBy: authority.Identity.PerformedAs,
	}
	for _, u := range voters {
		process.Voters = append(process.Voters, models.VotingProcessVoter{UserID: u.ID})
	}
	if err := w.processRepo.Create(ctx, process); err != nil {
		return nil, err
	}

	if _, err := w.machine.Join(ctx, authority.Identity, version.ID, SendForVoting()); err != nil {
		w.compensate(ctx, process.ID, err)
		if errors.Is(err, ErrIllegalTransition) {
			return nil, fail(ErrStatusIncorrectForCreateVotingProcess, version.ID, action, err)
		}
		return nil, err
	}

	w.audit.record(ctx, authority.Identity, ResourceVotingProcess, process.ID, models.AuditCreate, models.JSONB{
		"version_id": version.ID.String(),
		"voters":     len(voters),
		"deadline":   process.Deadline.Format(time.RFC3339),
	})
	emails := make([]string, 0, len(voters))
	for _, u := range voters {
		emails = append(emails, u.Email)
	}
	w.notify.toEmails(ctx, version.ID, EventVoteRequested, emails...)
	return process, nil
}

func (w *VotingWorkflow) compensate(ctx context.Context, processID uuid.UUID, cause error) {
	w.logger.Warn("rolling back voting process",
		slog.String("process_id", processID.String()),
		slog.String("cause", cause.Error()),
	)
	if err := w.processRepo.Delete(ctx, processID); err != nil {
		w.logger.Error("failed to roll back voting process",
			slog.String("process_id", processID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// CastVote records a vote. A substitute votes as their principal when the
// principal is eligible and the substitute is not. Votes after the deadline
// expire the process instead of counting.
func (w *VotingWorkflow) CastVote(ctx context.Context, actor Actor, processID uuid.UUID, choice models.VoteChoice) (vote *models.Vote, err error) {
	const action = "cast_vote"
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "VotingWorkflow.CastVote",
		trace.WithAttributes(attribute.String("process.id", processID.String())))
	defer func() {
		metrics.ObserveOperation(action, err, time.Since(start))
		span.End()
	}()

	if choice != models.VoteApprove && choice != models.VoteReject {
		return nil, fail(ErrInvalidInput, processID, action, fmt.Errorf("unknown choice %q", choice))
	}

	process, err := w.loadProcess(ctx, processID, action)
	if err != nil {
		return nil, err
	}
	if process.Status != models.VotingInProgress {
		return nil, fail(ErrStatusIncorrectForVote, processID, action, fmt.Errorf("process is %s", process.Status))
	}

	by, err := w.voterIdentity(ctx, actor, process, action)
	if err != nil {
		return nil, err
	}

	version, err := w.loadVersion(ctx, process.VersionID, action)
	if err != nil {
		return nil, err
	}
	if err := w.permissions.RequireIdentity(ctx, CapabilityRead, by, version.DocumentID); err != nil {
		return nil, err
	}
	if version.Status != models.StatusVotingInProgress {
		return nil, fail(ErrStatusIncorrectForVote, version.ID, action, fmt.Errorf("version is %s", version.Status))
	}

	now := w.clock()
	if now.After(process.Deadline) {
		if err := w.expire(ctx, by, process, version.DocumentID); err != nil {
			return nil, err
		}
		return nil, fail(ErrVotingDeadlinePassed, processID, action, nil)
	}

	vote = &models.Vote{
		ProcessID: processID,
		UserID:    by.PerformedAs,
		Choice:    choice,
		CastAt:    now,
	}
	if err := w.voteRepo.Create(ctx, vote); err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicate):
			return nil, fail(ErrVoteAlreadyExists, processID, action, err)
		case errors.Is(err, repositories.ErrNotEligible):
			return nil, fail(ErrMissingPermission, processID, action, ErrNotEligibleVoter)
		case errors.Is(err, repositories.ErrConflict):
			return nil, fail(ErrStatusIncorrectForVote, processID, action, err)
		case isNotFound(err):
			return nil, fail(ErrVotingProcessNotFound, processID, action, err)
		}
		return nil, err
	}

	w.audit.record(ctx, by, ResourceVotingProcess, processID, models.AuditVote, models.JSONB{
		"choice": string(choice),
	})

	if err := w.resolveProcess(ctx, by, processID, version.DocumentID); err != nil {
		return nil, err
	}
	return vote, nil
}

func (w *VotingWorkflow) voterIdentity(ctx context.Context, actor Actor, process *models.VotingProcess, action string) (Identity, error) {
	if process.IsEligible(actor.UserID) {
		if hasVoted(process, actor.UserID) {
			return Identity{}, fail(ErrVoteAlreadyExists, process.ID, action, nil)
		}
		return actor.Self(), nil
	}

	principals, err := w.delegation.ActivePrincipals(ctx, actor.UserID)
	if err != nil {
		return Identity{}, err
	}
	var alreadyVoted bool
	for _, p := range principals {
		if !process.IsEligible(p) {
			continue
		}
		if hasVoted(process, p) {
			alreadyVoted = true
			continue
		}
		return Identity{PerformedAs: p, ActorID: actor.UserID}, nil
	}
	if alreadyVoted {
		return Identity{}, fail(ErrVoteAlreadyExists, process.ID, action, nil)
	}
	return Identity{}, fail(ErrMissingPermission, process.ID, action, ErrNotEligibleVoter)
}

func hasVoted(process *models.VotingProcess, userID uuid.UUID) bool {
	for _, v := range process.Votes {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

// QuorumOutcome decides a process once every eligible voter has voted. Votes
// from users off the voter list are ignored. Approvals must outnumber
// rejections; a tie rejects.
func QuorumOutcome(voters []uuid.UUID, votes []models.Vote) (models.VotingStatus, bool) {
	eligible := make(map[uuid.UUID]bool, len(voters))
	for _, id := range voters {
		eligible[id] = true
	}
	counted := make([]models.Vote, 0, len(votes))
	for _, v := range votes {
		if eligible[v.UserID] {
			counted = append(counted, v)
		}
	}
	if len(eligible) == 0 || len(counted) < len(eligible) {
		return "", false
	}
	approve, reject := 0, 0
	for _, v := range counted {
		switch v.Choice {
		case models.VoteApprove:
			approve++
		case models.VoteReject:
			reject++
		}
	}
	if approve > reject {
		return models.VotingAccepted, true
	}
	return models.VotingRejected, true
}

// versionOutcome folds process statuses into the version decision.
func versionOutcome(processes []models.VotingProcess) (Outcome, bool) {
	if len(processes) == 0 {
		return "", false
	}
	accepted := 0
	for _, p := range processes {
		switch p.Status {
		case models.VotingRejected, models.VotingExpired:
			return OutcomeReject, true
		case models.VotingAccepted:
			accepted++
		}
	}
	if accepted == len(processes) {
		return OutcomeAccept, true
	}
	return "", false
}

// resolveProcess closes the process once all votes are in, then re-evaluates the version.
func (w *VotingWorkflow) resolveProcess(ctx context.Context, by Identity, processID, documentID uuid.UUID) error {
	process, err := w.processRepo.GetByID(ctx, processID)
	if err != nil {
		return err
	}
	if process.Status == models.VotingInProgress {
		status, done := QuorumOutcome(process.VoterIDs(), process.Votes)
		if !done {
			return nil
		}
		if err := w.processRepo.Resolve(ctx, processID, status); err != nil {
			if !errors.Is(err, repositories.ErrConflict) {
				return err
			}
		} else {
			w.processEnded(ctx, by, process, status)
		}
	}
	return w.evaluateVersion(ctx, by, process.VersionID, documentID)
}

func (w *VotingWorkflow) processEnded(ctx context.Context, by Identity, process *models.VotingProcess, status models.VotingStatus) {
	w.audit.record(ctx, by, ResourceVotingProcess, process.ID, models.AuditUpdate, models.JSONB{
		"status": string(status),
	})
	w.notify.toUsers(ctx, process.VersionID, EventVotingProcessEnded, []uuid.UUID{process.CreatedBy})
}

// expire marks an overdue process and lets the version react to it.
func (w *VotingWorkflow) expire(ctx context.Context, by Identity, process *models.VotingProcess, documentID uuid.UUID) error {
	if err := w.processRepo.Resolve(ctx, process.ID, models.VotingExpired); err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			return err
		}
	} else {
		w.processEnded(ctx, by, process, models.VotingExpired)
	}
	return w.evaluateVersion(ctx, by, process.VersionID, documentID)
}

// evaluateVersion commits the version outcome against a snapshot of its
// processes, re-reading whenever the compare-and-swap loses.
func (w *VotingWorkflow) evaluateVersion(ctx context.Context, by Identity, versionID, documentID uuid.UUID) error {
	result, err := retry.Do(ctx, w.retry, w.logger.Logger, "voting_completion", func(ctx context.Context) (TransitionResult, error) {
		version, err := w.versionRepo.GetByID(ctx, versionID)
		if err != nil {
			return TransitionResult{}, err
		}
		if version.Status != models.StatusVotingInProgress {
			return TransitionResult{}, nil
		}

		if err := w.expireOverdue(ctx, by, version.VotingProcesses); err != nil {
			return TransitionResult{}, err
		}

		outcome, done := versionOutcome(version.VotingProcesses)
		if !done {
			return TransitionResult{}, nil
		}
		return w.machine.TransitionAt(ctx, by, version, VotingComplete(outcome))
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return fail(ErrConcurrentModification, versionID, "voting_completion", err)
		}
		return err
	}

	if result.Applied {
		eventType := EventVotingAccepted
		if result.To == models.StatusVotingRejected {
			eventType = EventVotingRejected
		}
		w.notify.toCreators(ctx, documentID, versionID, eventType)
	}
	return nil
}

// expireOverdue resolves in-progress processes past their deadline in place.
// A lost resolve means another writer decided the process first; the caller
// must re-read, so it surfaces as a conflict.
func (w *VotingWorkflow) expireOverdue(ctx context.Context, by Identity, processes []models.VotingProcess) error {
	now := w.clock()
	for i := range processes {
		p := &processes[i]
		if p.Status != models.VotingInProgress || !now.After(p.Deadline) {
			continue
		}
		if err := w.processRepo.Resolve(ctx, p.ID, models.VotingExpired); err != nil {
			return err
		}
		w.processEnded(ctx, by, p, models.VotingExpired)
		p.Status = models.VotingExpired
	}
	return nil
}

// UpdateVotingProcess changes voters or deadline while nobody has voted yet.
func (w *VotingWorkflow) UpdateVotingProcess(ctx context.Context, actor Actor, processID uuid.UUID, params UpdateVotingProcessParams) (process *models.VotingProcess, err error) {
	const action = "update_voting_process"
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "VotingWorkflow.UpdateVotingProcess",
		trace.WithAttributes(attribute.String("process.id", processID.String())))
	defer func() {
		metrics.ObserveOperation(action, err, time.Since(start))
		span.End()
	}()

	process, err = w.loadProcess(ctx, processID, action)
	if err != nil {
		return nil, err
	}
	version, err := w.loadVersion(ctx, process.VersionID, action)
	if err != nil {
		return nil, err
	}
	authority, err := w.permissions.Require(ctx, CapabilitySendForVoting, actor, version.DocumentID)
	if err != nil {
		return nil, err
	}
	if process.Status != models.VotingInProgress {
		return nil, fail(ErrStatusIncorrectForVote, processID, action, fmt.Errorf("process is %s", process.Status))
	}
	if len(process.Votes) > 0 {
		return nil, fail(ErrVotingProcessHasVotes, processID, action, nil)
	}

	var voterIDs []uuid.UUID
	var added []string
	if params.VoterEmails != nil {
		if len(params.VoterEmails) == 0 {
			return nil, fail(ErrInvalidInput, processID, action, errors.New("at least one voter is required"))
		}
		voters, err := w.resolveVoters(ctx, params.VoterEmails, processID, action)
		if err != nil {
			return nil, err
		}
		for _, u := range voters {
			voterIDs = append(voterIDs, u.ID)
			if !process.IsEligible(u.ID) {
				added = append(added, u.Email)
			}
		}
	}

	deadline := process.Deadline
	if params.DeadlineDays != nil {
		days, err := w.deadlineDays(*params.DeadlineDays, processID, action)
		if err != nil {
			return nil, err
		}
		deadline = w.clock().Add(time.Duration(days) * 24 * time.Hour)
	}

	if err := w.processRepo.Reconfigure(ctx, processID, voterIDs, deadline); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fail(ErrVotingProcessHasVotes, processID, action, err)
		}
		return nil, err
	}

	w.audit.record(ctx, authority.Identity, ResourceVotingProcess, processID, models.AuditUpdate, models.JSONB{
		"deadline": deadline.Format(time.RFC3339),
		"voters":   len(voterIDs),
	})
	w.notify.toEmails(ctx, process.VersionID, EventVoteRequested, added...)
	return w.processRepo.GetByID(ctx, processID)
}

// DeleteVotingProcess removes an in-progress process regardless of votes cast.
// The version outcome is re-evaluated over the processes that remain.
func (w *VotingWorkflow) DeleteVotingProcess(ctx context.Context, actor Actor, processID uuid.UUID) (err error) {
	const action = "delete_voting_process"
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "VotingWorkflow.DeleteVotingProcess",
		trace.WithAttributes(attribute.String("process.id", processID.String())))
	defer func() {
		metrics.ObserveOperation(action, err, time.Since(start))
		span.End()
	}()

	process, err := w.loadProcess(ctx, processID, action)
	if err != nil {
		return err
	}
	version, err := w.loadVersion(ctx, process.VersionID, action)
	if err != nil {
		return err
	}
	authority, err := w.permissions.Require(ctx, CapabilitySendForVoting, actor, version.DocumentID)
	if err != nil {
		return err
	}
	if process.Status != models.VotingInProgress {
		return fail(ErrStatusIncorrectForVote, processID, action, fmt.Errorf("process is %s", process.Status))
	}

	if err := w.processRepo.Delete(ctx, processID); err != nil {
		if isNotFound(err) {
			return fail(ErrVotingProcessNotFound, processID, action, err)
		}
		return err
	}
	w.audit.record(ctx, authority.Identity, ResourceVotingProcess, processID, models.AuditDelete, models.JSONB{
		"votes_discarded": len(process.Votes),
	})

	return w.evaluateVersion(ctx, authority.Identity, version.ID, version.DocumentID)
}

// GetVotingProcess returns the process, expiring it first when its deadline passed.
func (w *VotingWorkflow) GetVotingProcess(ctx context.Context, actor Actor, processID uuid.UUID) (*models.VotingProcess, error) {
	const action = "get_voting_process"
	process, err := w.loadProcess(ctx, processID, action)
	if err != nil {
		return nil, err
	}
	version, err := w.loadVersion(ctx, process.VersionID, action)
	if err != nil {
		return nil, err
	}
	if _, err := w.permissions.Require(ctx, CapabilityRead, actor, version.DocumentID); err != nil {
		return nil, err
	}

	if process.Status == models.VotingInProgress && w.clock().After(process.Deadline) {
		if err := w.expire(ctx, actor.Self(), process, version.DocumentID); err != nil {
			return nil, err
		}
		return w.processRepo.GetByID(ctx, processID)
	}
	return process, nil
}

// ListVotingProcesses returns every process on the version.
func (w *VotingWorkflow) ListVotingProcesses(ctx context.Context, actor Actor, versionID uuid.UUID) ([]models.VotingProcess, error) {
	version, err := w.loadVersion(ctx, versionID, "list_voting_processes")
	if err != nil {
		return nil, err
	}
	if _, err := w.permissions.Require(ctx, CapabilityRead, actor, version.DocumentID); err != nil {
		return nil, err
	}
	return w.processRepo.ListByVersion(ctx, versionID)
}

func (w *VotingWorkflow) deadlineDays(days int, entityID uuid.UUID, action string) (int, error) {
	if days < 0 {
		return 0, fail(ErrInvalidInput, entityID, action, errors.New("deadline days must not be negative"))
	}
	if days == 0 {
		return w.defaultDeadlineDays, nil
	}
	return days, nil
}

func (w *VotingWorkflow) resolveVoters(ctx context.Context, emails []string, entityID uuid.UUID, action string) ([]models.User, error) {
	seen := make(map[string]bool, len(emails))
	voters := make([]models.User, 0, len(emails))
	for _, email := range emails {
		key := strings.ToLower(strings.TrimSpace(email))
		if key == "" {
			return nil, fail(ErrInvalidInput, entityID, action, errors.New("voter email is empty"))
		}
		if seen[key] {
			return nil, fail(ErrInvalidInput, entityID, action, fmt.Errorf("voter %s listed twice", key))
		}
		seen[key] = true

		user, err := w.userRepo.GetByEmail(ctx, key)
		if err != nil {
			if isNotFound(err) {
				return nil, fail(ErrUserNotFound, uuid.Nil, action, fmt.Errorf("%s: %w", key, err))
			}
			return nil, err
		}
		voters = append(voters, *user)
	}
	return voters, nil
}

func (w *VotingWorkflow) loadProcess(ctx context.Context, processID uuid.UUID, action string) (*models.VotingProcess, error) {
	process, err := w.processRepo.GetByID(ctx, processID)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrVotingProcessNotFound, processID, action, err)
		}
		return nil, err
	}
	return process, nil
}

func (w *VotingWorkflow) loadVersion(ctx context.Context, versionID uuid.UUID, action string) (*models.DocumentVersion, error) {
	version, err := w.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrVersionNotFound, versionID, action, err)
		}
		return nil, err
	}
	return version, nil
}
