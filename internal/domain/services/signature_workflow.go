package services

import (
	"context"
	"crypto/sha256"
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

const digestSeparator = "\x1f"

// SignatureDigest binds a signature to its signer and label. Verification
// recomputes it from the stored fields.
func SignatureDigest(signerID, signatureID uuid.UUID, label string) string {
	hasher := sha256.New()
	hasher.Write([]byte(signerID.String()))
	hasher.Write([]byte(digestSeparator))
	hasher.Write([]byte(signatureID.String()))
	hasher.Write([]byte(digestSeparator))
	hasher.Write([]byte(label))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// SignatureWorkflow drives sequential signing of a document version.
type SignatureWorkflow struct {
	versionRepo   repositories.DocumentVersionRepository
	signatureRepo repositories.SignatureRepository
	userRepo      repositories.UserRepository

	permissions *PermissionEvaluator
	delegation  *DelegationResolver
	machine     *DocumentStateMachine
	audit       auditTrail
	notify      notifier
	retry       *retry.Config
	clock       Clock
	logger      *logger.Logger
}

func NewSignatureWorkflow(
	versionRepo repositories.DocumentVersionRepository,
	signatureRepo repositories.SignatureRepository,
	userRepo repositories.UserRepository,
	grantRepo repositories.PermissionGrantRepository,
	auditRepo repositories.AuditLogRepository,
	permissions *PermissionEvaluator,
	delegation *DelegationResolver,
	machine *DocumentStateMachine,
	emitter EventEmitter,
	retryConfig *retry.Config,
	clock Clock,
	log *logger.Logger,
) *SignatureWorkflow {
	if clock == nil {
		clock = SystemClock
	}
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}
	return &SignatureWorkflow{
		versionRepo:   versionRepo,
		signatureRepo: signatureRepo,
		userRepo:      userRepo,
		permissions:   permissions,
		delegation:    delegation,
		machine:       machine,
		audit:         auditTrail{repo: auditRepo, logger: log},
		notify:        notifier{emitter: emitter, grantRepo: grantRepo, userRepo: userRepo, clock: clock, logger: log},
		retry:         retryConfig.OnlyOn(repositories.ErrConflict),
		clock:         clock,
		logger:        log,
	}
}

// CreateSignatureParams contains parameters for requesting a signature
type CreateSignatureParams struct {
	VersionID   uuid.UUID `json:"version_id"`
	SignerEmail string    `json:"signer_email"`
	Label       string    `json:"label"`
}

// CreateSignature asks the user behind SignerEmail to sign the version. The
// first signature moves a draft version into signing.
func (w *SignatureWorkflow) CreateSignature(ctx context.Context, actor Actor, params CreateSignatureParams) (sig *models.Signature, err error) {
	const action = "create_signature"
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "SignatureWorkflow.CreateSignature",
		trace.WithAttributes(attribute.String("version.id", params.VersionID.String())))
	defer func() {
		metrics.ObserveOperation(action, err, time.Since(start))
		span.End()
	}()

	label := strings.TrimSpace(params.Label)
	if label == "" || strings.TrimSpace(params.SignerEmail) == "" {
		return nil, fail(ErrInvalidInput, params.VersionID, action, errors.New("signer email and label are required"))
	}

	version, err := w.loadVersion(ctx, params.VersionID, action)
	if err != nil {
		return nil, err
	}
	authority, err := w.permissions.Require(ctx, CapabilitySendForSigning, actor, version.DocumentID)
	if err != nil {
		return nil, err
	}
	if version.Status != models.StatusDraft && version.Status != models.StatusSignatureInProgress {
		return nil, fail(ErrStatusIncorrectForCreateSignature, version.ID, action, fmt.Errorf("status is %s", version.Status))
	}

	signer, err := w.userRepo.GetByEmail(ctx, params.SignerEmail)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrUserNotFound, uuid.Nil, action, err)
		}
		return nil, err
	}
	pending, err := w.signatureRepo.HasPending(ctx, version.ID, signer.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fail(ErrSignatureAlreadyExists, version.ID, action, nil)
	}

	sig = &models.Signature{
		VersionID: version.ID,
		UserID:    signer.ID,
		Label:     label,
		Status:    models.SignaturePending,
		SentAt:    w.clock(),
	}
	if err := w.signatureRepo.Create(ctx, sig); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fail(ErrSignatureAlreadyExists, version.ID, action, err)
		}
		if isNotFound(err) {
			return nil, fail(ErrVersionNotFound, version.ID, action, err)
		}
		return nil, err
	}

	if _, err := w.machine.Join(ctx, authority.Identity, version.ID, SendForSigning()); err != nil {
		w.compensate(ctx, sig.ID, err)
		if errors.Is(err, ErrIllegalTransition) {
			return nil, fail(ErrStatusIncorrectForCreateSignature, version.ID, action, err)
		}
		return nil, err
	}

	w.audit.record(ctx, authority.Identity, ResourceSignature, sig.ID, models.AuditCreate, models.JSONB{
		"version_id": version.ID.String(),
		"signer_id":  signer.ID.String(),
		"label":      label,
	})
	w.notify.toEmails(ctx, version.ID, EventSignatureRequested, signer.Email)
	sig.User = *signer
	return sig, nil
}

// compensate removes a signature whose version moved on before it could join.
func (w *SignatureWorkflow) compensate(ctx context.Context, signatureID uuid.UUID, cause error) {
	w.logger.Warn("rolling back signature request",
		slog.String("signature_id", signatureID.String()),
		slog.String("cause", cause.Error()),
	)
	if err := w.signatureRepo.Delete(ctx, signatureID); err != nil {
		w.logger.Error("failed to roll back signature request",
			slog.String("signature_id", signatureID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Sign completes the actor's pending signature, or that of a principal the
// actor currently substitutes for.
func (w *SignatureWorkflow) Sign(ctx context.Context, actor Actor, signatureID uuid.UUID) (*models.Signature, error) {
	return w.decide(ctx, actor, signatureID, models.SignatureSigned, "sign")
}

// Refuse declines the signature, which rejects the whole version.
func (w *SignatureWorkflow) Refuse(ctx context.Context, actor Actor, signatureID uuid.UUID) (*models.Signature, error) {
	return w.decide(ctx, actor, signatureID, models.SignatureRefused, "refuse")
}

func (w *SignatureWorkflow) decide(ctx context.Context, actor Actor, signatureID uuid.UUID, status models.SignatureStatus, action string) (sig *models.Signature, err error) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "SignatureWorkflow."+action,
		trace.WithAttributes(attribute.String("signature.id", signatureID.String())))
	defer func() {
		metrics.ObserveOperation(action, err, time.Since(start))
		span.End()
	}()

	sig, err = w.signatureRepo.GetByID(ctx, signatureID)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrSignatureNotFound, signatureID, action, err)
		}
		return nil, err
	}

	by, err := w.signerIdentity(ctx, actor, sig, action)
	if err != nil {
		return nil, err
	}
	if sig.Status != models.SignaturePending {
		return nil, fail(ErrStatusIncorrectForSign, signatureID, action, fmt.Errorf("signature is %s", sig.Status))
	}

	version, err := w.loadVersion(ctx, sig.VersionID, action)
	if err != nil {
		return nil, err
	}
	if err := w.permissions.RequireIdentity(ctx, CapabilityRead, by, version.DocumentID); err != nil {
		return nil, err
	}
	if version.Status != models.StatusSignatureInProgress {
		return nil, fail(ErrStatusIncorrectForSign, version.ID, action, fmt.Errorf("version is %s", version.Status))
	}

	now := w.clock()
	data := ""
	if status == models.SignatureSigned {
		data = SignatureDigest(sig.UserID, sig.ID, sig.Label)
	}
	if err := w.signatureRepo.Complete(ctx, sig.ID, status, now, data); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fail(ErrStatusIncorrectForSign, signatureID, action, err)
		}
		return nil, err
	}

	auditAction := models.AuditSign
	if status == models.SignatureRefused {
		auditAction = models.AuditRefuse
	}
	w.audit.record(ctx, by, ResourceSignature, sig.ID, auditAction, models.JSONB{
		"version_id": version.ID.String(),
	})

	if err := w.evaluateCompletion(ctx, by, version.ID, version.DocumentID); err != nil {
		return nil, err
	}

	sig.Status = status
	sig.SignedAt = &now
	sig.SignatureData = data
	return sig, nil
}

func (w *SignatureWorkflow) signerIdentity(ctx context.Context, actor Actor, sig *models.Signature, action string) (Identity, error) {
	if sig.UserID == actor.UserID {
		return actor.Self(), nil
	}
	ok, err := w.delegation.actingFor(ctx, actor.UserID, sig.UserID)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, fail(ErrMissingPermission, sig.ID, action, ErrNotSignatureOwner)
	}
	return Identity{PerformedAs: sig.UserID, ActorID: actor.UserID}, nil
}

// evaluateCompletion decides the version outcome from a consistent snapshot:
// any refusal rejects, all signed accepts. The snapshot's lock_version guards
// the commit, so a lost race re-reads and decides again.
func (w *SignatureWorkflow) evaluateCompletion(ctx context.Context, by Identity, versionID, documentID uuid.UUID) error {
	result, err := retry.Do(ctx, w.retry, w.logger.Logger, "signature_completion", func(ctx context.Context) (TransitionResult, error) {
		version, err := w.versionRepo.GetByID(ctx, versionID)
		if err != nil {
			return TransitionResult{}, err
		}
		if version.Status != models.StatusSignatureInProgress {
			return TransitionResult{}, nil
		}

		outcome, done := signatureOutcome(version.Signatures)
		if !done {
			return TransitionResult{}, nil
		}
		return w.machine.TransitionAt(ctx, by, version, SignatureComplete(outcome))
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return fail(ErrConcurrentModification, versionID, "signature_completion", err)
		}
		return err
	}

	if result.Applied {
		eventType := EventSignatureAccepted
		if result.To == models.StatusSignatureRejected {
			eventType = EventSignatureRejected
		}
		w.notify.toCreators(ctx, documentID, versionID, eventType)
	}
	return nil
}

// signatureOutcome applies the completion rule to a version's signatures.
func signatureOutcome(signatures []models.Signature) (Outcome, bool) {
	if len(signatures) == 0 {
		return "", false
	}
	signed := 0
	for _, s := range signatures {
		switch s.Status {
		case models.SignatureRefused:
			return OutcomeReject, true
		case models.SignatureSigned:
			signed++
		}
	}
	if signed == len(signatures) {
		return OutcomeAccept, true
	}
	return "", false
}

// VerifySignature recomputes the digest of a signed signature.
func (w *SignatureWorkflow) VerifySignature(ctx context.Context, actor Actor, signatureID uuid.UUID) (bool, error) {
	sig, err := w.signatureRepo.GetByID(ctx, signatureID)
	if err != nil {
		if isNotFound(err) {
			return false, fail(ErrSignatureNotFound, signatureID, "verify_signature", err)
		}
		return false, err
	}
	version, err := w.loadVersion(ctx, sig.VersionID, "verify_signature")
	if err != nil {
		return false, err
	}
	if _, err := w.permissions.Require(ctx, CapabilityRead, actor, version.DocumentID); err != nil {
		return false, err
	}
	if sig.Status != models.SignatureSigned || sig.SignatureData == "" {
		return false, nil
	}
	return sig.SignatureData == SignatureDigest(sig.UserID, sig.ID, sig.Label), nil
}

// ListSignatures returns the version's signatures in request order.
func (w *SignatureWorkflow) ListSignatures(ctx context.Context, actor Actor, versionID uuid.UUID) ([]models.Signature, error) {
	version, err := w.loadVersion(ctx, versionID, "list_signatures")
	if err != nil {
		return nil, err
	}
	if _, err := w.permissions.Require(ctx, CapabilityRead, actor, version.DocumentID); err != nil {
		return nil, err
	}
	return w.signatureRepo.ListByVersion(ctx, versionID)
}

func (w *SignatureWorkflow) loadVersion(ctx context.Context, versionID uuid.UUID, action string) (*models.DocumentVersion, error) {
	version, err := w.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrVersionNotFound, versionID, action, err)
		}
		return nil, err
	}
	return version, nil
}
