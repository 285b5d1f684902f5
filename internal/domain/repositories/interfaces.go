package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

// Sentinel errors shared by every repository implementation.
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicate          = errors.New("record already exists")
	ErrConflict           = errors.New("record was modified concurrently")
	ErrNotEligible        = errors.New("user is not an eligible voter")
	ErrMissingTenantScope = tenant.ErrNoScope
)

// Every repository except TenantRepository filters reads and writes by the
// tenant carried on ctx and fails with ErrMissingTenantScope when none is set.

type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	List(ctx context.Context, params ListParams) ([]models.Tenant, int64, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
	List(ctx context.Context, params ListParams) ([]models.User, int64, error)
}

type DocumentTypeRepository interface {
	Create(ctx context.Context, docType *models.DocumentType) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentType, error)
	List(ctx context.Context) ([]models.DocumentType, error)
}

type DocumentRepository interface {
	// Create persists the document, its first version and the creator grant atomically.
	Create(ctx context.Context, document *models.Document, version *models.DocumentVersion, grant *models.UserPermissionGrant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	SetCurrentVersion(ctx context.Context, id, versionID uuid.UUID) error
	List(ctx context.Context, params ListParams) ([]models.Document, int64, error)
	// Delete removes the document together with every row it owns.
	Delete(ctx context.Context, id uuid.UUID) error
}

type DocumentVersionRepository interface {
	Create(ctx context.Context, version *models.DocumentVersion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentVersion, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.DocumentVersion, error)
	LatestNumber(ctx context.Context, documentID uuid.UUID) (int, error)
	// CompareAndSwapStatus writes status only when lock_version still equals
	// expectedLock, returning ErrConflict otherwise.
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expectedLock int64, status models.DocumentStatus) error
}

type PermissionGrantRepository interface {
	Grant(ctx context.Context, grant *models.UserPermissionGrant) error
	Revoke(ctx context.Context, documentID, userID uuid.UUID, permission models.DocumentPermissionName) error
	ListForUser(ctx context.Context, documentID, userID uuid.UUID) ([]models.DocumentPermissionName, error)
	ListForDocument(ctx context.Context, documentID uuid.UUID) ([]models.UserPermissionGrant, error)
	HoldersOf(ctx context.Context, documentID uuid.UUID, permission models.DocumentPermissionName) ([]uuid.UUID, error)
}

type SignatureRepository interface {
	// Create holds the version row while it checks for and inserts the
	// signature, returning ErrDuplicate when the signer already has a pending
	// signature on the version.
	Create(ctx context.Context, signature *models.Signature) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Signature, error)
	ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.Signature, error)
	CountByVersion(ctx context.Context, versionID uuid.UUID) (int64, error)
	HasPending(ctx context.Context, versionID, userID uuid.UUID) (bool, error)
	// Complete moves a pending signature to status, returning ErrConflict when
	// it is no longer pending.
	Complete(ctx context.Context, id uuid.UUID, status models.SignatureStatus, signedAt time.Time, data string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type VotingProcessRepository interface {
	// Create persists the process with its voters.
	Create(ctx context.Context, process *models.VotingProcess) error
	// GetByID loads voters in declared order and all votes.
	GetByID(ctx context.Context, id uuid.UUID) (*models.VotingProcess, error)
	ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.VotingProcess, error)
	CountByVersion(ctx context.Context, versionID uuid.UUID) (int64, error)
	// Resolve moves an in-progress process to status, returning ErrConflict
	// when it is no longer in progress.
	Resolve(ctx context.Context, id uuid.UUID, status models.VotingStatus) error
	// Reconfigure replaces the voter list and deadline of an in-progress process
	// that has no votes, returning ErrConflict otherwise.
	Reconfigure(ctx context.Context, id uuid.UUID, voters []uuid.UUID, deadline time.Time) error
	// Delete removes the process with its voters and votes.
	Delete(ctx context.Context, id uuid.UUID) error
}

type VoteRepository interface {
	// Create holds the process row while it inserts the vote. It returns
	// ErrConflict when the process is no longer in progress, ErrNotEligible
	// when the user is not on the current voter list and ErrDuplicate when
	// the user already voted.
	Create(ctx context.Context, vote *models.Vote) error
	ListByProcess(ctx context.Context, processID uuid.UUID) ([]models.Vote, error)
}

type SubstitutionRepository interface {
	// Upsert replaces any substitution the principal already holds.
	Upsert(ctx context.Context, substitution *models.Substitution) error
	GetByPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Substitution, error)
	// ListActiveForSubstitute returns substitutions naming substituteID that are
	// still valid at now, most recently assigned first.
	ListActiveForSubstitute(ctx context.Context, substituteID uuid.UUID, now time.Time) ([]models.Substitution, error)
	DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	ListByResource(ctx context.Context, resourceID uuid.UUID, params ListParams) ([]models.AuditLog, int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByEmail(ctx context.Context, email string, params ListParams) ([]models.Notification, int64, error)
	// MarkAsRead flags the notification read when it is addressed to email.
	MarkAsRead(ctx context.Context, id uuid.UUID, email string) error
}

// Supporting types

type ListParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	SortBy   string `json:"sort_by"`
	SortDesc bool   `json:"sort_desc"`
}

// Normalize clamps paging to sane bounds.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

// Offset is the row offset of the requested page.
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}
