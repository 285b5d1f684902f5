package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Custom Types
type DocumentStatus string
type DocumentPermissionName string
type SignatureStatus string
type VotingStatus string
type VoteChoice string
type AuditAction string
type NotificationChannel string

const (
	// Document Version Status
	StatusDraft               DocumentStatus = "draft"
	StatusSignatureInProgress DocumentStatus = "signature_in_progress"
	StatusVotingInProgress    DocumentStatus = "voting_in_progress"
	StatusSignatureAccepted   DocumentStatus = "signature_accepted"
	StatusSignatureRejected   DocumentStatus = "signature_rejected"
	StatusVotingAccepted      DocumentStatus = "voting_accepted"
	StatusVotingRejected      DocumentStatus = "voting_rejected"
	StatusArchived            DocumentStatus = "archived"

	// Document Permissions
	PermissionRead           DocumentPermissionName = "read"
	PermissionEdit           DocumentPermissionName = "edit"
	PermissionSendForSigning DocumentPermissionName = "send_for_signing"
	PermissionSendForVoting  DocumentPermissionName = "send_for_voting"
	PermissionCreator        DocumentPermissionName = "creator"

	// Signature Status
	SignaturePending SignatureStatus = "pending"
	SignatureSigned  SignatureStatus = "signed"
	SignatureRefused SignatureStatus = "refused"

	// Voting Process Status
	VotingInProgress VotingStatus = "in_progress"
	VotingAccepted   VotingStatus = "accepted"
	VotingRejected   VotingStatus = "rejected"
	VotingExpired    VotingStatus = "expired"

	// Vote Choices
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"

	// Audit Actions
	AuditCreate     AuditAction = "create"
	AuditUpdate     AuditAction = "update"
	AuditDelete     AuditAction = "delete"
	AuditTransition AuditAction = "transition"
	AuditSign       AuditAction = "sign"
	AuditRefuse     AuditAction = "refuse"
	AuditVote       AuditAction = "vote"
	AuditGrant      AuditAction = "grant"
	AuditRevoke     AuditAction = "revoke"
	AuditSubstitute AuditAction = "substitute"

	// Notification Channels
	NotifyEmail NotificationChannel = "email"
	NotifyInApp NotificationChannel = "in_app"
)

// AllPermissions lists every grantable permission in canonical order.
var AllPermissions = []DocumentPermissionName{
	PermissionRead,
	PermissionEdit,
	PermissionSendForSigning,
	PermissionSendForVoting,
	PermissionCreator,
}

// IsValid reports whether p is a known permission name.
func (p DocumentPermissionName) IsValid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// IsTerminalOutcome reports whether s is one of the four accepted/rejected states.
func (s DocumentStatus) IsTerminalOutcome() bool {
	switch s {
	case StatusSignatureAccepted, StatusSignatureRejected, StatusVotingAccepted, StatusVotingRejected:
		return true
	}
	return false
}

// JSONB type for PostgreSQL jsonb columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		*j = JSONB{}
		return nil
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Base carries the identity and tenant columns shared by every entity.
type Base struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
}

// BeforeCreate assigns an identity when the caller did not.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Tenant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	Subdomain string    `json:"subdomain" gorm:"type:varchar(100);uniqueIndex;not null"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_user_email"`
	Email     string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex:idx_tenant_user_email"`
	FirstName string    `json:"first_name" gorm:"type:varchar(100)"`
	LastName  string    `json:"last_name" gorm:"type:varchar(100)"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName returns the full name, falling back to the email.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// DocumentType holds the attribute schema every version of a document is validated against.
type DocumentType struct {
	Base
	Name            string    `json:"name" gorm:"type:varchar(255);not null"`
	AttributeSchema JSONB     `json:"attribute_schema" gorm:"type:jsonb"`
	CreatedAt       time.Time `json:"created_at"`
}

type Document struct {
	Base
	DocumentTypeID   uuid.UUID  `json:"document_type_id" gorm:"type:uuid;not null;index"`
	Name             string     `json:"name" gorm:"type:varchar(255);not null"`
	CurrentVersionID *uuid.UUID `json:"current_version_id" gorm:"type:uuid"`
	CreatedBy        uuid.UUID  `json:"created_by" gorm:"type:uuid;not null;index"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// Relationships
	DocumentType DocumentType          `json:"document_type,omitempty" gorm:"foreignKey:DocumentTypeID"`
	Versions     []DocumentVersion     `json:"versions,omitempty" gorm:"foreignKey:DocumentID"`
	Grants       []UserPermissionGrant `json:"grants,omitempty" gorm:"foreignKey:DocumentID"`
}

// DocumentVersion is immutable after creation except for Status, LockVersion and
// the signature and voting process collections it exclusively owns.
type DocumentVersion struct {
	Base
	DocumentID    uuid.UUID      `json:"document_id" gorm:"type:uuid;not null;uniqueIndex:idx_document_version_number"`
	VersionNumber int            `json:"version_number" gorm:"not null;uniqueIndex:idx_document_version_number"`
	Attributes    JSONB          `json:"attributes" gorm:"type:jsonb"`
	Status        DocumentStatus `json:"status" gorm:"type:varchar(32);not null;index"`
	LockVersion   int64          `json:"lock_version" gorm:"not null;default:0"`
	CreatedBy     uuid.UUID      `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt     time.Time      `json:"created_at"`

	// Relationships
	Signatures      []Signature     `json:"signatures,omitempty" gorm:"foreignKey:VersionID"`
	VotingProcesses []VotingProcess `json:"voting_processes,omitempty" gorm:"foreignKey:VersionID"`
}

type UserPermissionGrant struct {
	Base
	DocumentID uuid.UUID              `json:"document_id" gorm:"type:uuid;not null;uniqueIndex:idx_grant_doc_user_perm"`
	UserID     uuid.UUID              `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_grant_doc_user_perm"`
	Permission DocumentPermissionName `json:"permission" gorm:"type:varchar(32);not null;uniqueIndex:idx_grant_doc_user_perm"`
	GrantedBy  uuid.UUID              `json:"granted_by" gorm:"type:uuid;not null"`
	CreatedAt  time.Time              `json:"created_at"`
}

type Signature struct {
	Base
	VersionID     uuid.UUID       `json:"version_id" gorm:"type:uuid;not null;index"`
	UserID        uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	Label         string          `json:"label" gorm:"type:varchar(255);not null"`
	Status        SignatureStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	SentAt        time.Time       `json:"sent_at" gorm:"not null"`
	SignedAt      *time.Time      `json:"signed_at"`
	SignatureData string          `json:"signature_data" gorm:"type:varchar(64)"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type VotingProcess struct {
	Base
	VersionID uuid.UUID    `json:"version_id" gorm:"type:uuid;not null;index"`
	Status    VotingStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	Deadline  time.Time    `json:"deadline" gorm:"not null"`
	CreatedBy uuid.UUID    `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	// Relationships
	Voters []VotingProcessVoter `json:"voters,omitempty" gorm:"foreignKey:ProcessID"`
	Votes  []Vote               `json:"votes,omitempty" gorm:"foreignKey:ProcessID"`
}

// VoterIDs returns the eligible voters in their declared order.
func (p *VotingProcess) VoterIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Voters))
	for _, v := range p.Voters {
		ids = append(ids, v.UserID)
	}
	return ids
}

// IsEligible reports whether userID appears in the voter list.
func (p *VotingProcess) IsEligible(userID uuid.UUID) bool {
	for _, v := range p.Voters {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

type VotingProcessVoter struct {
	Base
	ProcessID uuid.UUID `json:"process_id" gorm:"type:uuid;not null;uniqueIndex:idx_process_voter"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_process_voter"`
	Position  int       `json:"position" gorm:"not null"`
}

type Vote struct {
	Base
	ProcessID uuid.UUID  `json:"process_id" gorm:"type:uuid;not null;uniqueIndex:idx_process_vote_user"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_process_vote_user"`
	Choice    VoteChoice `json:"choice" gorm:"type:varchar(16);not null"`
	CastAt    time.Time  `json:"cast_at" gorm:"not null"`
}

// Substitution lets SubstituteID act with PrincipalID's authority until Until.
type Substitution struct {
	Base
	PrincipalID  uuid.UUID `json:"principal_id" gorm:"type:uuid;not null;uniqueIndex"`
	SubstituteID uuid.UUID `json:"substitute_id" gorm:"type:uuid;not null;index"`
	Until        time.Time `json:"until" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Substitute User `json:"substitute,omitempty" gorm:"foreignKey:SubstituteID"`
}

// IsActiveAt reports whether the substitution still grants authority at t.
func (s *Substitution) IsActiveAt(t time.Time) bool {
	return t.Before(s.Until)
}

type AuditLog struct {
	Base
	UserID       uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;index"`
	ActorID      uuid.UUID   `json:"actor_id" gorm:"type:uuid;not null"`
	ResourceID   uuid.UUID   `json:"resource_id" gorm:"type:uuid;not null;index"`
	ResourceType string      `json:"resource_type" gorm:"type:varchar(50);not null"`
	Action       AuditAction `json:"action" gorm:"type:varchar(20);not null"`
	Details      JSONB       `json:"details" gorm:"type:jsonb"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Notification struct {
	Base
	UserEmail         string              `json:"user_email" gorm:"type:varchar(320);not null;index"`
	DocumentVersionID uuid.UUID           `json:"document_version_id" gorm:"type:uuid;not null"`
	Type              string              `json:"type" gorm:"type:varchar(50);not null"`
	Channel           NotificationChannel `json:"channel" gorm:"type:varchar(20);not null"`
	IsRead            bool                `json:"is_read" gorm:"not null;default:false"`
	CreatedAt         time.Time           `json:"created_at"`
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&DocumentType{},
		&Document{},
		&DocumentVersion{},
		&UserPermissionGrant{},
		&Signature{},
		&VotingProcess{},
		&VotingProcessVoter{},
		&Vote{},
		&Substitution{},
		&AuditLog{},
		&Notification{},
	}
}
