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
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
)

// DocumentService handles the document lifecycle around the approval
// workflows: types, documents, versions and permission grants.
type DocumentService struct {
	docRepo     repositories.DocumentRepository
	docTypeRepo repositories.DocumentTypeRepository
	versionRepo repositories.DocumentVersionRepository
	grantRepo   repositories.PermissionGrantRepository
	userRepo    repositories.UserRepository
	auditRepo   repositories.AuditLogRepository

	permissions *PermissionEvaluator
	machine     *DocumentStateMachine
	audit       auditTrail
	logger      *logger.Logger
}

// NewDocumentService creates a new document service instance
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	docTypeRepo repositories.DocumentTypeRepository,
	versionRepo repositories.DocumentVersionRepository,
	grantRepo repositories.PermissionGrantRepository,
	userRepo repositories.UserRepository,
	auditRepo repositories.AuditLogRepository,
	permissions *PermissionEvaluator,
	machine *DocumentStateMachine,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:     docRepo,
		docTypeRepo: docTypeRepo,
		versionRepo: versionRepo,
		grantRepo:   grantRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		permissions: permissions,
		machine:     machine,
		audit:       auditTrail{repo: auditRepo, logger: log},
		logger:      log,
	}
}

// RegisterDocumentType stores a new type after checking its attribute schema.
func (s *DocumentService) RegisterDocumentType(ctx context.Context, name string, schema models.JSONB) (*models.DocumentType, error) {
	const action = "register_document_type"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fail(ErrInvalidInput, uuid.Nil, action, errors.New("name is required"))
	}
	parsed, err := ParseAttributeSchema(schema)
	if err != nil {
		return nil, fail(ErrInvalidInput, uuid.Nil, action, err)
	}

	docType := &models.DocumentType{
		Name:            name,
		AttributeSchema: parsed.JSONB(),
	}
	if err := s.docTypeRepo.Create(ctx, docType); err != nil {
		return nil, err
	}
	return docType, nil
}

// ListDocumentTypes returns every type in the tenant.
func (s *DocumentService) ListDocumentTypes(ctx context.Context) ([]models.DocumentType, error) {
	return s.docTypeRepo.List(ctx)
}

// CreateDocumentParams contains parameters for document creation
type CreateDocumentParams struct {
	Name           string                 `json:"name"`
	DocumentTypeID uuid.UUID              `json:"document_type_id"`
	Attributes     map[string]interface{} `json:"attributes"`
}

// CreateDocument creates a document with a draft first version and makes the
// actor its creator.
func (s *DocumentService) CreateDocument(ctx context.Context, actor Actor, params CreateDocumentParams) (doc *models.Document, err error) {
	const action = "create_document"
	start := time.Now()
	defer func() { metrics.ObserveOperation(action, err, time.Since(start)) }()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fail(ErrInvalidInput, uuid.Nil, action, errors.New("name is required"))
	}
	if err := s.validateAttributes(ctx, params.DocumentTypeID, params.Attributes, action); err != nil {
		return nil, err
	}

	doc = &models.Document{
		DocumentTypeID: params.DocumentTypeID,
		Name:           name,
		CreatedBy:      actor.UserID,
	}
	version := &models.DocumentVersion{
		VersionNumber: 1,
		Attributes:    models.JSONB(params.Attributes),
		Status:        models.StatusDraft,
		CreatedBy:     actor.UserID,
	}
	grant := &models.UserPermissionGrant{
		UserID:     actor.UserID,
		Permission: models.PermissionCreator,
		GrantedBy:  actor.UserID,
	}
	if err := s.docRepo.Create(ctx, doc, version, grant); err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor.Self(), ResourceDocument, doc.ID, models.AuditCreate, models.JSONB{
		"name":       name,
		"version_id": version.ID.String(),
	})
	s.logger.Info("document created",
		slog.String("document_id", doc.ID.String()),
		slog.String("user_id", actor.UserID.String()),
	)

	doc.Versions = []models.DocumentVersion{*version}
	doc.Grants = []models.UserPermissionGrant{*grant}
	return doc, nil
}

// CreateVersion adds a new draft version. Only a document whose current
// version is still a draft can be edited.
func (s *DocumentService) CreateVersion(ctx context.Context, actor Actor, documentID uuid.UUID, attributes map[string]interface{}) (version *models.DocumentVersion, err error) {
	const action = "create_version"
	start := time.Now()
	defer func() { metrics.ObserveOperation(action, err, time.Since(start)) }()

	doc, err := s.loadDocument(ctx, documentID, action)
	if err != nil {
		return nil, err
	}
	authority, err := s.permissions.Require(ctx, CapabilityEdit, actor, documentID)
	if err != nil {
		return nil, err
	}

	if doc.CurrentVersionID != nil {
		current, err := s.versionRepo.GetByID(ctx, *doc.CurrentVersionID)
		if err != nil {
			return nil, err
		}
		if !CanEdit(current.Status) {
			return nil, fail(ErrStatusIncorrectForEdit, current.ID, action, fmt.Errorf("status is %s", current.Status))
		}
	}
	if err := s.validateAttributes(ctx, doc.DocumentTypeID, attributes, action); err != nil {
		return nil, err
	}

	latest, err := s.versionRepo.LatestNumber(ctx, documentID)
	if err != nil {
		return nil, err
	}
	version = &models.DocumentVersion{
		DocumentID:    documentID,
		VersionNumber: latest + 1,
		Attributes:    models.JSONB(attributes),
		Status:        models.StatusDraft,
		CreatedBy:     authority.Identity.PerformedAs,
	}
	if err := s.versionRepo.Create(ctx, version); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fail(ErrConcurrentModification, documentID, action, err)
		}
		return nil, err
	}
	if err := s.docRepo.SetCurrentVersion(ctx, documentID, version.ID); err != nil {
		return nil, err
	}

	s.audit.record(ctx, authority.Identity, ResourceVersion, version.ID, models.AuditCreate, models.JSONB{
		"document_id":    documentID.String(),
		"version_number": version.VersionNumber,
	})
	return version, nil
}

// RenameDocument changes the document's display name.
func (s *DocumentService) RenameDocument(ctx context.Context, actor Actor, documentID uuid.UUID, name string) error {
	const action = "rename_document"
	name = strings.TrimSpace(name)
	if name == "" {
		return fail(ErrInvalidInput, documentID, action, errors.New("name is required"))
	}
	if _, err := s.loadDocument(ctx, documentID, action); err != nil {
		return err
	}
	authority, err := s.permissions.Require(ctx, CapabilityEdit, actor, documentID)
	if err != nil {
		return err
	}
	if err := s.docRepo.Rename(ctx, documentID, name); err != nil {
		return err
	}
	s.audit.record(ctx, authority.Identity, ResourceDocument, documentID, models.AuditUpdate, models.JSONB{
		"name": name,
	})
	return nil
}

// GetDocument returns the document with its versions and grants.
func (s *DocumentService) GetDocument(ctx context.Context, actor Actor, documentID uuid.UUID) (*models.Document, error) {
	doc, err := s.loadDocument(ctx, documentID, "get_document")
	if err != nil {
		return nil, err
	}
	if _, err := s.permissions.Require(ctx, CapabilityRead, actor, documentID); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns the page of tenant documents the actor can read.
// The total counts every document in the tenant.
func (s *DocumentService) ListDocuments(ctx context.Context, actor Actor, params repositories.ListParams) ([]models.Document, int64, error) {
	docs, total, err := s.docRepo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	readable := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		caps, err := s.permissions.CapabilitiesOf(ctx, actor, d.ID)
		if err != nil {
			return nil, 0, err
		}
		if caps.CanRead() {
			readable = append(readable, d)
		}
	}
	return readable, total, nil
}

// GetVersion returns a version with its signatures and voting processes.
func (s *DocumentService) GetVersion(ctx context.Context, actor Actor, versionID uuid.UUID) (*models.DocumentVersion, error) {
	version, err := s.loadVersion(ctx, versionID, "get_version")
	if err != nil {
		return nil, err
	}
	if _, err := s.permissions.Require(ctx, CapabilityRead, actor, version.DocumentID); err != nil {
		return nil, err
	}
	return version, nil
}

// VersionHistory returns the audit trail of a version, newest first.
func (s *DocumentService) VersionHistory(ctx context.Context, actor Actor, versionID uuid.UUID, params repositories.ListParams) ([]models.AuditLog, int64, error) {
	version, err := s.loadVersion(ctx, versionID, "version_history")
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.permissions.Require(ctx, CapabilityRead, actor, version.DocumentID); err != nil {
		return nil, 0, err
	}
	return s.auditRepo.ListByResource(ctx, versionID, params)
}

// DeleteDocument removes a document once no version is in signing or voting.
func (s *DocumentService) DeleteDocument(ctx context.Context, actor Actor, documentID uuid.UUID) error {
	const action = "delete_document"
	doc, err := s.loadDocument(ctx, documentID, action)
	if err != nil {
		return err
	}
	authority, err := s.permissions.Require(ctx, CapabilityCreator, actor, documentID)
	if err != nil {
		return err
	}
	for _, v := range doc.Versions {
		if !CanDelete(v.Status) {
			return fail(ErrDocumentInWorkflow, documentID, action, fmt.Errorf("version %d is %s", v.VersionNumber, v.Status))
		}
	}

	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return fail(ErrDocumentInWorkflow, documentID, action, err)
		case isNotFound(err):
			return fail(ErrDocumentNotFound, documentID, action, err)
		}
		return err
	}

	s.audit.record(ctx, authority.Identity, ResourceDocument, documentID, models.AuditDelete, models.JSONB{
		"name": doc.Name,
	})
	s.logger.Info("document deleted",
		slog.String("document_id", documentID.String()),
		slog.String("user_id", actor.UserID.String()),
	)
	return nil
}

// ArchiveVersion retires a version that reached an outcome.
func (s *DocumentService) ArchiveVersion(ctx context.Context, actor Actor, versionID uuid.UUID) (TransitionResult, error) {
	version, err := s.loadVersion(ctx, versionID, "archive_version")
	if err != nil {
		return TransitionResult{}, err
	}
	authority, err := s.permissions.Require(ctx, CapabilityEdit, actor, version.DocumentID)
	if err != nil {
		return TransitionResult{}, err
	}
	return s.machine.Transition(ctx, authority.Identity, versionID, Archive())
}

// GrantPermission gives the user behind email a permission on the document.
func (s *DocumentService) GrantPermission(ctx context.Context, actor Actor, documentID uuid.UUID, email string, permission models.DocumentPermissionName) (*models.UserPermissionGrant, error) {
	const action = "grant_permission"
	if !permission.IsValid() {
		return nil, fail(ErrInvalidInput, documentID, action, fmt.Errorf("unknown permission %q", permission))
	}
	if _, err := s.loadDocument(ctx, documentID, action); err != nil {
		return nil, err
	}
	authority, err := s.permissions.Require(ctx, CapabilityCreator, actor, documentID)
	if err != nil {
		return nil, err
	}
	user, err := s.lookupUser(ctx, email, action)
	if err != nil {
		return nil, err
	}

	grant := &models.UserPermissionGrant{
		DocumentID: documentID,
		UserID:     user.ID,
		Permission: permission,
		GrantedBy:  authority.Identity.PerformedAs,
	}
	if err := s.grantRepo.Grant(ctx, grant); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fail(ErrDocumentPermissionAlreadyGranted, documentID, action, err)
		}
		return nil, err
	}

	s.audit.record(ctx, authority.Identity, ResourceDocument, documentID, models.AuditGrant, models.JSONB{
		"user_id":    user.ID.String(),
		"permission": string(permission),
	})
	return grant, nil
}

// RevokePermission removes a permission. The last creator grant stays.
func (s *DocumentService) RevokePermission(ctx context.Context, actor Actor, documentID uuid.UUID, email string, permission models.DocumentPermissionName) error {
	const action = "revoke_permission"
	if !permission.IsValid() {
		return fail(ErrInvalidInput, documentID, action, fmt.Errorf("unknown permission %q", permission))
	}
	if _, err := s.loadDocument(ctx, documentID, action); err != nil {
		return err
	}
	authority, err := s.permissions.Require(ctx, CapabilityCreator, actor, documentID)
	if err != nil {
		return err
	}
	user, err := s.lookupUser(ctx, email, action)
	if err != nil {
		return err
	}

	if permission == models.PermissionCreator {
		holders, err := s.grantRepo.HoldersOf(ctx, documentID, models.PermissionCreator)
		if err != nil {
			return err
		}
		if len(holders) == 1 && holders[0] == user.ID {
			return fail(ErrInvalidInput, documentID, action, errors.New("document must keep at least one creator"))
		}
	}

	if err := s.grantRepo.Revoke(ctx, documentID, user.ID, permission); err != nil {
		if isNotFound(err) {
			return fail(ErrGrantNotFound, documentID, action, err)
		}
		return err
	}

	s.audit.record(ctx, authority.Identity, ResourceDocument, documentID, models.AuditRevoke, models.JSONB{
		"user_id":    user.ID.String(),
		"permission": string(permission),
	})
	return nil
}

// ListGrants returns the document's grants.
func (s *DocumentService) ListGrants(ctx context.Context, actor Actor, documentID uuid.UUID) ([]models.UserPermissionGrant, error) {
	if _, err := s.loadDocument(ctx, documentID, "list_grants"); err != nil {
		return nil, err
	}
	if _, err := s.permissions.Require(ctx, CapabilityRead, actor, documentID); err != nil {
		return nil, err
	}
	return s.grantRepo.ListForDocument(ctx, documentID)
}

func (s *DocumentService) validateAttributes(ctx context.Context, docTypeID uuid.UUID, attributes map[string]interface{}, action string) error {
	docType, err := s.docTypeRepo.GetByID(ctx, docTypeID)
	if err != nil {
		if isNotFound(err) {
			return fail(ErrNoDocumentType, docTypeID, action, err)
		}
		return err
	}
	schema, err := ParseAttributeSchema(docType.AttributeSchema)
	if err != nil {
		return fail(ErrIllFormedTemplate, docTypeID, action, err)
	}
	if err := schema.Validate(attributes); err != nil {
		return fail(ErrIllFormedAttributes, docTypeID, action, err)
	}
	return nil
}

func (s *DocumentService) lookupUser(ctx context.Context, email, action string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fail(ErrInvalidInput, uuid.Nil, action, errors.New("email is required"))
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrUserNotFound, uuid.Nil, action, err)
		}
		return nil, err
	}
	return user, nil
}

func (s *DocumentService) loadDocument(ctx context.Context, documentID uuid.UUID, action string) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrDocumentNotFound, documentID, action, err)
		}
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) loadVersion(ctx context.Context, versionID uuid.UUID, action string) (*models.DocumentVersion, error) {
	version, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		if isNotFound(err) {
			return nil, fail(ErrVersionNotFound, versionID, action, err)
		}
		return nil, err
	}
	return version, nil
}
