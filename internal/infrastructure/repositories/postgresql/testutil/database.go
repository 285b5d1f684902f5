package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
)

// TestDB wraps the database for testing
type TestDB struct {
	*database.DB
}

// NewTestDB creates a new test database connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	// Use DATABASE_URL_TEST if available (for Docker), otherwise SQLite
	databaseURL := os.Getenv("DATABASE_URL_TEST")
	if databaseURL == "" {
		databaseURL = "file::memory:?cache=shared"
		t.Logf("Using SQLite in-memory database for testing")
	} else {
		t.Logf("Using PostgreSQL database for testing: %s", databaseURL)
	}

	db, err := database.New(databaseURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{DB: db}
}

// Cleanup closes the test database
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// Scope returns a context bound to the tenant.
func Scope(tn *models.Tenant) context.Context {
	return tenant.WithScope(context.Background(), tn.ID)
}

// CreateTestTenant creates a test tenant
func (db *TestDB) CreateTestTenant(t *testing.T) *models.Tenant {
	t.Helper()

	tn := &models.Tenant{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("Test Tenant %s", uuid.New().String()[:8]),
		Subdomain: fmt.Sprintf("test-%s", uuid.New().String()[:8]),
		IsActive:  true,
	}
	if err := db.Create(tn).Error; err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}
	return tn
}

// CreateTestUser creates a test user
func (db *TestDB) CreateTestUser(t *testing.T, tn *models.Tenant) *models.User {
	t.Helper()

	user := &models.User{
		ID:        uuid.New(),
		TenantID:  tn.ID,
		Email:     fmt.Sprintf("test-%s@example.com", uuid.New().String()[:8]),
		FirstName: "Test",
		LastName:  "User",
		IsActive:  true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateTestDocumentType creates a document type with a single optional attribute
func (db *TestDB) CreateTestDocumentType(t *testing.T, tn *models.Tenant) *models.DocumentType {
	t.Helper()

	docType := &models.DocumentType{
		Base: models.Base{ID: uuid.New(), TenantID: tn.ID},
		Name: "Contract",
		AttributeSchema: models.JSONB{
			"reference": map[string]interface{}{"type": "string", "required": false},
		},
	}
	if err := db.Create(docType).Error; err != nil {
		t.Fatalf("Failed to create test document type: %v", err)
	}
	return docType
}

// CreateTestDocument creates a document with one draft version and a creator grant for user
func (db *TestDB) CreateTestDocument(t *testing.T, tn *models.Tenant, user *models.User) (*models.Document, *models.DocumentVersion) {
	t.Helper()

	docType := db.CreateTestDocumentType(t, tn)
	versionID := uuid.New()
	document := &models.Document{
		Base:             models.Base{ID: uuid.New(), TenantID: tn.ID},
		DocumentTypeID:   docType.ID,
		Name:             fmt.Sprintf("test-doc-%s", uuid.New().String()[:8]),
		CurrentVersionID: &versionID,
		CreatedBy:        user.ID,
	}
	if err := db.Omit("DocumentType").Create(document).Error; err != nil {
		t.Fatalf("Failed to create test document: %v", err)
	}

	version := &models.DocumentVersion{
		Base:          models.Base{ID: versionID, TenantID: tn.ID},
		DocumentID:    document.ID,
		VersionNumber: 1,
		Attributes:    models.JSONB{},
		Status:        models.StatusDraft,
		CreatedBy:     user.ID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.Create(version).Error; err != nil {
		t.Fatalf("Failed to create test document version: %v", err)
	}

	grant := &models.UserPermissionGrant{
		Base:       models.Base{TenantID: tn.ID},
		DocumentID: document.ID,
		UserID:     user.ID,
		Permission: models.PermissionCreator,
		GrantedBy:  user.ID,
	}
	if err := db.Create(grant).Error; err != nil {
		t.Fatalf("Failed to create test grant: %v", err)
	}

	return document, version
}
