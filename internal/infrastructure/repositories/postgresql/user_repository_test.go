package postgresql

import (
	"context"
	"testing"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/internal/infrastructure/repositories/postgresql/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Create(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	tn := db.CreateTestTenant(t)
	ctx := testutil.Scope(tn)

	user := &models.User{Email: "John.Doe@Example.com", FirstName: "John", LastName: "Doe", IsActive: true}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, tn.ID, user.TenantID)
	assert.Equal(t, "john.doe@example.com", user.Email)
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	tn := db.CreateTestTenant(t)
	ctx := testutil.Scope(tn)

	require.NoError(t, repo.Create(ctx, &models.User{Email: "duplicate@example.com", IsActive: true}))
	err := repo.Create(ctx, &models.User{Email: "duplicate@example.com", IsActive: true})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	// Same email is fine in another tenant
	other := db.CreateTestTenant(t)
	require.NoError(t, repo.Create(testutil.Scope(other), &models.User{Email: "duplicate@example.com", IsActive: true}))
}

func TestUserRepository_GetByEmail_TenantScoped(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	tenantA := db.CreateTestTenant(t)
	tenantB := db.CreateTestTenant(t)
	user := db.CreateTestUser(t, tenantA)

	found, err := repo.GetByEmail(testutil.Scope(tenantA), user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.GetByEmail(testutil.Scope(tenantB), user.Email)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = repo.GetByID(testutil.Scope(tenantB), user.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUserRepository_MissingScope(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, repositories.ErrMissingTenantScope)

	err = repo.Create(context.Background(), &models.User{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, repositories.ErrMissingTenantScope)
}

func TestUserRepository_GetByIDs(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewUserRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	b := db.CreateTestUser(t, tn)

	users, err := repo.GetByIDs(testutil.Scope(tn), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = repo.GetByIDs(testutil.Scope(tn), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
