package services

import (
	"testing"
	"time"

	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign_Validation(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	h.user("bob@example.com")
	future := h.clock.Now().Add(time.Hour)

	_, err := h.delegation.Assign(h.ctx, alice, "nobody@example.com", future)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = h.delegation.Assign(h.ctx, alice, "alice@example.com", future)
	assert.ErrorIs(t, err, ErrSelfSubstitution)

	_, err = h.delegation.Assign(h.ctx, alice, "bob@example.com", h.clock.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.delegation.Assign(h.ctx, alice, "  ", future)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssign_ReplacesPreviousSubstitute(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	bob := h.user("bob@example.com")
	carol := h.user("carol@example.com")

	first, err := h.delegation.Assign(h.ctx, alice, bob.Email, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	second, err := h.delegation.Assign(h.ctx, alice, "CAROL@example.com", h.clock.Now().Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, carol.UserID, second.SubstituteID)

	principal, err := h.delegation.EffectivePrincipal(h.ctx, bob.UserID)
	require.NoError(t, err)
	assert.Nil(t, principal)

	principal, err = h.delegation.EffectivePrincipal(h.ctx, carol.UserID)
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, alice.UserID, *principal)

	entry, ok := h.store.lastAudit(second.ID, models.AuditSubstitute)
	require.True(t, ok)
	assert.Equal(t, alice.UserID, entry.UserID)
}

func TestEffectivePrincipal_MostRecentWins(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	dave := h.user("dave@example.com")
	carol := h.user("carol@example.com")

	_, err := h.delegation.Assign(h.ctx, alice, carol.Email, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.delegation.Assign(h.ctx, dave, carol.Email, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	principals, err := h.delegation.ActivePrincipals(h.ctx, carol.UserID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dave.UserID, alice.UserID}, principals)

	principal, err := h.delegation.EffectivePrincipal(h.ctx, carol.UserID)
	require.NoError(t, err)
	assert.Equal(t, dave.UserID, *principal)
}

func TestCurrentAndClear(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	bob := h.user("bob@example.com")

	cur, err := h.delegation.Current(h.ctx, alice.UserID)
	require.NoError(t, err)
	assert.Nil(t, cur)

	_, err = h.delegation.Assign(h.ctx, alice, bob.Email, h.clock.Now().Add(time.Minute))
	require.NoError(t, err)
	cur, err = h.delegation.Current(h.ctx, alice.UserID)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, bob.UserID, cur.SubstituteID)

	h.clock.Advance(time.Minute)
	cur, err = h.delegation.Current(h.ctx, alice.UserID)
	require.NoError(t, err)
	assert.Nil(t, cur, "an expired substitution is not in force")

	require.NoError(t, h.delegation.Clear(h.ctx, alice))
	assert.ErrorIs(t, h.delegation.Clear(h.ctx, alice), ErrSubstitutionNotFound)
}
