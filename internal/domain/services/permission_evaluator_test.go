package services

import (
	"testing"
	"time"

	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionSet_Derivations(t *testing.T) {
	tests := []struct {
		name    string
		set     PermissionSet
		read    bool
		edit    bool
		signing bool
		voting  bool
		creator bool
	}{
		{"empty", NewPermissionSet(), false, false, false, false, false},
		{"read", NewPermissionSet(models.PermissionRead), true, false, false, false, false},
		{"edit implies read", NewPermissionSet(models.PermissionEdit), true, true, false, false, false},
		{"signing only", NewPermissionSet(models.PermissionSendForSigning), false, false, true, false, false},
		{"voting only", NewPermissionSet(models.PermissionSendForVoting), false, false, false, true, false},
		{"creator implies all", NewPermissionSet(models.PermissionCreator), true, true, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.read, tt.set.CanRead())
			assert.Equal(t, tt.edit, tt.set.CanEdit())
			assert.Equal(t, tt.signing, tt.set.CanSendForSigning())
			assert.Equal(t, tt.voting, tt.set.CanSendForVoting())
			assert.Equal(t, tt.creator, tt.set.IsCreator())

			assert.Equal(t, tt.read, tt.set.Satisfies(CapabilityRead))
			assert.Equal(t, tt.creator, tt.set.Satisfies(CapabilityCreator))
		})
	}
}

func TestPermissionSet_UnionAndNames(t *testing.T) {
	a := NewPermissionSet(models.PermissionSendForVoting)
	b := NewPermissionSet(models.PermissionRead, models.PermissionSendForVoting)
	assert.Equal(t, []models.DocumentPermissionName{models.PermissionRead, models.PermissionSendForVoting}, a.Union(b).Names())
	assert.Len(t, a, 1)
}

func TestRequire_OwnGrants(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	bob := h.user("bob@example.com")
	doc, _ := h.document(alice)

	authority, err := h.permissions.Require(h.ctx, CapabilitySendForSigning, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Self(), authority.Identity)

	_, err = h.permissions.Require(h.ctx, CapabilityRead, bob, doc.ID)
	assert.ErrorIs(t, err, ErrMissingPermission)
	assert.Equal(t, KindMissingPermission, KindOf(err))

	h.grant(doc, alice, bob, models.PermissionEdit)
	_, err = h.permissions.Require(h.ctx, CapabilityRead, bob, doc.ID)
	assert.NoError(t, err)
	_, err = h.permissions.Require(h.ctx, CapabilitySendForVoting, bob, doc.ID)
	assert.ErrorIs(t, err, ErrMissingPermission)
}

func TestRequire_DelegatedGrantsAndExpiry(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	carol := h.user("carol@example.com")
	doc, _ := h.document(alice)

	_, err := h.delegation.Assign(h.ctx, alice, carol.Email, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	caps, err := h.permissions.CapabilitiesOf(h.ctx, carol, doc.ID)
	require.NoError(t, err)
	assert.True(t, caps.IsCreator())

	authority, err := h.permissions.Require(h.ctx, CapabilitySendForSigning, carol, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, authority.Identity.PerformedAs)
	assert.Equal(t, carol.UserID, authority.Identity.ActorID)

	h.clock.Advance(time.Hour)
	_, err = h.permissions.Require(h.ctx, CapabilitySendForSigning, carol, doc.ID)
	assert.ErrorIs(t, err, ErrMissingPermission)
}

func TestRequire_OwnGrantsWinOverDelegation(t *testing.T) {
	h := newHarness(t)
	alice := h.user("alice@example.com")
	carol := h.user("carol@example.com")
	doc, _ := h.document(alice)
	h.grant(doc, alice, carol, models.PermissionRead)

	_, err := h.delegation.Assign(h.ctx, alice, carol.Email, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	authority, err := h.permissions.Require(h.ctx, CapabilityRead, carol, doc.ID)
	require.NoError(t, err)
	assert.False(t, authority.Identity.Delegated())
}
