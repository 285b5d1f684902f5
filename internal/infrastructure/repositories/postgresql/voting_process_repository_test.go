package postgresql

import (
	"testing"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/internal/infrastructure/repositories/postgresql/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestProcess(t *testing.T, db *testutil.TestDB, tn *models.Tenant, version *models.DocumentVersion, voters ...*models.User) *models.VotingProcess {
	t.Helper()
	process := &models.VotingProcess{
		VersionID: version.ID,
		Status:    models.VotingInProgress,
		Deadline:  time.Now().UTC().Add(72 * time.Hour),
		CreatedBy: version.CreatedBy,
	}
	for _, v := range voters {
		process.Voters = append(process.Voters, models.VotingProcessVoter{UserID: v.ID})
	}
	require.NoError(t, NewVotingProcessRepository(db.DB).Create(testutil.Scope(tn), process))
	return process
}

func TestVotingProcessRepository_CreateKeepsVoterOrder(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewVotingProcessRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	b := db.CreateTestUser(t, tn)
	c := db.CreateTestUser(t, tn)
	_, version := db.CreateTestDocument(t, tn, a)
	ctx := testutil.Scope(tn)

	process := createTestProcess(t, db, tn, version, c, a, b)

	loaded, err := repo.GetByID(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.ID, a.ID, b.ID}, loaded.VoterIDs())
	assert.True(t, loaded.IsEligible(b.ID))
	assert.False(t, loaded.IsEligible(uuid.New()))

	count, err := repo.CountByVersion(ctx, version.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestVotingProcessRepository_ResolveOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewVotingProcessRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	_, version := db.CreateTestDocument(t, tn, a)
	ctx := testutil.Scope(tn)
	process := createTestProcess(t, db, tn, version, a)

	require.NoError(t, repo.Resolve(ctx, process.ID, models.VotingAccepted))
	err := repo.Resolve(ctx, process.ID, models.VotingRejected)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	loaded, err := repo.GetByID(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VotingAccepted, loaded.Status)
}

func TestVotingProcessRepository_Reconfigure(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewVotingProcessRepository(db.DB)
	votes := NewVoteRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	b := db.CreateTestUser(t, tn)
	_, version := db.CreateTestDocument(t, tn, a)
	ctx := testutil.Scope(tn)
	process := createTestProcess(t, db, tn, version, a)

	deadline := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.Reconfigure(ctx, process.ID, []uuid.UUID{b.ID, a.ID}, deadline))

	loaded, err := repo.GetByID(ctx, process.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, loaded.VoterIDs())
	assert.True(t, deadline.Equal(loaded.Deadline.UTC()))

	require.NoError(t, votes.Create(ctx, &models.Vote{ProcessID: process.ID, UserID: a.ID, Choice: models.VoteApprove, CastAt: time.Now().UTC()}))
	err = repo.Reconfigure(ctx, process.ID, []uuid.UUID{b.ID}, deadline)
	assert.ErrorIs(t, err, repositories.ErrConflict)
}

func TestVotingProcessRepository_Delete(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewVotingProcessRepository(db.DB)
	votes := NewVoteRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	_, version := db.CreateTestDocument(t, tn, a)
	ctx := testutil.Scope(tn)
	process := createTestProcess(t, db, tn, version, a)
	require.NoError(t, votes.Create(ctx, &models.Vote{ProcessID: process.ID, UserID: a.ID, Choice: models.VoteReject, CastAt: time.Now().UTC()}))

	require.NoError(t, repo.Delete(ctx, process.ID))

	_, err := repo.GetByID(ctx, process.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	remaining, err := votes.ListByProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.ErrorIs(t, repo.Delete(ctx, process.ID), repositories.ErrNotFound)
}

func TestVoteRepository_DuplicateVote(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	votes := NewVoteRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	_, version := db.CreateTestDocument(t, tn, a)
	ctx := testutil.Scope(tn)
	process := createTestProcess(t, db, tn, version, a)

	require.NoError(t, votes.Create(ctx, &models.Vote{ProcessID: process.ID, UserID: a.ID, Choice: models.VoteApprove, CastAt: time.Now().UTC()}))
	err := votes.Create(ctx, &models.Vote{ProcessID: process.ID, UserID: a.ID, Choice: models.VoteReject, CastAt: time.Now().UTC()})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
}

func TestVoteRepository_ChecksProcessUnderLock(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)

	repo := NewVotingProcessRepository(db.DB)
	votes := NewVoteRepository(db.DB)
	tn := db.CreateTestTenant(t)
	a := db.CreateTestUser(t, tn)
	b := db.CreateTestUser(t, tn)
	_, version := db.CreateTestDocument(t, tn, a)
	ctx := testutil.Scope(tn)
	process := createTestProcess(t, db, tn, version, a, b)

	vote := func(user *models.User) error {
		return votes.Create(ctx, &models.Vote{ProcessID: process.ID, UserID: user.ID, Choice: models.VoteApprove, CastAt: time.Now().UTC()})
	}

	// A voter dropped from the list can no longer vote.
	require.NoError(t, repo.Reconfigure(ctx, process.ID, []uuid.UUID{b.ID}, process.Deadline))
	assert.ErrorIs(t, vote(a), repositories.ErrNotEligible)

	require.NoError(t, repo.Resolve(ctx, process.ID, models.VotingExpired))
	assert.ErrorIs(t, vote(b), repositories.ErrConflict)

	err := votes.Create(ctx, &models.Vote{ProcessID: uuid.New(), UserID: b.ID, Choice: models.VoteApprove, CastAt: time.Now().UTC()})
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	remaining, err := votes.ListByProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
