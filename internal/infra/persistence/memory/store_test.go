package memory

import (
	"context"
	"testing"
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"
	"huddle/internal/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

func newRequest(userID string, state entity.RequestState, createdAt time.Time) *entity.UserRequest {
	return &entity.UserRequest{
		UserID:     userID,
		Restaurant: "Chipotle",
		Location:   "Student Center East",
		Window:     entity.TimeWindow{Start: createdAt.Add(time.Hour), End: createdAt.Add(90 * time.Minute)},
		State:      state,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestRequestRepository_Create_RejectsSecondActiveRequest(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewRequestRepository()

	require.NoError(t, repo.Create(ctx, newRequest("u1", entity.RequestStateMatching, baseTime)))

	err := repo.Create(ctx, newRequest("u1", entity.RequestStateAwaitingIntent, baseTime))
	assert.ErrorIs(t, err, repository.ErrActiveRequestExists)
}

func TestRequestRepository_Create_AllowsNewRequestAfterTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewRequestRepository()

	first := newRequest("u1", entity.RequestStateMatching, baseTime)
	require.NoError(t, repo.Create(ctx, first))

	first.State = entity.RequestStateCancelled
	require.NoError(t, repo.UpdateIfVersion(ctx, first, 1))

	assert.NoError(t, repo.Create(ctx, newRequest("u1", entity.RequestStateAwaitingIntent, baseTime)))
}

func TestRequestRepository_UpdateIfVersion_Conflict(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewRequestRepository()

	req := newRequest("u1", entity.RequestStateMatching, baseTime)
	require.NoError(t, repo.Create(ctx, req))

	first, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)

	first.State = entity.RequestStateNegotiating
	require.NoError(t, repo.UpdateIfVersion(ctx, first, first.Version))
	assert.Equal(t, int64(2), first.Version)

	second.State = entity.RequestStateCancelled
	err = repo.UpdateIfVersion(ctx, second, second.Version)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	stored, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStateNegotiating, stored.State)
}

func TestRequestRepository_Find_OrdersByCreationAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewRequestRepository()

	late := newRequest("late", entity.RequestStateMatching, baseTime.Add(time.Minute))
	early := newRequest("early", entity.RequestStateMatching, baseTime)
	other := newRequest("other", entity.RequestStateMatching, baseTime)
	other.Restaurant = "Starbucks"
	waiting := newRequest("waiting", entity.RequestStateAwaitingIntent, baseTime)

	for _, req := range []*entity.UserRequest{late, early, other, waiting} {
		require.NoError(t, repo.Create(ctx, req))
	}

	found, err := repo.Find(ctx, repository.RequestFilter{
		States:        []entity.RequestState{entity.RequestStateMatching},
		Restaurant:    "chipotle",
		Location:      "Student Center East",
		ExcludeUserID: "nobody",
	})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "early", found[0].UserID)
	assert.Equal(t, "late", found[1].UserID)
}

func TestRequestRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewRequestRepository()

	req := newRequest("u1", entity.RequestStateMatching, baseTime)
	require.NoError(t, repo.Create(ctx, req))

	loaded, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	loaded.Exclude("u2", baseTime.Add(time.Hour))
	loaded.State = entity.RequestStateCancelled

	again, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStateMatching, again.State)
	assert.Empty(t, again.Exclusions)
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tm := NewTransactionManager(store)
	boom := errors.New("boom")

	err := tm.Execute(ctx, func(f repository.RepositoryFactory) error {
		require.NoError(t, f.NewRequestRepository().Create(ctx, newRequest("u1", entity.RequestStateMatching, baseTime)))
		require.NoError(t, f.NewProfileRepository().AppendLog(ctx, &entity.InteractionEvent{UserID: "u1", Kind: entity.InteractionCheckIn, CreatedAt: baseTime}))

		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.NewRequestRepository().FindActiveByUser(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrRequestNotFound)

	events, err := store.NewProfileRepository().ListLog(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTransactionManager_RollbackKeepsWritesCommittedOutside(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tm := NewTransactionManager(store)
	requests := store.NewRequestRepository()
	groups := store.NewGroupRepository()

	req := newRequest("u1", entity.RequestStateMatching, baseTime)
	require.NoError(t, requests.Create(ctx, req))
	group := &entity.GroupSession{ID: uuid.New(), Status: entity.GroupStatusForming, FormedAt: baseTime}
	require.NoError(t, groups.Create(ctx, group))

	err := tm.Execute(ctx, func(f repository.RepositoryFactory) error {
		require.NoError(t, f.NewProfileRepository().AppendLog(ctx, &entity.InteractionEvent{UserID: "u1", Kind: entity.InteractionCheckIn, CreatedAt: baseTime}))

		inTx, err := f.NewGroupRepository().FindByID(ctx, group.ID)
		require.NoError(t, err)
		inTx.Reason = "written in transaction"
		require.NoError(t, f.NewGroupRepository().UpdateIfVersion(ctx, inTx, inTx.Version))

		// another caller commits while the transaction is open
		cancelled, err := requests.FindByID(ctx, req.ID)
		require.NoError(t, err)
		cancelled.State = entity.RequestStateCancelled
		require.NoError(t, requests.UpdateIfVersion(ctx, cancelled, cancelled.Version))

		outside, err := groups.FindByID(ctx, group.ID)
		require.NoError(t, err)
		outside.Reason = "written outside"
		require.NoError(t, groups.UpdateIfVersion(ctx, outside, outside.Version))

		return errors.New("boom")
	})
	require.Error(t, err)

	stored, err := requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStateCancelled, stored.State)
	assert.Equal(t, int64(2), stored.Version)

	storedGroup, err := groups.FindByID(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "written outside", storedGroup.Reason)
	assert.Equal(t, int64(3), storedGroup.Version)

	events, err := store.NewProfileRepository().ListLog(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTransactionManager_RollbackRestoresOverwrittenValue(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tm := NewTransactionManager(store)
	requests := store.NewRequestRepository()

	req := newRequest("u1", entity.RequestStateMatching, baseTime)
	require.NoError(t, requests.Create(ctx, req))

	err := tm.Execute(ctx, func(f repository.RepositoryFactory) error {
		txRequests := f.NewRequestRepository()
		for range 2 {
			current, err := txRequests.FindByID(ctx, req.ID)
			require.NoError(t, err)
			current.Reason = "pending"
			require.NoError(t, txRequests.UpdateIfVersion(ctx, current, current.Version))
		}

		return errors.New("boom")
	})
	require.Error(t, err)

	stored, err := requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, stored.Reason)
}

func TestTransactionManager_Commits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := NewTransactionManager(store).Execute(ctx, func(f repository.RepositoryFactory) error {
		return f.NewGroupRepository().Create(ctx, &entity.GroupSession{ID: uuid.New(), Status: entity.GroupStatusForming, FormedAt: baseTime})
	})
	require.NoError(t, err)
	assert.Len(t, store.groups, 1)
}

func TestProposalRepository_FindDueRounds(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewProposalRepository()
	dueRound := uuid.New()
	openRound := uuid.New()

	require.NoError(t, repo.Create(ctx, &entity.NegotiationProposal{RoundID: dueRound, Response: entity.ProposalPending, ExpiresAt: baseTime, CreatedAt: baseTime}))
	require.NoError(t, repo.Create(ctx, &entity.NegotiationProposal{RoundID: dueRound, Response: entity.ProposalPending, ExpiresAt: baseTime, CreatedAt: baseTime}))
	require.NoError(t, repo.Create(ctx, &entity.NegotiationProposal{RoundID: openRound, Response: entity.ProposalPending, ExpiresAt: baseTime.Add(time.Minute), CreatedAt: baseTime}))

	rounds, err := repo.FindDueRounds(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dueRound}, rounds)
}

func TestProfileRepository_VersionAndCandidates(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewProfileRepository()

	profile, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), profile.Version)

	profile.CheckInOptOut = true
	require.NoError(t, repo.UpdateIfVersion(ctx, profile, 0))
	assert.ErrorIs(t, repo.UpdateIfVersion(ctx, profile, 0), repository.ErrVersionConflict)

	require.NoError(t, repo.AppendLog(ctx, &entity.InteractionEvent{UserID: "u2", Kind: entity.InteractionRequestCreated, CreatedAt: baseTime}))
	require.NoError(t, repo.AppendLog(ctx, &entity.InteractionEvent{UserID: "u1", Kind: entity.InteractionOptOut, CreatedAt: baseTime}))

	users, err := repo.FindCheckInCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, users)
}
