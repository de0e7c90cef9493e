package repository

import (
	"context"
	"testing"

	"fundledger/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlacementRepository_PrincipalAndInterest(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewPlacementRepository(testDB.DB)
	ctx := context.Background()

	start := testutil.Date("2026-01-01")
	placement := testutil.CreateTestPlacement("VCB", "10000", start)
	require.NoError(t, repo.Create(ctx, placement))
	require.NotZero(t, placement.ID)

	got, err := repo.GetByID(ctx, placement.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "VCB", got.Counterparty)
	assert.True(t, got.YieldRate.Equal(testutil.Amount("8.5")))
	assert.Equal(t, testutil.Date("2026-06-30"), got.MaturityDate.UTC())
	assert.True(t, got.AccruedInterest.IsZero())

	require.NoError(t, repo.AddAccruedInterest(ctx, placement.ID, testutil.Amount("2.32876712")))
	require.NoError(t, repo.AddAccruedInterest(ctx, placement.ID, testutil.Amount("2.32876712")))
	require.NoError(t, repo.DecreasePrincipal(ctx, placement.ID, testutil.Amount("2500.25")))

	got, err = repo.GetByID(ctx, placement.ID)
	require.NoError(t, err)
	assert.True(t, got.Principal.Equal(testutil.Amount("7499.75")))
	assert.True(t, got.AccruedInterest.Equal(testutil.Amount("4.65753424")))

	principal, accrued, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.True(t, principal.Equal(testutil.Amount("7499.75")))
	assert.True(t, accrued.Equal(testutil.Amount("4.65753424")))

	assert.Error(t, repo.DecreasePrincipal(ctx, 424242, testutil.Amount("1")))
}

func TestPlacementRepository_DeleteExhausted(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewPlacementRepository(testDB.DB)
	ctx := context.Background()
	start := testutil.Date("2026-01-01")

	keep := testutil.CreateTestPlacement("VCB", "500", start)
	require.NoError(t, repo.Create(ctx, keep))
	spent := testutil.CreateTestPlacement("BIDV", "300", start)
	require.NoError(t, repo.Create(ctx, spent))

	require.NoError(t, repo.AddAccruedInterest(ctx, spent.ID, testutil.Amount("0.5")))
	require.NoError(t, repo.DecreasePrincipal(ctx, spent.ID, testutil.Amount("300")))

	deleted, err := repo.DeleteExhausted(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, spent.ID, deleted[0].ID)
	assert.True(t, deleted[0].AccruedInterest.Equal(testutil.Amount("0.5")))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)

	gone, err := repo.GetByID(ctx, spent.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestOwnershipRepository_UpsertAndDecrease(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	placements := NewPlacementRepository(testDB.DB)
	repo := NewOwnershipRepository(testDB.DB)
	ctx := context.Background()

	placement := testutil.CreateTestPlacement("VCB", "1500", testutil.Date("2026-01-01"))
	require.NoError(t, placements.Create(ctx, placement))

	none, err := repo.Get(ctx, "alice", placement.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.AddPrincipal(ctx, "alice", placement.ID, testutil.Amount("1000")))
	require.NoError(t, repo.AddPrincipal(ctx, "alice", placement.ID, testutil.Amount("250")))
	require.NoError(t, repo.AddPrincipal(ctx, "bob", placement.ID, testutil.Amount("250")))

	alice, err := repo.Get(ctx, "alice", placement.ID)
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.True(t, alice.PrincipalOwned.Equal(testutil.Amount("1250")))

	owners, err := repo.ListByPlacement(ctx, placement.ID)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, "alice", owners[0].UserID)

	total, err := repo.SumPrincipal(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(testutil.Amount("1500")))

	require.NoError(t, repo.DecreasePrincipal(ctx, "bob", placement.ID, testutil.Amount("250")))
	bob, err := repo.Get(ctx, "bob", placement.ID)
	require.NoError(t, err)
	require.NotNil(t, bob, "zeroed ownership rows are kept")
	assert.True(t, bob.PrincipalOwned.IsZero())

	// The check constraint refuses a negative balance
	assert.Error(t, repo.DecreasePrincipal(ctx, "bob", placement.ID, testutil.Amount("0.01")))
	assert.Error(t, repo.DecreasePrincipal(ctx, "nobody", placement.ID, testutil.Amount("1")))

	views, err := repo.ListWithPlacements(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "VCB", views[0].Counterparty)
	assert.True(t, views[0].YieldRate.Equal(testutil.Amount("8.5")))
}
