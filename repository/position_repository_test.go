package repository

import (
	"context"
	"testing"

	"givevault/models"
	"givevault/repository/testutil"
	"givevault/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	ctx := context.Background()
	require.NoError(t, NewVaultRepository(testDB.DB).Create(ctx, testutil.CreateTestVault("v1")))
	repo := NewPositionRepository(testDB.DB)

	t.Run("unknown holder has zero shares", func(t *testing.T) {
		shares, err := repo.GetShares(ctx, "v1", "nobody")
		require.NoError(t, err)
		assert.True(t, shares.IsZero())
	})

	t.Run("credit accumulates", func(t *testing.T) {
		require.NoError(t, repo.AddShares(ctx, "v1", "alice", decimal.NewFromInt(600)))
		require.NoError(t, repo.AddShares(ctx, "v1", "alice", decimal.NewFromInt(400)))

		shares, err := repo.GetShares(ctx, "v1", "alice")
		require.NoError(t, err)
		assert.True(t, shares.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("debit", func(t *testing.T) {
		require.NoError(t, repo.DeductShares(ctx, "v1", "alice", decimal.NewFromInt(300)))

		shares, err := repo.GetShares(ctx, "v1", "alice")
		require.NoError(t, err)
		assert.True(t, shares.Equal(decimal.NewFromInt(700)))
	})

	t.Run("overdraft rejected", func(t *testing.T) {
		err := repo.DeductShares(ctx, "v1", "alice", decimal.NewFromInt(701))
		assert.ErrorIs(t, err, service.ErrInsufficientShares)

		err = repo.DeductShares(ctx, "v1", "nobody", decimal.NewFromInt(1))
		assert.ErrorIs(t, err, service.ErrInsufficientShares)
	})

	t.Run("exact debit removes entry", func(t *testing.T) {
		require.NoError(t, repo.AddShares(ctx, "v1", "bob", decimal.NewFromInt(50)))
		require.NoError(t, repo.DeductShares(ctx, "v1", "bob", decimal.NewFromInt(50)))

		positions, err := repo.GetAll(ctx, "v1")
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, models.Address("alice"), positions[0].Holder)
	})

	t.Run("sum", func(t *testing.T) {
		require.NoError(t, repo.AddShares(ctx, "v1", "carol", decimal.NewFromInt(5)))

		total, err := repo.SumShares(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(705)))

		empty, err := repo.SumShares(ctx, "other")
		require.NoError(t, err)
		assert.True(t, empty.IsZero())
	})
}

func TestAllowanceRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	ctx := context.Background()
	require.NoError(t, NewVaultRepository(testDB.DB).Create(ctx, testutil.CreateTestVault("v1")))
	repo := NewAllowanceRepository(testDB.DB)

	shares, err := repo.Get(ctx, "v1", "alice", "bob")
	require.NoError(t, err)
	assert.True(t, shares.IsZero())

	require.NoError(t, repo.Set(ctx, "v1", "alice", "bob", decimal.NewFromInt(100)))
	require.NoError(t, repo.Set(ctx, "v1", "alice", "bob", decimal.NewFromInt(30)))
	shares, err = repo.Get(ctx, "v1", "alice", "bob")
	require.NoError(t, err)
	assert.True(t, shares.Equal(decimal.NewFromInt(30)), "set overwrites")

	reverse, err := repo.Get(ctx, "v1", "bob", "alice")
	require.NoError(t, err)
	assert.True(t, reverse.IsZero(), "allowances are directional")

	require.NoError(t, repo.Set(ctx, "v1", "alice", "bob", decimal.Zero))
	shares, err = repo.Get(ctx, "v1", "alice", "bob")
	require.NoError(t, err)
	assert.True(t, shares.IsZero())

	assert.ErrorIs(t, repo.Set(ctx, "v1", "alice", "bob", decimal.NewFromInt(-1)), service.ErrNegativeAmount)
}
