package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"givevault/asset"
	"givevault/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	vaultAddr  = models.Address("vault")
	moduleAddr = models.Address("module")
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func balance(t *testing.T, book *asset.Book, holder models.Address) decimal.Decimal {
	t.Helper()
	bal, err := book.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	return bal
}

func TestSimulated_Lifecycle(t *testing.T) {
	ctx := context.Background()
	book := asset.NewBook("usdc")
	require.NoError(t, book.Issue(vaultAddr, d(1000)))
	sim := NewSimulated(book, moduleAddr, vaultAddr)

	accepted, err := sim.Invest(ctx, d(1000))
	require.NoError(t, err)
	assert.True(t, accepted.Equal(d(1000)))
	assert.True(t, balance(t, book, moduleAddr).Equal(d(1000)))

	require.NoError(t, sim.Accrue(d(50)))
	managed, err := sim.TotalManagedAssets(ctx)
	require.NoError(t, err)
	assert.True(t, managed.Equal(d(1050)))

	realized, err := sim.Harvest(ctx)
	require.NoError(t, err)
	assert.True(t, realized.Equal(d(50)))
	assert.True(t, balance(t, book, vaultAddr).Equal(d(50)))
	assert.True(t, sim.Pending().IsZero())

	returned, err := sim.Divest(ctx, d(400))
	require.NoError(t, err)
	assert.True(t, returned.Equal(d(400)))
	assert.True(t, sim.Invested().Equal(d(600)))
}

func TestSimulated_FailureModes(t *testing.T) {
	ctx := context.Background()
	book := asset.NewBook("usdc")
	require.NoError(t, book.Issue(vaultAddr, d(1000)))
	sim := NewSimulated(book, moduleAddr, vaultAddr)

	t.Run("accept cap", func(t *testing.T) {
		limit := d(300)
		sim.CapInvest(&limit)
		defer sim.CapInvest(nil)

		accepted, err := sim.Invest(ctx, d(500))
		require.NoError(t, err)
		assert.True(t, accepted.Equal(d(300)))
	})

	t.Run("divest cap", func(t *testing.T) {
		limit := d(100)
		sim.CapDivest(&limit)
		defer sim.CapDivest(nil)

		returned, err := sim.Divest(ctx, d(250))
		require.NoError(t, err)
		assert.True(t, returned.Equal(d(100)))
	})

	t.Run("divest never exceeds holdings", func(t *testing.T) {
		returned, err := sim.Divest(ctx, d(10_000))
		require.NoError(t, err)
		assert.True(t, returned.Equal(d(200)))
		assert.True(t, sim.Invested().IsZero())
	})

	t.Run("harvest error", func(t *testing.T) {
		boom := errors.New("oracle down")
		sim.FailHarvest(boom)
		defer sim.FailHarvest(nil)

		_, err := sim.Harvest(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invest hook receives caller context", func(t *testing.T) {
		type key struct{}
		var seen any
		sim.OnInvest(func(ctx context.Context) { seen = ctx.Value(key{}) })
		defer sim.OnInvest(nil)

		_, err := sim.Invest(context.WithValue(ctx, key{}, "marker"), d(1))
		require.NoError(t, err)
		assert.Equal(t, "marker", seen)
	})
}

func TestFixedRate_Accrual(t *testing.T) {
	ctx := context.Background()
	book := asset.NewBook("usdc")
	require.NoError(t, book.Issue(vaultAddr, d(1_000_000)))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	module, err := NewFixedRate(book, moduleAddr, vaultAddr, 500, clock)
	require.NoError(t, err)

	_, err = module.Invest(ctx, d(1_000_000))
	require.NoError(t, err)

	// Half a year at 5% on 1,000,000
	now = now.Add(365 * 24 * time.Hour / 2)
	managed, err := module.TotalManagedAssets(ctx)
	require.NoError(t, err)
	assert.True(t, managed.Equal(d(1_025_000)), "got %s", managed)

	realized, err := module.Harvest(ctx)
	require.NoError(t, err)
	assert.True(t, realized.Equal(d(25_000)))
	assert.True(t, balance(t, book, vaultAddr).Equal(d(25_000)))

	managed, err = module.TotalManagedAssets(ctx)
	require.NoError(t, err)
	assert.True(t, managed.Equal(d(1_000_000)))
}

func TestFixedRate_CarriesRemainder(t *testing.T) {
	ctx := context.Background()
	book := asset.NewBook("usdc")
	require.NoError(t, book.Issue(vaultAddr, d(1000)))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	module, err := NewFixedRate(book, moduleAddr, vaultAddr, 10_000, func() time.Time { return now })
	require.NoError(t, err)
	_, err = module.Invest(ctx, d(1000))
	require.NoError(t, err)

	// 100% a year on 1000 is one unit every 8h45m36s; many short checkpoints must add up
	step := time.Hour
	for i := 0; i < 24*365; i++ {
		now = now.Add(step)
		_, err := module.TotalManagedAssets(ctx)
		require.NoError(t, err)
	}

	managed, err := module.TotalManagedAssets(ctx)
	require.NoError(t, err)
	assert.True(t, managed.Equal(d(2000)), "got %s", managed)
}

func TestFixedRate_RejectsNegativeRate(t *testing.T) {
	_, err := NewFixedRate(asset.NewBook("usdc"), moduleAddr, vaultAddr, -1, nil)
	assert.Error(t, err)
}

func TestFixedRate_RestoreFromBook(t *testing.T) {
	ctx := context.Background()
	book := asset.NewBook("usdc")
	require.NoError(t, book.Issue(vaultAddr, d(1_000_000)))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	first, err := NewFixedRate(book, moduleAddr, vaultAddr, 500, clock)
	require.NoError(t, err)
	_, err = first.Invest(ctx, d(400_000))
	require.NoError(t, err)

	// A new process sees only the book
	restarted, err := NewFixedRate(book, moduleAddr, vaultAddr, 500, clock)
	require.NoError(t, err)
	require.NoError(t, restarted.Restore(ctx))

	managed, err := restarted.TotalManagedAssets(ctx)
	require.NoError(t, err)
	assert.True(t, managed.Equal(d(400_000)), "got %s", managed)

	now = now.Add(365 * 24 * time.Hour)
	realized, err := restarted.Harvest(ctx)
	require.NoError(t, err)
	assert.True(t, realized.Equal(d(20_000)), "interest accrues on restored principal, got %s", realized)

	returned, err := restarted.Divest(ctx, d(400_000))
	require.NoError(t, err)
	assert.True(t, returned.Equal(d(400_000)))
	assert.True(t, balance(t, book, moduleAddr).IsZero())
}
