package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"givevault/events"
	"givevault/forwarder"
	"givevault/models"
	"givevault/service"
	"givevault/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_Bootstrap(t *testing.T) {
	h := newHarness(t)

	shares := h.deposit(alice, 1000)

	assert.True(t, shares.Equal(d(1000)))
	total, err := h.vault.TotalAssets(h.ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(d(1000)))

	summary := h.summary()
	assert.True(t, summary.State.IdleReserve.IsZero(), "idle reserve is swept into the module")
	assert.True(t, h.module.Invested().Equal(d(1000)))
	assert.True(t, h.balance(moduleAddr).Equal(d(1000)))
}

func TestScenario_YieldAndHarvest(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(50)))

	total, err := h.vault.TotalAssets(h.ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(d(1050)), "unharvested yield counts toward total assets")

	realized, err := h.vault.Harvest(h.ctx, admin)
	require.NoError(t, err)

	assert.True(t, realized.Equal(d(50)))
	assert.True(t, h.balance(charity).Equal(d(50)))
	donated, err := h.vault.TotalDonated(h.ctx)
	require.NoError(t, err)
	assert.True(t, donated.Equal(d(50)))
	assert.True(t, h.shares(alice).Equal(d(1000)))

	value, err := h.vault.ConvertToAssets(h.ctx, d(1000))
	require.NoError(t, err)
	assert.True(t, value.Equal(d(1000)))

	h.bus.Wait()
	harvests := h.events.ofType(events.EventTypeHarvest)
	require.Len(t, harvests, 1)
	assert.Equal(t, charity, harvests[0].(events.HarvestEvent).Beneficiary)
	forwarded := h.events.ofType(events.EventTypeDonationForwarded)
	require.Len(t, forwarded, 1)
	assert.Equal(t, vaultAddr, forwarded[0].(events.DonationForwardedEvent).Initiator)
}

func TestScenario_ProportionalMultiHolder(t *testing.T) {
	h := newHarness(t)
	sharesA := h.deposit(alice, 1000)
	sharesB := h.deposit(bob, 2000)

	assert.True(t, sharesA.Equal(d(1000)))
	assert.True(t, sharesB.Equal(d(2000)))

	require.NoError(t, h.module.Accrue(d(150)))
	realized, err := h.vault.Harvest(h.ctx, admin)
	require.NoError(t, err)
	assert.True(t, realized.Equal(d(150)))

	valueA, err := h.vault.ConvertToAssets(h.ctx, sharesA)
	require.NoError(t, err)
	valueB, err := h.vault.ConvertToAssets(h.ctx, sharesB)
	require.NoError(t, err)
	assert.True(t, valueA.Equal(d(1000)))
	assert.True(t, valueB.Equal(d(2000)))

	assets, err := h.vault.Redeem(h.ctx, alice, alice, alice, sharesA)
	require.NoError(t, err)
	assert.True(t, assets.Equal(d(1000)))
	assets, err = h.vault.Redeem(h.ctx, bob, bob, bob, sharesB)
	require.NoError(t, err)
	assert.True(t, assets.Equal(d(2000)))

	assert.True(t, h.balance(alice).Equal(d(1000)))
	assert.True(t, h.balance(bob).Equal(d(2000)))
	assert.True(t, h.balance(charity).Equal(d(150)))
}

func TestScenario_LiquidityShortfall(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	limit := d(300)
	h.module.CapDivest(&limit)

	before := h.snapshot()
	_, err := h.vault.Withdraw(h.ctx, alice, alice, alice, d(500))

	assert.ErrorIs(t, err, service.ErrInsufficientLiquidity)
	h.requireUnchanged(before)
	assert.True(t, h.module.Invested().Equal(d(1000)), "divested funds return to the module")
}

func TestScenario_ReentrantCallback(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, 10)

	var reentrantErr error
	calls := 0
	h.module.OnInvest(func(ctx context.Context) {
		calls++
		_, reentrantErr = h.vault.Deposit(ctx, bob, bob, d(10))
	})

	shares := h.deposit(alice, 1000)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, reentrantErr, service.ErrReentrantCall)
	assert.True(t, shares.Equal(d(1000)), "outer deposit completes")
	assert.True(t, h.shares(bob).IsZero())
	assert.True(t, h.balance(bob).Equal(d(10)))

	supply, err := h.vault.TotalSupply(h.ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(d(1000)))
}

func TestScenario_ReentrantCallbackWithFreshContext(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, 10)

	var reentrantErr error
	h.module.OnInvest(func(ctx context.Context) {
		// A callback that drops the operation's context is still a nested call
		_, reentrantErr = h.vault.Deposit(context.Background(), bob, bob, d(10))
	})

	h.fund(alice, 1000)
	done := make(chan error, 1)
	go func() {
		_, err := h.vault.Deposit(h.ctx, alice, alice, d(1000))
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("outer deposit did not complete")
	}

	assert.ErrorIs(t, reentrantErr, service.ErrReentrantCall)
	assert.True(t, h.shares(alice).Equal(d(1000)))
	assert.True(t, h.shares(bob).IsZero())
	assert.True(t, h.balance(bob).Equal(d(10)))
}

func TestScenario_ConcurrentCallersThroughTurnstile(t *testing.T) {
	h := newHarness(t)
	holders := []models.Address{alice, bob, "carol", "dave"}
	for _, holder := range holders {
		h.fund(holder, 100)
	}

	turnstile := service.NewTurnstile(time.Second)
	errs := make(chan error, len(holders))
	for _, holder := range holders {
		go func(holder models.Address) {
			errs <- turnstile.Do(h.ctx, func(ctx context.Context) error {
				_, err := h.vault.Deposit(ctx, holder, holder, d(100))
				return err
			})
		}(holder)
	}
	for range holders {
		require.NoError(t, <-errs)
	}

	supply, err := h.vault.TotalSupply(h.ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(d(400)))
	for _, holder := range holders {
		assert.True(t, h.shares(holder).Equal(d(100)), holder)
	}
}

func TestScenario_ReentrantReadDuringWithdraw(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)

	var queryErr error
	h.module.OnDivest(func(ctx context.Context) {
		_, queryErr = h.vault.TotalAssets(ctx)
	})

	_, err := h.vault.Withdraw(h.ctx, alice, alice, alice, d(400))
	require.NoError(t, err)
	assert.ErrorIs(t, queryErr, service.ErrReentrantCall)
}

func TestPauseExemption(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(10)))
	require.NoError(t, h.vault.SetPaused(h.ctx, admin, true))

	h.fund(bob, 100)
	_, err := h.vault.Deposit(h.ctx, bob, bob, d(100))
	assert.ErrorIs(t, err, service.ErrPaused)
	_, err = h.vault.Mint(h.ctx, bob, bob, d(100))
	assert.ErrorIs(t, err, service.ErrPaused)
	_, err = h.vault.Harvest(h.ctx, admin)
	assert.ErrorIs(t, err, service.ErrPaused)

	_, err = h.vault.Withdraw(h.ctx, alice, alice, alice, d(100))
	assert.NoError(t, err)
	_, err = h.vault.Redeem(h.ctx, alice, alice, alice, d(100))
	assert.NoError(t, err)

	limit, limited, err := h.vault.MaxDeposit(h.ctx, bob)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.True(t, limit.IsZero())

	require.NoError(t, h.vault.SetPaused(h.ctx, admin, false))
	_, limited, err = h.vault.MaxDeposit(h.ctx, bob)
	require.NoError(t, err)
	assert.False(t, limited)
	_, err = h.vault.Harvest(h.ctx, admin)
	assert.NoError(t, err)
}

func TestConversions_RejectInvalidInput(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)

	queries := map[string]func(decimal.Decimal) (decimal.Decimal, error){
		"convert to shares": func(x decimal.Decimal) (decimal.Decimal, error) { return h.vault.ConvertToShares(h.ctx, x) },
		"convert to assets": func(x decimal.Decimal) (decimal.Decimal, error) { return h.vault.ConvertToAssets(h.ctx, x) },
		"preview deposit":   func(x decimal.Decimal) (decimal.Decimal, error) { return h.vault.PreviewDeposit(h.ctx, x) },
		"preview mint":      func(x decimal.Decimal) (decimal.Decimal, error) { return h.vault.PreviewMint(h.ctx, x) },
		"preview withdraw":  func(x decimal.Decimal) (decimal.Decimal, error) { return h.vault.PreviewWithdraw(h.ctx, x) },
		"preview redeem":    func(x decimal.Decimal) (decimal.Decimal, error) { return h.vault.PreviewRedeem(h.ctx, x) },
	}

	for name, query := range queries {
		t.Run(name, func(t *testing.T) {
			_, err := query(d(-10))
			assert.ErrorIs(t, err, service.ErrNegativeAmount)

			_, err = query(decimal.RequireFromString("2.5"))
			assert.ErrorIs(t, err, service.ErrFractionalAmount)

			got, err := query(decimal.Zero)
			require.NoError(t, err)
			assert.True(t, got.IsZero())
		})
	}
}

func TestDeposit_Validation(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 100)

	_, err := h.vault.Deposit(h.ctx, alice, alice, decimal.Zero)
	assert.ErrorIs(t, err, service.ErrZeroAmount)
	_, err = h.vault.Deposit(h.ctx, alice, models.ZeroAddress, d(10))
	assert.ErrorIs(t, err, service.ErrZeroAddress)
	_, err = h.vault.Deposit(h.ctx, alice, alice, d(-10))
	assert.ErrorIs(t, err, service.ErrNegativeAmount)

	_, err = h.vault.Deposit(h.ctx, alice, alice, d(101))
	assert.ErrorIs(t, err, service.ErrTransferFailed)
	assert.True(t, h.balance(alice).Equal(d(100)))
}

func TestDeposit_FailedSweepRefunds(t *testing.T) {
	h := newHarness(t)
	h.deposit(bob, 500)
	h.fund(alice, 300)
	h.module.FailInvest(errors.New("pool closed"))

	before := h.snapshot()
	_, err := h.vault.Deposit(h.ctx, alice, alice, d(300))

	assert.ErrorIs(t, err, service.ErrSweepFailed)
	h.requireUnchanged(before)
	assert.True(t, h.balance(alice).Equal(d(300)))
}

func TestDeposit_PartialAcceptanceRefunds(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 300)
	limit := d(100)
	h.module.CapInvest(&limit)

	before := h.snapshot()
	_, err := h.vault.Deposit(h.ctx, alice, alice, d(300))

	assert.ErrorIs(t, err, service.ErrSweepFailed)
	h.requireUnchanged(before)
	assert.True(t, h.module.Invested().IsZero())
}

func TestDeposit_PricedBeforeTransfer(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(1000)))

	// Share price is 2 assets until the yield is harvested
	shares := h.deposit(bob, 1000)
	assert.True(t, shares.Equal(d(500)))
}

func TestDeposit_ZeroSharesRejected(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 10)
	require.NoError(t, h.module.Accrue(d(100)))
	h.fund(bob, 5)

	_, err := h.vault.Deposit(h.ctx, bob, bob, d(5))
	assert.ErrorIs(t, err, service.ErrZeroShares)
	assert.True(t, h.balance(bob).Equal(d(5)))
}

func TestMint(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 1000)

	assets, err := h.vault.Mint(h.ctx, alice, alice, d(400))
	require.NoError(t, err)
	assert.True(t, assets.Equal(d(400)))

	require.NoError(t, h.module.Accrue(d(40)))
	preview, err := h.vault.PreviewMint(h.ctx, d(100))
	require.NoError(t, err)
	assert.True(t, preview.Equal(d(110)))

	assets, err = h.vault.Mint(h.ctx, alice, alice, d(100))
	require.NoError(t, err)
	assert.True(t, assets.Equal(preview))
	assert.True(t, h.shares(alice).Equal(d(500)))
	assert.True(t, h.balance(alice).Equal(d(490)))
}

func TestWithdraw_RoundsSharesUp(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 3000)
	require.NoError(t, h.module.Accrue(d(150)))

	preview, err := h.vault.PreviewWithdraw(h.ctx, d(100))
	require.NoError(t, err)
	burned, err := h.vault.Withdraw(h.ctx, alice, alice, alice, d(100))
	require.NoError(t, err)

	assert.True(t, burned.Equal(d(96)))
	assert.True(t, burned.Equal(preview))
	assert.True(t, h.balance(alice).Equal(d(100)))
	assert.True(t, h.shares(alice).Equal(d(2904)))
}

func TestWithdraw_InsufficientShares(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 100)

	before := h.snapshot()
	_, err := h.vault.Withdraw(h.ctx, alice, alice, alice, d(101))
	assert.ErrorIs(t, err, service.ErrInsufficientShares)
	_, err = h.vault.Redeem(h.ctx, bob, bob, bob, d(1))
	assert.ErrorIs(t, err, service.ErrInsufficientShares)
	h.requireUnchanged(before)
}

func TestRedeem_FullExitRemovesPosition(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 100)
	h.deposit(bob, 50)

	_, err := h.vault.Redeem(h.ctx, alice, alice, alice, d(100))
	require.NoError(t, err)

	positions, err := h.vault.Positions(h.ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, bob, positions[0].Holder)
}

func TestAllowances(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)

	_, err := h.vault.Redeem(h.ctx, bob, bob, alice, d(100))
	assert.ErrorIs(t, err, service.ErrInsufficientAllowance)

	require.NoError(t, h.vault.Approve(h.ctx, alice, bob, d(300)))
	assets, err := h.vault.Redeem(h.ctx, bob, carol, alice, d(200))
	require.NoError(t, err)
	assert.True(t, assets.Equal(d(200)))
	assert.True(t, h.balance(carol).Equal(d(200)))

	remaining, err := h.vault.Allowance(h.ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(d(100)))

	_, err = h.vault.Withdraw(h.ctx, bob, bob, alice, d(101))
	assert.ErrorIs(t, err, service.ErrInsufficientAllowance)

	require.NoError(t, h.vault.Approve(h.ctx, alice, bob, decimal.Zero))
	remaining, err = h.vault.Allowance(h.ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, remaining.IsZero())
}

func TestTransferShares(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.vault.SetPaused(h.ctx, admin, true))

	require.NoError(t, h.vault.TransferShares(h.ctx, alice, bob, d(400)))

	assert.True(t, h.shares(alice).Equal(d(600)))
	assert.True(t, h.shares(bob).Equal(d(400)))
	supply, err := h.vault.TotalSupply(h.ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(d(1000)))

	err = h.vault.TransferShares(h.ctx, bob, alice, d(401))
	assert.ErrorIs(t, err, service.ErrInsufficientShares)
	assert.True(t, h.shares(bob).Equal(d(400)))
}

func TestAdmin_SetBeneficiary(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	school := models.Address("school")

	require.NoError(t, h.vault.SetBeneficiary(h.ctx, admin, school))
	require.NoError(t, h.module.Accrue(d(25)))
	_, err := h.vault.Harvest(h.ctx, admin)
	require.NoError(t, err)

	assert.True(t, h.balance(school).Equal(d(25)))
	assert.True(t, h.balance(charity).IsZero())
	assert.Equal(t, school, h.summary().State.Beneficiary)
}

func TestAdmin_SetForwarder(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	replacement := forwarder.NewRouter("router-2", h.book, h.bus)

	require.NoError(t, h.vault.SetForwarder(h.ctx, admin, replacement))
	require.NoError(t, h.module.Accrue(d(30)))
	_, err := h.vault.Harvest(h.ctx, admin)
	require.NoError(t, err)

	assert.True(t, replacement.Donated(charity).Equal(d(30)))
	assert.True(t, h.router.Donated(charity).IsZero())
	assert.Equal(t, models.Address("router-2"), h.summary().State.Forwarder)
}

func TestAdmin_SetModuleMigratesCapital(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(20)))
	next := strategy.NewSimulated(h.book, "module-2", vaultAddr)

	require.NoError(t, h.vault.SetModule(h.ctx, admin, next))

	assert.True(t, h.module.Invested().IsZero())
	assert.True(t, h.module.Pending().IsZero())
	assert.True(t, next.Invested().Equal(d(1020)))
	summary := h.summary()
	assert.Equal(t, models.Address("module-2"), summary.State.Module)
	assert.True(t, summary.TotalAssets.Equal(d(1020)))

	h.deposit(bob, 51)
	assert.True(t, next.Invested().Equal(d(1071)))

	h.bus.Wait()
	changes := h.events.ofType(events.EventTypeModuleChanged)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].(events.ModuleChangedEvent).Migrated.Equal(d(1020)))
}

func TestAdmin_SetModuleBlockedByShortDivest(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	limit := d(10)
	h.module.CapDivest(&limit)
	next := strategy.NewSimulated(h.book, "module-2", vaultAddr)

	before := h.snapshot()
	err := h.vault.SetModule(h.ctx, admin, next)

	assert.ErrorIs(t, err, service.ErrInsufficientLiquidity)
	h.requireUnchanged(before)
	assert.Equal(t, moduleAddr, h.summary().State.Module)
	assert.True(t, h.module.Invested().Equal(d(1000)))
}

func TestAdmin_EmergencyDivest(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.vault.SetPaused(h.ctx, admin, true))

	returned, err := h.vault.EmergencyDivest(h.ctx, admin, d(400))
	require.NoError(t, err)
	assert.True(t, returned.Equal(d(400)))

	summary := h.summary()
	assert.True(t, summary.State.IdleReserve.Equal(d(400)))
	assert.True(t, summary.TotalAssets.Equal(d(1000)))
	assert.True(t, summary.State.ShareSupply.Equal(d(1000)))

	// Withdrawals are served from the idle reserve first
	_, err = h.vault.Withdraw(h.ctx, alice, alice, alice, d(300))
	require.NoError(t, err)
	assert.True(t, h.module.Invested().Equal(d(600)))
}

func TestRecords(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 100)
	h.deposit(bob, 200)
	_, err := h.vault.Withdraw(h.ctx, alice, alice, alice, d(50))
	require.NoError(t, err)

	all, err := h.vault.Records(h.ctx, models.ZeroAddress, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.RecordTypeWithdraw, all[0].Type)

	mine, err := h.vault.Records(h.ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "50", mine[0].Metadata["assets"])

	h.bus.Wait()
	assert.Len(t, h.events.ofType(events.EventTypeDeposit), 2)
	assert.Len(t, h.events.ofType(events.EventTypeWithdraw), 1)
}

func TestFailedOperationPublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.fund(alice, 100)
	h.module.FailInvest(errors.New("pool closed"))

	_, err := h.vault.Deposit(h.ctx, alice, alice, d(100))
	require.Error(t, err)

	h.bus.Wait()
	assert.Empty(t, h.events.ofType(events.EventTypeDeposit))
	records, err := h.vault.Records(h.ctx, models.ZeroAddress, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMaxQueries(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(100)))

	maxWithdraw, err := h.vault.MaxWithdraw(h.ctx, alice)
	require.NoError(t, err)
	assert.True(t, maxWithdraw.Equal(d(1100)))

	maxRedeem, err := h.vault.MaxRedeem(h.ctx, alice)
	require.NoError(t, err)
	assert.True(t, maxRedeem.Equal(d(1000)))

	maxWithdraw, err = h.vault.MaxWithdraw(h.ctx, bob)
	require.NoError(t, err)
	assert.True(t, maxWithdraw.IsZero())

	shares, err := h.vault.PreviewDeposit(h.ctx, d(110))
	require.NoError(t, err)
	assert.True(t, shares.Equal(d(100)))
	assets, err := h.vault.PreviewRedeem(h.ctx, d(100))
	require.NoError(t, err)
	assert.True(t, assets.Equal(d(110)))
}

func TestVault_ReloadsPersistedState(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 700)

	reopened, err := service.NewVault(h.ctx, service.VaultConfig{
		ID: vaultID, Address: vaultAddr, Admin: admin, Beneficiary: charity,
	}, h.book, h.module, h.router, h.factory)
	require.NoError(t, err)

	shares, err := reopened.BalanceOf(h.ctx, alice)
	require.NoError(t, err)
	assert.True(t, shares.Equal(d(700)))

	other := strategy.NewSimulated(h.book, "module-x", vaultAddr)
	_, err = service.NewVault(h.ctx, service.VaultConfig{
		ID: vaultID, Address: vaultAddr, Admin: admin, Beneficiary: charity,
	}, h.book, other, h.router, h.factory)
	assert.ErrorIs(t, err, service.ErrBindingMismatch)
}
