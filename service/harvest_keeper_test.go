package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"givevault/models"
	"givevault/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const keeperAddr = models.Address("keeper")

func TestHarvestKeeper_RunOnce(t *testing.T) {
	t.Run("donates accrued yield", func(t *testing.T) {
		h := newHarness(t)
		h.deposit(alice, 1000)
		require.NoError(t, h.module.Accrue(d(40)))
		keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, time.Hour)

		run, err := keeper.RunOnce(h.ctx)
		require.NoError(t, err)

		assert.Equal(t, models.HarvestOutcomeDonated, run.Outcome)
		assert.True(t, run.Yield.Equal(d(40)))
		assert.Equal(t, charity, run.Beneficiary)
		assert.True(t, h.balance(charity).Equal(d(40)))

		runs, err := h.vault.HarvestRuns(h.ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)

		records, err := h.vault.Records(h.ctx, keeperAddr, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, models.RecordTypeHarvest, records[0].Type)
	})

	t.Run("no yield", func(t *testing.T) {
		h := newHarness(t)
		h.deposit(alice, 1000)
		keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, time.Hour)

		run, err := keeper.RunOnce(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, models.HarvestOutcomeNoYield, run.Outcome)
		assert.True(t, run.Yield.IsZero())
	})

	t.Run("skips while paused", func(t *testing.T) {
		h := newHarness(t)
		h.deposit(alice, 1000)
		require.NoError(t, h.module.Accrue(d(40)))
		require.NoError(t, h.vault.SetPaused(h.ctx, admin, true))
		keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, time.Hour)

		run, err := keeper.RunOnce(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, models.HarvestOutcomePaused, run.Outcome)
		assert.True(t, h.module.Pending().Equal(d(40)))
	})

	t.Run("records module failure", func(t *testing.T) {
		h := newHarness(t)
		h.deposit(alice, 1000)
		h.module.FailHarvest(errors.New("rpc timeout"))
		keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, time.Hour)

		run, err := keeper.RunOnce(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, models.HarvestOutcomeFailed, run.Outcome)
		assert.Contains(t, run.Error, "rpc timeout")

		runs, err := h.vault.HarvestRuns(h.ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, models.HarvestOutcomeFailed, runs[0].Outcome)
	})
}

func TestHarvestKeeper_QueuesBehindSharedTurnstile(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(40)))

	turnstile := service.NewTurnstile(0)
	keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, time.Hour, service.WithKeeperTurnstile(turnstile))

	entered := make(chan struct{})
	leave := make(chan struct{})
	go func() {
		_ = turnstile.Do(h.ctx, func(ctx context.Context) error {
			close(entered)
			<-leave
			return nil
		})
	}()
	<-entered

	type result struct {
		run *models.HarvestRun
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := keeper.RunOnce(h.ctx)
		done <- result{run, err}
	}()

	select {
	case <-done:
		t.Fatal("keeper ran while another caller held the turnstile")
	case <-time.After(50 * time.Millisecond):
	}

	close(leave)
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, models.HarvestOutcomeDonated, res.run.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("keeper never got a turn")
	}
}

func TestHarvestKeeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.deposit(alice, 1000)
	require.NoError(t, h.module.Accrue(d(25)))
	keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, 10*time.Millisecond)

	stop := keeper.Start(h.ctx)
	require.Eventually(t, func() bool {
		return h.balance(charity).Equal(d(25))
	}, 2*time.Second, 5*time.Millisecond)
	stop()
	stop()

	h.bus.Wait()
	runs, err := h.vault.HarvestRuns(h.ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestHarvestKeeper_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	keeper := service.NewHarvestKeeper(h.vault, h.factory, keeperAddr, time.Hour)

	ctx, cancel := context.WithCancel(h.ctx)
	stop := keeper.Start(ctx)
	cancel()
	stop()
}
