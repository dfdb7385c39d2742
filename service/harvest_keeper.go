package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// HarvestKeeper periodically harvests a vault and keeps a log of every attempt
type HarvestKeeper struct {
	vault      *Vault
	uowFactory UnitOfWorkFactory
	keeper     models.Address
	interval   time.Duration
	turnstile  *Turnstile
}

// KeeperOption customizes a HarvestKeeper
type KeeperOption func(*HarvestKeeper)

// WithKeeperTurnstile makes the keeper queue behind other callers of the same vault
func WithKeeperTurnstile(t *Turnstile) KeeperOption {
	return func(k *HarvestKeeper) {
		k.turnstile = t
	}
}

// NewHarvestKeeper creates a keeper that harvests as the keeper identity
func NewHarvestKeeper(vault *Vault, uowFactory UnitOfWorkFactory, keeper models.Address, interval time.Duration, opts ...KeeperOption) *HarvestKeeper {
	k := &HarvestKeeper{
		vault:      vault,
		uowFactory: uowFactory,
		keeper:     keeper,
		interval:   interval,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.turnstile == nil {
		k.turnstile = NewTurnstile(0)
	}
	return k
}

// RunOnce performs a single harvest attempt and stores its outcome.
// A paused vault or a failing module is recorded, not returned; only bookkeeping errors are.
func (k *HarvestKeeper) RunOnce(ctx context.Context) (*models.HarvestRun, error) {
	var run *models.HarvestRun
	err := k.turnstile.Do(ctx, func(ctx context.Context) error {
		var err error
		run, err = k.attempt(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (k *HarvestKeeper) attempt(ctx context.Context) (*models.HarvestRun, error) {
	run := &models.HarvestRun{
		VaultID: k.vault.ID(),
		RunAt:   k.vault.now(),
		Yield:   decimal.Zero,
	}

	summary, err := k.vault.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load vault summary: %w", err)
	}
	run.Beneficiary = summary.State.Beneficiary

	if summary.State.Paused {
		run.Outcome = models.HarvestOutcomePaused
	} else {
		realized, err := k.vault.Harvest(ctx, k.keeper)
		switch {
		case errors.Is(err, ErrPaused):
			run.Outcome = models.HarvestOutcomePaused
		case err != nil:
			run.Outcome = models.HarvestOutcomeFailed
			run.Error = err.Error()
		case realized.IsZero():
			run.Outcome = models.HarvestOutcomeNoYield
		default:
			run.Outcome = models.HarvestOutcomeDonated
			run.Yield = realized
		}
	}

	if err := k.store(ctx, run); err != nil {
		return nil, err
	}

	entry := log.WithFields(log.Fields{
		"vault":   run.VaultID,
		"outcome": run.Outcome,
		"yield":   run.Yield.String(),
	})
	if run.Outcome == models.HarvestOutcomeFailed {
		entry.WithField("error", run.Error).Warn("Scheduled harvest failed")
	} else {
		entry.Info("Scheduled harvest completed")
	}
	return run, nil
}

func (k *HarvestKeeper) store(ctx context.Context, run *models.HarvestRun) error {
	uow := k.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.HarvestRunRepository().Create(ctx, run); err != nil {
		return fmt.Errorf("failed to store harvest run: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Start runs the keeper in the background until ctx is cancelled or the returned stop
// function is called. stop blocks until the worker has exited.
func (k *HarvestKeeper) Start(ctx context.Context) func() {
	ticker := time.NewTicker(k.interval)
	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithFields(log.Fields{
			"vault":    k.vault.ID(),
			"interval": k.interval,
		}).Info("Harvest keeper started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Harvest keeper shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Harvest keeper shutting down (stop requested)...")
				return
			case <-ticker.C:
				if _, err := k.RunOnce(ctx); err != nil {
					log.WithError(err).Error("Error running scheduled harvest")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stopChan)
			wg.Wait()
		})
	}
}
