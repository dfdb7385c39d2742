package repository

import (
	"context"
	"errors"
	"fmt"

	"givevault/database"
	"givevault/events"
	"givevault/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	vaultRepo        service.VaultRepository
	positionRepo     service.PositionRepository
	allowanceRepo    service.AllowanceRepository
	recordRepo       service.RecordRepository
	harvestRunRepo   service.HarvestRunRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.vaultRepo = newVaultRepositoryWithTx(tx)
	u.positionRepo = newPositionRepositoryWithTx(tx)
	u.allowanceRepo = newAllowanceRepositoryWithTx(tx)
	u.recordRepo = newRecordRepositoryWithTx(tx)
	u.harvestRunRepo = newHarvestRunRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes the events recorded in it
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	u.tx = nil
	if err != nil {
		u.transactionalBus.Discard()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.transactionalBus.Flush(u.ctx)
	return nil
}

// Rollback rolls back the transaction and drops its pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	// The caller's context may already be cancelled; the rollback must still reach the server
	err := u.tx.Rollback(context.WithoutCancel(u.ctx))
	u.tx = nil
	u.transactionalBus.Discard()
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

// VaultRepository returns the vault repository for this unit of work
func (u *unitOfWork) VaultRepository() service.VaultRepository {
	if u.vaultRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.vaultRepo
}

// PositionRepository returns the share position repository for this unit of work
func (u *unitOfWork) PositionRepository() service.PositionRepository {
	if u.positionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.positionRepo
}

// AllowanceRepository returns the allowance repository for this unit of work
func (u *unitOfWork) AllowanceRepository() service.AllowanceRepository {
	if u.allowanceRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.allowanceRepo
}

// RecordRepository returns the ledger record repository for this unit of work
func (u *unitOfWork) RecordRepository() service.RecordRepository {
	if u.recordRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.recordRepo
}

// HarvestRunRepository returns the harvest run repository for this unit of work
func (u *unitOfWork) HarvestRunRepository() service.HarvestRunRepository {
	if u.harvestRunRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.harvestRunRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
