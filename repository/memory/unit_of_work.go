package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"givevault/events"
	"givevault/models"
	"givevault/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// unitOfWork implements service.UnitOfWork over snapshots of a Store
type unitOfWork struct {
	store            *Store
	ctx              context.Context
	touched          map[string]*partition
	transactionalBus *events.TransactionalBus
	active           bool
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	u.ctx = ctx
	u.touched = make(map[string]*partition)
	u.active = true
	return nil
}

// Commit publishes every partition the unit of work read or wrote
func (u *unitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	if err := u.store.install(u.touched); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.active = false
	u.touched = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}
	return nil
}

// Rollback drops the snapshots
func (u *unitOfWork) Rollback() error {
	if !u.active {
		return nil // Nothing to rollback
	}
	u.active = false
	u.touched = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}
	return nil
}

func (u *unitOfWork) partition(vaultID string) *partition {
	if !u.active {
		panic("unit of work not started - call Begin() first")
	}
	p, ok := u.touched[vaultID]
	if !ok {
		p = u.store.snapshot(vaultID)
		u.touched[vaultID] = p
	}
	return p
}

func (u *unitOfWork) VaultRepository() service.VaultRepository {
	return &vaultRepository{uow: u}
}

func (u *unitOfWork) PositionRepository() service.PositionRepository {
	return &positionRepository{uow: u}
}

func (u *unitOfWork) AllowanceRepository() service.AllowanceRepository {
	return &allowanceRepository{uow: u}
}

func (u *unitOfWork) RecordRepository() service.RecordRepository {
	return &recordRepository{uow: u}
}

func (u *unitOfWork) HarvestRunRepository() service.HarvestRunRepository {
	return &harvestRunRepository{uow: u}
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}

type vaultRepository struct {
	uow *unitOfWork
}

func (r *vaultRepository) Get(ctx context.Context, vaultID string) (*models.VaultState, error) {
	return r.uow.partition(vaultID).state.Clone(), nil
}

func (r *vaultRepository) Create(ctx context.Context, state *models.VaultState) error {
	p := r.uow.partition(state.ID)
	if p.state != nil {
		return fmt.Errorf("vault %s: %w", state.ID, service.ErrDuplicateKey)
	}
	p.state = state.Clone()
	return nil
}

func (r *vaultRepository) Update(ctx context.Context, state *models.VaultState) error {
	p := r.uow.partition(state.ID)
	if p.state == nil {
		return fmt.Errorf("vault %s: %w", state.ID, service.ErrNotFound)
	}
	p.state = state.Clone()
	return nil
}

type positionRepository struct {
	uow *unitOfWork
}

func (r *positionRepository) GetShares(ctx context.Context, vaultID string, holder models.Address) (decimal.Decimal, error) {
	if pos, ok := r.uow.partition(vaultID).positions[holder]; ok {
		return pos.Shares, nil
	}
	return decimal.Zero, nil
}

func (r *positionRepository) AddShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error {
	p := r.uow.partition(vaultID)
	pos, ok := p.positions[holder]
	if !ok {
		pos = &models.SharePosition{VaultID: vaultID, Holder: holder, Shares: decimal.Zero}
		p.positions[holder] = pos
	}
	pos.Shares = pos.Shares.Add(shares)
	pos.UpdatedAt = time.Now()
	return nil
}

func (r *positionRepository) DeductShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error {
	p := r.uow.partition(vaultID)
	pos, ok := p.positions[holder]
	if !ok || pos.Shares.LessThan(shares) {
		have := decimal.Zero
		if ok {
			have = pos.Shares
		}
		return fmt.Errorf("%w: %s has %s, needs %s", service.ErrInsufficientShares, holder, have, shares)
	}

	pos.Shares = pos.Shares.Sub(shares)
	pos.UpdatedAt = time.Now()
	if pos.Shares.IsZero() {
		delete(p.positions, holder)
	}
	return nil
}

func (r *positionRepository) GetAll(ctx context.Context, vaultID string) ([]*models.SharePosition, error) {
	p := r.uow.partition(vaultID)
	out := make([]*models.SharePosition, 0, len(p.positions))
	for _, pos := range p.positions {
		cp := *pos
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Holder < out[j].Holder
	})
	return out, nil
}

func (r *positionRepository) SumShares(ctx context.Context, vaultID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, pos := range r.uow.partition(vaultID).positions {
		sum = sum.Add(pos.Shares)
	}
	return sum, nil
}

type allowanceRepository struct {
	uow *unitOfWork
}

func (r *allowanceRepository) Get(ctx context.Context, vaultID string, owner, spender models.Address) (decimal.Decimal, error) {
	if shares, ok := r.uow.partition(vaultID).allowances[allowanceKey{owner, spender}]; ok {
		return shares, nil
	}
	return decimal.Zero, nil
}

func (r *allowanceRepository) Set(ctx context.Context, vaultID string, owner, spender models.Address, shares decimal.Decimal) error {
	p := r.uow.partition(vaultID)
	key := allowanceKey{owner, spender}
	if shares.IsZero() {
		delete(p.allowances, key)
		return nil
	}
	p.allowances[key] = shares
	return nil
}

type recordRepository struct {
	uow *unitOfWork
}

func (r *recordRepository) Append(ctx context.Context, record *models.LedgerRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	p := r.uow.partition(record.VaultID)
	cp := *record
	p.records = append(p.records, &cp)
	return nil
}

func (r *recordRepository) GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.LedgerRecord, error) {
	return newestRecords(r.uow.partition(vaultID).records, limit, func(*models.LedgerRecord) bool { return true }), nil
}

func (r *recordRepository) GetByActor(ctx context.Context, vaultID string, actor models.Address, limit int) ([]*models.LedgerRecord, error) {
	return newestRecords(r.uow.partition(vaultID).records, limit, func(rec *models.LedgerRecord) bool {
		return rec.Actor == actor
	}), nil
}

// newestRecords walks the append order backwards. A non-positive limit returns everything.
func newestRecords(records []*models.LedgerRecord, limit int, keep func(*models.LedgerRecord) bool) []*models.LedgerRecord {
	out := make([]*models.LedgerRecord, 0)
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if keep(records[i]) {
			cp := *records[i]
			out = append(out, &cp)
		}
	}
	return out
}

type harvestRunRepository struct {
	uow *unitOfWork
}

func (r *harvestRunRepository) Create(ctx context.Context, run *models.HarvestRun) error {
	run.ID = r.uow.store.nextRunID.Add(1)
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	p := r.uow.partition(run.VaultID)
	cp := *run
	p.runs = append(p.runs, &cp)
	return nil
}

func (r *harvestRunRepository) GetLatest(ctx context.Context, vaultID string) (*models.HarvestRun, error) {
	runs := r.uow.partition(vaultID).runs
	if len(runs) == 0 {
		return nil, nil
	}
	cp := *runs[len(runs)-1]
	return &cp, nil
}

func (r *harvestRunRepository) GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.HarvestRun, error) {
	runs := r.uow.partition(vaultID).runs
	out := make([]*models.HarvestRun, 0)
	for i := len(runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *runs[i]
		out = append(out, &cp)
	}
	return out, nil
}
