package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// VaultConfig binds a vault to its identities
type VaultConfig struct {
	ID          string
	Address     models.Address
	Admin       models.Address
	Beneficiary models.Address
}

// Vault is the share ledger. Every public method runs as one guarded, all-or-nothing
// operation: state changes go through a unit of work and external effects are undone by
// compensations when the operation fails.
//
// A call made while another operation is in flight fails with ErrReentrantCall. Callers
// that share a vault across goroutines serialize through a Turnstile.
type Vault struct {
	id         string
	self       models.Address
	token      AssetToken
	uowFactory UnitOfWorkFactory
	module     YieldModule
	forwarder  DonationForwarder
	metrics    Metrics
	guard      *reentrancyGuard
	now        func() time.Time
}

// Option customizes a Vault
type Option func(*Vault)

// WithMetrics attaches an operation metrics recorder
func WithMetrics(m Metrics) Option {
	return func(v *Vault) {
		v.metrics = m
	}
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// NewVault binds the ledger to its collaborators. The vault row is created on first use;
// an existing row must match the supplied asset, module and forwarder.
func NewVault(ctx context.Context, cfg VaultConfig, token AssetToken, module YieldModule, forwarder DonationForwarder, uowFactory UnitOfWorkFactory, opts ...Option) (*Vault, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("vault id is required")
	}
	if token == nil {
		return nil, fmt.Errorf("asset token is required")
	}
	if module == nil {
		return nil, ErrNilModule
	}
	if forwarder == nil {
		return nil, ErrNilForwarder
	}
	if cfg.Address.IsZero() || cfg.Admin.IsZero() || cfg.Beneficiary.IsZero() ||
		module.Address().IsZero() || forwarder.Address().IsZero() {
		return nil, ErrZeroAddress
	}
	if module.Asset() != token.ID() {
		return nil, fmt.Errorf("%w: module manages %q, vault holds %q", ErrAssetMismatch, module.Asset(), token.ID())
	}

	v := &Vault{
		id:         cfg.ID,
		self:       cfg.Address,
		token:      token,
		uowFactory: uowFactory,
		module:     module,
		forwarder:  forwarder,
		guard:      newReentrancyGuard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.bootstrap(ctx, cfg); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vault) bootstrap(ctx context.Context, cfg VaultConfig) error {
	uow := v.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	existing, err := uow.VaultRepository().Get(ctx, v.id)
	if err != nil {
		return fmt.Errorf("failed to load vault %s: %w", v.id, err)
	}

	if existing != nil {
		switch {
		case existing.Asset != v.token.ID():
			return fmt.Errorf("%w: vault %s holds %q, token is %q", ErrBindingMismatch, v.id, existing.Asset, v.token.ID())
		case existing.Address != v.self:
			return fmt.Errorf("%w: vault %s is bound to address %s", ErrBindingMismatch, v.id, existing.Address)
		case existing.Module != v.module.Address():
			return fmt.Errorf("%w: vault %s is bound to module %s", ErrBindingMismatch, v.id, existing.Module)
		case existing.Forwarder != v.forwarder.Address():
			return fmt.Errorf("%w: vault %s is bound to forwarder %s", ErrBindingMismatch, v.id, existing.Forwarder)
		}
		log.WithFields(log.Fields{
			"vault":  v.id,
			"supply": existing.ShareSupply.String(),
		}).Info("Loaded existing vault")
		return nil
	}

	now := v.now()
	state := &models.VaultState{
		ID:           v.id,
		Asset:        v.token.ID(),
		Address:      v.self,
		Admin:        cfg.Admin,
		Module:       v.module.Address(),
		Forwarder:    v.forwarder.Address(),
		Beneficiary:  cfg.Beneficiary,
		ShareSupply:  decimal.Zero,
		IdleReserve:  decimal.Zero,
		TotalDonated: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uow.VaultRepository().Create(ctx, state); err != nil {
		return fmt.Errorf("failed to create vault %s: %w", v.id, err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"vault":       v.id,
		"asset":       state.Asset,
		"module":      state.Module,
		"forwarder":   state.Forwarder,
		"beneficiary": state.Beneficiary,
	}).Info("Created vault")
	return nil
}

// ID returns the vault identifier
func (v *Vault) ID() string {
	return v.id
}

// Address returns the vault's own identity on the asset book
func (v *Vault) Address() models.Address {
	return v.self
}

// compensation undoes one external effect of a failing operation
type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// payout is the one irreversible transfer of an operation. It is sent only after the
// ledger change has committed; if it fails, reverse books the change back in a new unit
// of work.
type payout struct {
	name    string
	fields  log.Fields
	send    func(ctx context.Context) error
	reverse func(ctx context.Context, op *ledgerOp, cause error) error
}

// ledgerOp is the working set of one guarded operation
type ledgerOp struct {
	name        string
	uow         UnitOfWork
	state       *models.VaultState
	undo        []compensation
	afterCommit []func()
	payout      *payout
}

// onFailure registers an undo step. Steps run in reverse registration order.
func (op *ledgerOp) onFailure(name string, fn func(ctx context.Context) error) {
	op.undo = append(op.undo, compensation{name: name, fn: fn})
}

// payAfterCommit schedules p to run once the unit of work has committed
func (op *ledgerOp) payAfterCommit(p *payout) {
	op.payout = p
}

func (op *ledgerOp) compensate(ctx context.Context, cause error) {
	ctx = context.WithoutCancel(ctx)
	for i := len(op.undo) - 1; i >= 0; i-- {
		step := op.undo[i]
		log.WithFields(log.Fields{
			"operation":    op.name,
			"compensation": step.name,
			"cause":        cause,
		}).Warn("Compensating failed ledger operation")

		if err := step.fn(ctx); err != nil {
			log.WithFields(log.Fields{
				"operation":    op.name,
				"compensation": step.name,
				"error":        err,
			}).Error("Compensation failed")
		}
	}
	op.undo = nil
}

// run executes fn as one mutating operation
func (v *Vault) run(ctx context.Context, name string, fn func(ctx context.Context, op *ledgerOp) error) (err error) {
	release, err := v.guard.enter(name)
	if err != nil {
		return err
	}
	defer release()
	defer func() {
		if v.metrics != nil {
			v.metrics.RecordOperation(ctx, name, err)
		}
	}()

	uow := v.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	state, err := uow.VaultRepository().Get(ctx, v.id)
	if err != nil {
		return fmt.Errorf("failed to load vault %s: %w", v.id, err)
	}
	if state == nil {
		return ErrVaultNotFound
	}

	op := &ledgerOp{name: name, uow: uow, state: state}
	if err := fn(ctx, op); err != nil {
		op.compensate(ctx, err)
		return err
	}

	if err := uow.Commit(); err != nil {
		op.compensate(ctx, err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, hook := range op.afterCommit {
		hook()
	}

	if op.payout != nil {
		return v.pay(ctx, name, op.payout)
	}
	return nil
}

// pay sends a committed operation's payout. A failed payout is booked back by its reversal
// while the guard is still held.
func (v *Vault) pay(ctx context.Context, name string, p *payout) error {
	ctx = context.WithoutCancel(ctx)

	sendErr := p.send(ctx)
	if sendErr == nil {
		return nil
	}

	fields := log.Fields{
		"vault":     v.id,
		"operation": name,
		"payout":    p.name,
		"error":     sendErr,
	}
	for k, val := range p.fields {
		fields[k] = val
	}
	log.WithFields(fields).Error("Payout failed after commit, reversing ledger change")

	if err := v.reverse(ctx, name, p, sendErr); err != nil {
		fields["reversal_error"] = err
		log.WithFields(fields).Error("Payout reversal failed, ledger and asset book diverged")
		return fmt.Errorf("%w (reversal failed: %v)", sendErr, err)
	}
	return sendErr
}

func (v *Vault) reverse(ctx context.Context, name string, p *payout, cause error) error {
	uow := v.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	state, err := uow.VaultRepository().Get(ctx, v.id)
	if err != nil {
		return fmt.Errorf("failed to load vault %s: %w", v.id, err)
	}
	if state == nil {
		return ErrVaultNotFound
	}

	op := &ledgerOp{name: name + " reversal", uow: uow, state: state}
	if err := p.reverse(ctx, op, cause); err != nil {
		op.compensate(ctx, err)
		return err
	}
	if err := uow.Commit(); err != nil {
		op.compensate(ctx, err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// view executes fn read-only; its unit of work is always rolled back
func (v *Vault) view(ctx context.Context, name string, fn func(ctx context.Context, op *ledgerOp) error) error {
	release, err := v.guard.enter(name)
	if err != nil {
		return err
	}
	defer release()

	uow := v.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	state, err := uow.VaultRepository().Get(ctx, v.id)
	if err != nil {
		return fmt.Errorf("failed to load vault %s: %w", v.id, err)
	}
	if state == nil {
		return ErrVaultNotFound
	}
	return fn(ctx, &ledgerOp{name: name, uow: uow, state: state})
}

// math snapshots supply and total assets. Managed assets are read live from the module.
func (v *Vault) math(ctx context.Context, state *models.VaultState) (shareMath, decimal.Decimal, error) {
	managed, err := v.managedAssets(ctx, v.module)
	if err != nil {
		return shareMath{}, decimal.Zero, err
	}
	return shareMath{
		supply:      state.ShareSupply,
		totalAssets: state.IdleReserve.Add(managed),
	}, managed, nil
}

func (v *Vault) managedAssets(ctx context.Context, module YieldModule) (decimal.Decimal, error) {
	managed, err := module.TotalManagedAssets(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query managed assets: %w", err)
	}
	if managed.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("yield module reported negative managed assets %s", managed)
	}
	return managed, nil
}

// sweep routes the whole idle reserve into module. The module must accept exactly what it
// is offered.
func (v *Vault) sweep(ctx context.Context, op *ledgerOp, module YieldModule) error {
	offered := op.state.IdleReserve
	if offered.Sign() <= 0 {
		return nil
	}

	accepted, err := module.Invest(ctx, offered)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSweepFailed, err)
	}
	if !accepted.Equal(offered) {
		if accepted.Sign() > 0 {
			op.onFailure("unwind partial sweep", v.divestExactly(module, accepted))
		}
		return fmt.Errorf("%w: offered %s, accepted %s", ErrSweepFailed, offered, accepted)
	}

	op.onFailure("divest swept reserve", v.divestExactly(module, accepted))
	op.state.IdleReserve = offered.Sub(accepted)
	return nil
}

// ensureLiquidity divests the shortfall between the idle reserve and need. The module must
// return at least the shortfall; partial withdrawals are refused.
func (v *Vault) ensureLiquidity(ctx context.Context, op *ledgerOp, need decimal.Decimal) error {
	idle := op.state.IdleReserve
	if idle.GreaterThanOrEqual(need) {
		return nil
	}

	shortfall := need.Sub(idle)
	returned, err := v.module.Divest(ctx, shortfall)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}
	if returned.Sign() > 0 {
		op.onFailure("reinvest divested assets", v.investExactly(v.module, returned))
	}
	if returned.LessThan(shortfall) {
		return fmt.Errorf("%w: needed %s, module returned %s", ErrInsufficientLiquidity, shortfall, returned)
	}

	op.state.IdleReserve = idle.Add(returned)
	return nil
}

func (v *Vault) divestExactly(module YieldModule, amount decimal.Decimal) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		returned, err := module.Divest(ctx, amount)
		if err != nil {
			return err
		}
		if !returned.Equal(amount) {
			return fmt.Errorf("module returned %s of %s", returned, amount)
		}
		return nil
	}
}

func (v *Vault) investExactly(module YieldModule, amount decimal.Decimal) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		accepted, err := module.Invest(ctx, amount)
		if err != nil {
			return err
		}
		if !accepted.Equal(amount) {
			return fmt.Errorf("module accepted %s of %s", accepted, amount)
		}
		return nil
	}
}

func (v *Vault) saveState(ctx context.Context, op *ledgerOp) error {
	op.state.UpdatedAt = v.now()
	if err := op.uow.VaultRepository().Update(ctx, op.state); err != nil {
		return fmt.Errorf("failed to update vault %s: %w", v.id, err)
	}
	return nil
}

func (v *Vault) authorize(state *models.VaultState, caller models.Address) error {
	if caller.IsZero() || caller != state.Admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// IsReentrant reports whether err is a rejected callback
func IsReentrant(err error) bool {
	return errors.Is(err, ErrReentrantCall)
}
