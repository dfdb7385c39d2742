package service

import (
	"context"

	"givevault/models"

	"github.com/shopspring/decimal"
)

// Queries never mutate: they run under the guard so they observe a settled ledger, and
// their unit of work is always rolled back.

// Summary returns the persisted state together with live module figures
func (v *Vault) Summary(ctx context.Context) (*models.VaultSummary, error) {
	var summary *models.VaultSummary
	err := v.view(ctx, "summary", func(ctx context.Context, op *ledgerOp) error {
		m, managed, err := v.math(ctx, op.state)
		if err != nil {
			return err
		}
		summary = &models.VaultSummary{
			State:         op.state.Clone(),
			ManagedAssets: managed,
			TotalAssets:   m.totalAssets,
		}
		return nil
	})
	return summary, err
}

// TotalAssets is idle reserve plus what the module reports, unharvested yield included
func (v *Vault) TotalAssets(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := v.view(ctx, "total_assets", func(ctx context.Context, op *ledgerOp) error {
		m, _, err := v.math(ctx, op.state)
		total = m.totalAssets
		return err
	})
	return total, err
}

// TotalSupply returns outstanding shares
func (v *Vault) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	var supply decimal.Decimal
	err := v.view(ctx, "total_supply", func(ctx context.Context, op *ledgerOp) error {
		supply = op.state.ShareSupply
		return nil
	})
	return supply, err
}

// TotalDonated returns the cumulative yield forwarded to beneficiaries
func (v *Vault) TotalDonated(ctx context.Context) (decimal.Decimal, error) {
	var donated decimal.Decimal
	err := v.view(ctx, "total_donated", func(ctx context.Context, op *ledgerOp) error {
		donated = op.state.TotalDonated
		return nil
	})
	return donated, err
}

// BalanceOf returns holder's shares
func (v *Vault) BalanceOf(ctx context.Context, holder models.Address) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.view(ctx, "balance_of", func(ctx context.Context, op *ledgerOp) error {
		var err error
		shares, err = op.uow.PositionRepository().GetShares(ctx, v.id, holder)
		return err
	})
	return shares, err
}

// Allowance returns how many of owner's shares spender may still withdraw or redeem
func (v *Vault) Allowance(ctx context.Context, owner, spender models.Address) (decimal.Decimal, error) {
	var allowed decimal.Decimal
	err := v.view(ctx, "allowance", func(ctx context.Context, op *ledgerOp) error {
		var err error
		allowed, err = op.uow.AllowanceRepository().Get(ctx, v.id, owner, spender)
		return err
	})
	return allowed, err
}

// Positions lists every holder with a non-zero balance
func (v *Vault) Positions(ctx context.Context) ([]*models.SharePosition, error) {
	var positions []*models.SharePosition
	err := v.view(ctx, "positions", func(ctx context.Context, op *ledgerOp) error {
		var err error
		positions, err = op.uow.PositionRepository().GetAll(ctx, v.id)
		return err
	})
	return positions, err
}

// Records returns the newest ledger records first. A zero actor returns every actor's.
func (v *Vault) Records(ctx context.Context, actor models.Address, limit int) ([]*models.LedgerRecord, error) {
	var records []*models.LedgerRecord
	err := v.view(ctx, "records", func(ctx context.Context, op *ledgerOp) error {
		var err error
		if actor.IsZero() {
			records, err = op.uow.RecordRepository().GetByVault(ctx, v.id, limit)
		} else {
			records, err = op.uow.RecordRepository().GetByActor(ctx, v.id, actor, limit)
		}
		return err
	})
	return records, err
}

// HarvestRuns returns the newest keeper runs first
func (v *Vault) HarvestRuns(ctx context.Context, limit int) ([]*models.HarvestRun, error) {
	var runs []*models.HarvestRun
	err := v.view(ctx, "harvest_runs", func(ctx context.Context, op *ledgerOp) error {
		var err error
		runs, err = op.uow.HarvestRunRepository().GetByVault(ctx, v.id, limit)
		return err
	})
	return runs, err
}

// convert validates amount and runs fn against a fresh share math snapshot
func (v *Vault) convert(ctx context.Context, name string, amount decimal.Decimal, fn func(m shareMath, op *ledgerOp) error) error {
	if err := checkQuantity(amount); err != nil {
		return err
	}
	return v.view(ctx, name, func(ctx context.Context, op *ledgerOp) error {
		m, _, err := v.math(ctx, op.state)
		if err != nil {
			return err
		}
		return fn(m, op)
	})
}

// ConvertToShares returns the shares assets would mint, rounded down
func (v *Vault) ConvertToShares(ctx context.Context, assets decimal.Decimal) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.convert(ctx, "convert_to_shares", assets, func(m shareMath, _ *ledgerOp) error {
		var err error
		shares, err = m.toShares(assets)
		return err
	})
	return shares, err
}

// ConvertToAssets returns the assets shares are worth, rounded down
func (v *Vault) ConvertToAssets(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error) {
	var assets decimal.Decimal
	err := v.convert(ctx, "convert_to_assets", shares, func(m shareMath, _ *ledgerOp) error {
		assets = m.toAssets(shares)
		return nil
	})
	return assets, err
}

// PreviewDeposit equals ConvertToShares
func (v *Vault) PreviewDeposit(ctx context.Context, assets decimal.Decimal) (decimal.Decimal, error) {
	return v.ConvertToShares(ctx, assets)
}

// PreviewMint returns the assets a mint of shares would pull, rounded up
func (v *Vault) PreviewMint(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error) {
	var assets decimal.Decimal
	err := v.convert(ctx, "preview_mint", shares, func(m shareMath, _ *ledgerOp) error {
		var err error
		assets, err = m.mintCost(shares)
		return err
	})
	return assets, err
}

// PreviewWithdraw returns the shares a withdrawal of assets would burn, rounded up
func (v *Vault) PreviewWithdraw(ctx context.Context, assets decimal.Decimal) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.convert(ctx, "preview_withdraw", assets, func(m shareMath, _ *ledgerOp) error {
		var err error
		shares, err = m.withdrawCost(assets)
		return err
	})
	return shares, err
}

// PreviewRedeem equals ConvertToAssets
func (v *Vault) PreviewRedeem(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error) {
	return v.ConvertToAssets(ctx, shares)
}

// MaxDeposit reports the deposit limit for receiver. limited is false when deposits are
// unbounded; a paused vault reports a limit of zero.
func (v *Vault) MaxDeposit(ctx context.Context, receiver models.Address) (amount decimal.Decimal, limited bool, err error) {
	err = v.view(ctx, "max_deposit", func(ctx context.Context, op *ledgerOp) error {
		limited = op.state.Paused
		return nil
	})
	return decimal.Zero, limited, err
}

// MaxMint mirrors MaxDeposit in shares
func (v *Vault) MaxMint(ctx context.Context, receiver models.Address) (decimal.Decimal, bool, error) {
	return v.MaxDeposit(ctx, receiver)
}

// MaxWithdraw is owner's redeemable value capped by the assets the vault can reach
func (v *Vault) MaxWithdraw(ctx context.Context, owner models.Address) (decimal.Decimal, error) {
	var limit decimal.Decimal
	err := v.convert(ctx, "max_withdraw", decimal.Zero, func(m shareMath, op *ledgerOp) error {
		balance, err := op.uow.PositionRepository().GetShares(ctx, v.id, owner)
		if err != nil {
			return err
		}
		limit = decimal.Min(m.toAssets(balance), m.totalAssets)
		return nil
	})
	return limit, err
}

// MaxRedeem is owner's share balance
func (v *Vault) MaxRedeem(ctx context.Context, owner models.Address) (decimal.Decimal, error) {
	return v.BalanceOf(ctx, owner)
}
