package service

import (
	"context"
	"fmt"

	"givevault/events"
	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Deposit pulls assets from caller, credits shares to receiver and sweeps the idle reserve
// into the yield module. Shares are priced against total assets before the transfer.
func (v *Vault) Deposit(ctx context.Context, caller, receiver models.Address, assets decimal.Decimal) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.run(ctx, "deposit", func(ctx context.Context, op *ledgerOp) error {
		if err := checkAmount(assets); err != nil {
			return err
		}
		if caller.IsZero() || receiver.IsZero() {
			return ErrZeroAddress
		}
		if op.state.Paused {
			return ErrPaused
		}

		m, _, err := v.math(ctx, op.state)
		if err != nil {
			return err
		}
		shares, err = m.toShares(assets)
		if err != nil {
			return err
		}
		if shares.IsZero() {
			return fmt.Errorf("%w: %s assets", ErrZeroShares, assets)
		}

		return v.settleDeposit(ctx, op, caller, receiver, assets, shares)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return shares, nil
}

// Mint credits exactly shares to receiver, pulling the rounded-up asset cost from caller.
func (v *Vault) Mint(ctx context.Context, caller, receiver models.Address, shares decimal.Decimal) (decimal.Decimal, error) {
	var assets decimal.Decimal
	err := v.run(ctx, "mint", func(ctx context.Context, op *ledgerOp) error {
		if err := checkAmount(shares); err != nil {
			return err
		}
		if caller.IsZero() || receiver.IsZero() {
			return ErrZeroAddress
		}
		if op.state.Paused {
			return ErrPaused
		}

		m, _, err := v.math(ctx, op.state)
		if err != nil {
			return err
		}
		assets, err = m.mintCost(shares)
		if err != nil {
			return err
		}

		return v.settleDeposit(ctx, op, caller, receiver, assets, shares)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return assets, nil
}

func (v *Vault) settleDeposit(ctx context.Context, op *ledgerOp, caller, receiver models.Address, assets, shares decimal.Decimal) error {
	if err := v.token.Transfer(ctx, caller, v.self, assets); err != nil {
		return fmt.Errorf("%w: pull %s from %s: %w", ErrTransferFailed, assets, caller, err)
	}
	op.onFailure("refund depositor", func(ctx context.Context) error {
		return v.token.Transfer(ctx, v.self, caller, assets)
	})
	op.state.IdleReserve = op.state.IdleReserve.Add(assets)

	if err := op.uow.PositionRepository().AddShares(ctx, v.id, receiver, shares); err != nil {
		return fmt.Errorf("failed to credit shares to %s: %w", receiver, err)
	}
	op.state.ShareSupply = op.state.ShareSupply.Add(shares)

	if err := v.sweep(ctx, op, v.module); err != nil {
		return err
	}
	if err := v.saveState(ctx, op); err != nil {
		return err
	}

	record := v.newRecord(models.RecordTypeDeposit, caller, map[string]any{
		"owner":  receiver.String(),
		"assets": assets.String(),
		"shares": shares.String(),
	})
	event := events.DepositEvent{
		VaultID: v.id,
		Caller:  caller,
		Owner:   receiver,
		Assets:  assets,
		Shares:  shares,
	}
	if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"vault":    v.id,
		"caller":   caller,
		"receiver": receiver,
		"assets":   assets.String(),
		"shares":   shares.String(),
	}).Debug("Deposit settled")
	return nil
}

// Withdraw releases exactly assets to receiver, burning the rounded-up share cost from
// owner. Never gated by pause.
func (v *Vault) Withdraw(ctx context.Context, caller, receiver, owner models.Address, assets decimal.Decimal) (decimal.Decimal, error) {
	var shares decimal.Decimal
	err := v.run(ctx, "withdraw", func(ctx context.Context, op *ledgerOp) error {
		if err := checkAmount(assets); err != nil {
			return err
		}
		if caller.IsZero() || receiver.IsZero() || owner.IsZero() {
			return ErrZeroAddress
		}

		m, _, err := v.math(ctx, op.state)
		if err != nil {
			return err
		}
		shares, err = m.withdrawCost(assets)
		if err != nil {
			return err
		}

		return v.settleWithdraw(ctx, op, caller, receiver, owner, assets, shares)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return shares, nil
}

// Redeem burns exactly shares from owner and releases their rounded-down asset value to
// receiver. Never gated by pause.
func (v *Vault) Redeem(ctx context.Context, caller, receiver, owner models.Address, shares decimal.Decimal) (decimal.Decimal, error) {
	var assets decimal.Decimal
	err := v.run(ctx, "redeem", func(ctx context.Context, op *ledgerOp) error {
		if err := checkAmount(shares); err != nil {
			return err
		}
		if caller.IsZero() || receiver.IsZero() || owner.IsZero() {
			return ErrZeroAddress
		}

		m, _, err := v.math(ctx, op.state)
		if err != nil {
			return err
		}
		assets = m.toAssets(shares)
		if assets.IsZero() {
			return fmt.Errorf("%w: %s shares redeem for nothing", ErrZeroAmount, shares)
		}

		return v.settleWithdraw(ctx, op, caller, receiver, owner, assets, shares)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return assets, nil
}

func (v *Vault) settleWithdraw(ctx context.Context, op *ledgerOp, caller, receiver, owner models.Address, assets, shares decimal.Decimal) error {
	positions := op.uow.PositionRepository()

	balance, err := positions.GetShares(ctx, v.id, owner)
	if err != nil {
		return fmt.Errorf("failed to get shares of %s: %w", owner, err)
	}
	if balance.LessThan(shares) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientShares, balance, shares)
	}

	if caller != owner {
		if err := v.spendAllowance(ctx, op, owner, caller, shares); err != nil {
			return err
		}
	}

	if err := v.ensureLiquidity(ctx, op, assets); err != nil {
		return err
	}

	if err := positions.DeductShares(ctx, v.id, owner, shares); err != nil {
		return fmt.Errorf("failed to burn shares of %s: %w", owner, err)
	}
	op.state.ShareSupply = op.state.ShareSupply.Sub(shares)
	op.state.IdleReserve = op.state.IdleReserve.Sub(assets)

	if err := v.saveState(ctx, op); err != nil {
		return err
	}

	record := v.newRecord(models.RecordTypeWithdraw, caller, map[string]any{
		"receiver": receiver.String(),
		"owner":    owner.String(),
		"assets":   assets.String(),
		"shares":   shares.String(),
	})
	event := events.WithdrawEvent{
		VaultID:  v.id,
		Caller:   caller,
		Receiver: receiver,
		Owner:    owner,
		Assets:   assets,
		Shares:   shares,
	}
	if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
		return err
	}

	opName := op.name
	op.payAfterCommit(&payout{
		name: "withdrawal",
		fields: log.Fields{
			"owner":    owner,
			"receiver": receiver,
			"assets":   assets.String(),
			"shares":   shares.String(),
		},
		send: func(ctx context.Context) error {
			if err := v.token.Transfer(ctx, v.self, receiver, assets); err != nil {
				return fmt.Errorf("%w: pay %s to %s: %w", ErrTransferFailed, assets, receiver, err)
			}
			log.WithFields(log.Fields{
				"vault":    v.id,
				"caller":   caller,
				"owner":    owner,
				"receiver": receiver,
				"assets":   assets.String(),
				"shares":   shares.String(),
			}).Debug("Withdrawal settled")
			return nil
		},
		reverse: func(ctx context.Context, op *ledgerOp, cause error) error {
			return v.reverseWithdraw(ctx, op, opName, caller, receiver, owner, assets, shares, cause)
		},
	})
	return nil
}

// reverseWithdraw books an unpaid withdrawal back: the owner gets the burned shares and any
// spent allowance back, and the assets stay in the idle reserve.
func (v *Vault) reverseWithdraw(ctx context.Context, op *ledgerOp, opName string, caller, receiver, owner models.Address, assets, shares decimal.Decimal, cause error) error {
	if err := op.uow.PositionRepository().AddShares(ctx, v.id, owner, shares); err != nil {
		return fmt.Errorf("failed to restore shares of %s: %w", owner, err)
	}
	if caller != owner {
		allowances := op.uow.AllowanceRepository()
		allowed, err := allowances.Get(ctx, v.id, owner, caller)
		if err != nil {
			return fmt.Errorf("failed to get allowance: %w", err)
		}
		if err := allowances.Set(ctx, v.id, owner, caller, allowed.Add(shares)); err != nil {
			return fmt.Errorf("failed to restore allowance: %w", err)
		}
	}
	op.state.ShareSupply = op.state.ShareSupply.Add(shares)
	op.state.IdleReserve = op.state.IdleReserve.Add(assets)
	if err := v.saveState(ctx, op); err != nil {
		return err
	}

	record := v.newRecord(models.RecordTypePayoutReverted, caller, map[string]any{
		"operation": opName,
		"recipient": receiver.String(),
		"owner":     owner.String(),
		"assets":    assets.String(),
		"shares":    shares.String(),
		"reason":    cause.Error(),
	})
	event := events.PayoutRevertedEvent{
		VaultID:   v.id,
		Operation: opName,
		Recipient: receiver,
		Amount:    assets,
		Reason:    cause.Error(),
	}
	return RecordLedgerChange(ctx, op.uow, record, event)
}

func (v *Vault) spendAllowance(ctx context.Context, op *ledgerOp, owner, spender models.Address, shares decimal.Decimal) error {
	allowances := op.uow.AllowanceRepository()

	allowed, err := allowances.Get(ctx, v.id, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to get allowance: %w", err)
	}
	if allowed.LessThan(shares) {
		return fmt.Errorf("%w: %s may spend %s, need %s", ErrInsufficientAllowance, spender, allowed, shares)
	}
	if err := allowances.Set(ctx, v.id, owner, spender, allowed.Sub(shares)); err != nil {
		return fmt.Errorf("failed to spend allowance: %w", err)
	}
	return nil
}

// Harvest pulls realized yield out of the yield module and forwards all of it to the
// beneficiary. Share supply and balances are never touched. Zero yield is a no-op.
func (v *Vault) Harvest(ctx context.Context, caller models.Address) (decimal.Decimal, error) {
	var realized decimal.Decimal
	err := v.run(ctx, "harvest", func(ctx context.Context, op *ledgerOp) error {
		if op.state.Paused {
			return ErrPaused
		}

		var err error
		realized, err = v.module.Harvest(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHarvestFailed, err)
		}
		if realized.Sign() < 0 {
			return fmt.Errorf("%w: module reported negative yield %s", ErrHarvestFailed, realized)
		}
		if realized.IsZero() {
			return nil
		}

		// Yield goes back to where it was accruing if the donation never commits
		op.onFailure("return unforwarded yield", v.investExactly(v.module, realized))

		beneficiary := op.state.Beneficiary
		op.state.TotalDonated = op.state.TotalDonated.Add(realized)
		if err := v.saveState(ctx, op); err != nil {
			return err
		}

		record := v.newRecord(models.RecordTypeHarvest, caller, map[string]any{
			"yield":       realized.String(),
			"beneficiary": beneficiary.String(),
		})
		event := events.HarvestEvent{
			VaultID:     v.id,
			YieldAmount: realized,
			Beneficiary: beneficiary,
		}
		if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
			return err
		}

		asset := op.state.Asset
		op.payAfterCommit(&payout{
			name: "donation",
			fields: log.Fields{
				"beneficiary": beneficiary,
				"yield":       realized.String(),
			},
			send: func(ctx context.Context) error {
				if err := v.forwarder.Forward(ctx, v.self, asset, beneficiary, realized); err != nil {
					return fmt.Errorf("%w: %w", ErrForwardingFailed, err)
				}
				if v.metrics != nil {
					v.metrics.RecordDonation(ctx, realized)
				}
				log.WithFields(log.Fields{
					"vault":       v.id,
					"yield":       realized.String(),
					"beneficiary": beneficiary,
				}).Info("Harvested yield forwarded to beneficiary")
				return nil
			},
			reverse: func(ctx context.Context, op *ledgerOp, cause error) error {
				return v.reverseHarvest(ctx, op, caller, beneficiary, realized, cause)
			},
		})
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return realized, nil
}

// reverseHarvest books an unforwarded donation back. The yield returns to the module where
// it was accruing; if the module refuses it, it stays in the idle reserve.
func (v *Vault) reverseHarvest(ctx context.Context, op *ledgerOp, caller, beneficiary models.Address, realized decimal.Decimal, cause error) error {
	if err := v.investExactly(v.module, realized)(ctx); err != nil {
		log.WithFields(log.Fields{
			"vault": v.id,
			"yield": realized.String(),
			"error": err,
		}).Warn("Could not return unforwarded yield to the module, keeping it idle")
		op.state.IdleReserve = op.state.IdleReserve.Add(realized)
	} else {
		op.onFailure("divest returned yield", v.divestExactly(v.module, realized))
	}

	op.state.TotalDonated = op.state.TotalDonated.Sub(realized)
	if err := v.saveState(ctx, op); err != nil {
		return err
	}

	record := v.newRecord(models.RecordTypePayoutReverted, caller, map[string]any{
		"operation": "harvest",
		"recipient": beneficiary.String(),
		"yield":     realized.String(),
		"reason":    cause.Error(),
	})
	event := events.PayoutRevertedEvent{
		VaultID:   v.id,
		Operation: "harvest",
		Recipient: beneficiary,
		Amount:    realized,
		Reason:    cause.Error(),
	}
	return RecordLedgerChange(ctx, op.uow, record, event)
}

// Approve lets spender withdraw or redeem up to shares on owner's behalf. Zero revokes.
func (v *Vault) Approve(ctx context.Context, owner, spender models.Address, shares decimal.Decimal) error {
	return v.run(ctx, "approve", func(ctx context.Context, op *ledgerOp) error {
		if owner.IsZero() || spender.IsZero() {
			return ErrZeroAddress
		}
		if !shares.IsZero() {
			if err := checkAmount(shares); err != nil {
				return err
			}
		}

		if err := op.uow.AllowanceRepository().Set(ctx, v.id, owner, spender, shares); err != nil {
			return fmt.Errorf("failed to set allowance: %w", err)
		}

		record := v.newRecord(models.RecordTypeApproval, owner, map[string]any{
			"spender": spender.String(),
			"shares":  shares.String(),
		})
		event := events.ApprovalEvent{
			VaultID: v.id,
			Owner:   owner,
			Spender: spender,
			Shares:  shares,
		}
		return RecordLedgerChange(ctx, op.uow, record, event)
	})
}

// TransferShares moves shares between holders. Supply is unchanged.
func (v *Vault) TransferShares(ctx context.Context, from, to models.Address, shares decimal.Decimal) error {
	return v.run(ctx, "transfer", func(ctx context.Context, op *ledgerOp) error {
		if err := checkAmount(shares); err != nil {
			return err
		}
		if from.IsZero() || to.IsZero() {
			return ErrZeroAddress
		}

		positions := op.uow.PositionRepository()
		if err := positions.DeductShares(ctx, v.id, from, shares); err != nil {
			return fmt.Errorf("failed to debit shares of %s: %w", from, err)
		}
		if err := positions.AddShares(ctx, v.id, to, shares); err != nil {
			return fmt.Errorf("failed to credit shares to %s: %w", to, err)
		}

		record := v.newRecord(models.RecordTypeShareTransfer, from, map[string]any{
			"to":     to.String(),
			"shares": shares.String(),
		})
		event := events.ShareTransferEvent{
			VaultID: v.id,
			From:    from,
			To:      to,
			Shares:  shares,
		}
		return RecordLedgerChange(ctx, op.uow, record, event)
	})
}
