package service

import (
	"context"
	"fmt"

	"givevault/events"
	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SetBeneficiary points future harvests at a new beneficiary
func (v *Vault) SetBeneficiary(ctx context.Context, caller, beneficiary models.Address) error {
	return v.run(ctx, "set_beneficiary", func(ctx context.Context, op *ledgerOp) error {
		if err := v.authorize(op.state, caller); err != nil {
			return err
		}
		if beneficiary.IsZero() {
			return ErrZeroAddress
		}

		previous := op.state.Beneficiary
		op.state.Beneficiary = beneficiary
		if err := v.saveState(ctx, op); err != nil {
			return err
		}

		record := v.newRecord(models.RecordTypeBeneficiaryChanged, caller, map[string]any{
			"previous": previous.String(),
			"current":  beneficiary.String(),
		})
		event := events.BeneficiaryChangedEvent{VaultID: v.id, Previous: previous, Current: beneficiary}
		return RecordLedgerChange(ctx, op.uow, record, event)
	})
}

// SetForwarder replaces the donation forwarder used by harvest
func (v *Vault) SetForwarder(ctx context.Context, caller models.Address, forwarder DonationForwarder) error {
	return v.run(ctx, "set_forwarder", func(ctx context.Context, op *ledgerOp) error {
		if err := v.authorize(op.state, caller); err != nil {
			return err
		}
		if forwarder == nil {
			return ErrNilForwarder
		}
		if forwarder.Address().IsZero() {
			return ErrZeroAddress
		}

		previous := op.state.Forwarder
		op.state.Forwarder = forwarder.Address()
		if err := v.saveState(ctx, op); err != nil {
			return err
		}

		record := v.newRecord(models.RecordTypeForwarderChanged, caller, map[string]any{
			"previous": previous.String(),
			"current":  op.state.Forwarder.String(),
		})
		event := events.ForwarderChangedEvent{VaultID: v.id, Previous: previous, Current: op.state.Forwarder}
		if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
			return err
		}

		op.afterCommit = append(op.afterCommit, func() {
			v.forwarder = forwarder
		})
		return nil
	})
}

// SetModule swaps the yield module. Everything the old module manages is divested and swept
// into the new one; a module that cannot return its full balance blocks the swap, in which
// case EmergencyDivest is the way out. Unharvested yield migrates with the principal.
func (v *Vault) SetModule(ctx context.Context, caller models.Address, module YieldModule) error {
	return v.run(ctx, "set_module", func(ctx context.Context, op *ledgerOp) error {
		if err := v.authorize(op.state, caller); err != nil {
			return err
		}
		if module == nil {
			return ErrNilModule
		}
		if module.Address().IsZero() {
			return ErrZeroAddress
		}
		if module.Asset() != op.state.Asset {
			return fmt.Errorf("%w: module manages %q, vault holds %q", ErrAssetMismatch, module.Asset(), op.state.Asset)
		}

		old := v.module
		migrated, err := v.managedAssets(ctx, old)
		if err != nil {
			return err
		}
		if migrated.Sign() > 0 {
			returned, err := old.Divest(ctx, migrated)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
			}
			if returned.Sign() > 0 {
				op.onFailure("return assets to previous module", v.investExactly(old, returned))
			}
			if returned.LessThan(migrated) {
				return fmt.Errorf("%w: previous module returned %s of %s", ErrInsufficientLiquidity, returned, migrated)
			}
			op.state.IdleReserve = op.state.IdleReserve.Add(returned)
			migrated = returned
		}

		if err := v.sweep(ctx, op, module); err != nil {
			return err
		}

		previous := op.state.Module
		op.state.Module = module.Address()
		if err := v.saveState(ctx, op); err != nil {
			return err
		}

		record := v.newRecord(models.RecordTypeModuleChanged, caller, map[string]any{
			"previous": previous.String(),
			"current":  op.state.Module.String(),
			"migrated": migrated.String(),
		})
		event := events.ModuleChangedEvent{
			VaultID:  v.id,
			Previous: previous,
			Current:  op.state.Module,
			Migrated: migrated,
		}
		if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
			return err
		}

		op.afterCommit = append(op.afterCommit, func() {
			v.module = module
		})

		log.WithFields(log.Fields{
			"vault":    v.id,
			"previous": previous,
			"current":  op.state.Module,
			"migrated": migrated.String(),
		}).Info("Yield module replaced")
		return nil
	})
}

// SetPaused toggles the Active/Paused mode. Pausing only gates deposit, mint and harvest.
func (v *Vault) SetPaused(ctx context.Context, caller models.Address, paused bool) error {
	return v.run(ctx, "set_paused", func(ctx context.Context, op *ledgerOp) error {
		if err := v.authorize(op.state, caller); err != nil {
			return err
		}

		op.state.Paused = paused
		if err := v.saveState(ctx, op); err != nil {
			return err
		}

		record := v.newRecord(models.RecordTypePauseToggled, caller, map[string]any{
			"paused": paused,
		})
		event := events.PauseToggledEvent{VaultID: v.id, Paused: paused}
		if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"vault":  v.id,
			"paused": paused,
		}).Info("Vault pause state changed")
		return nil
	})
}

// EmergencyDivest pulls amount out of the yield module into the idle reserve. Share
// accounting is untouched and the call is allowed while paused. Returns what the module
// actually handed back, which may be less than requested.
func (v *Vault) EmergencyDivest(ctx context.Context, caller models.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	var returned decimal.Decimal
	err := v.run(ctx, "emergency_divest", func(ctx context.Context, op *ledgerOp) error {
		if err := v.authorize(op.state, caller); err != nil {
			return err
		}
		if err := checkAmount(amount); err != nil {
			return err
		}

		var err error
		returned, err = v.module.Divest(ctx, amount)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
		}
		if returned.Sign() < 0 {
			return fmt.Errorf("%w: module returned negative amount %s", ErrInsufficientLiquidity, returned)
		}
		if returned.Sign() > 0 {
			op.onFailure("reinvest emergency divestment", v.investExactly(v.module, returned))
		}

		op.state.IdleReserve = op.state.IdleReserve.Add(returned)
		if err := v.saveState(ctx, op); err != nil {
			return err
		}

		record := v.newRecord(models.RecordTypeEmergencyDivest, caller, map[string]any{
			"requested": amount.String(),
			"returned":  returned.String(),
		})
		event := events.EmergencyDivestEvent{VaultID: v.id, Requested: amount, Returned: returned}
		if err := RecordLedgerChange(ctx, op.uow, record, event); err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"vault":     v.id,
			"requested": amount.String(),
			"returned":  returned.String(),
		}).Warn("Emergency divestment executed")
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return returned, nil
}
