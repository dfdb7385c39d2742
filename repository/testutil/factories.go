package testutil

import (
	"time"

	"givevault/models"

	"github.com/shopspring/decimal"
)

// CreateTestVault creates a vault state with fresh books
func CreateTestVault(id string) *models.VaultState {
	return &models.VaultState{
		ID:           id,
		Asset:        "usdc",
		Address:      models.Address(id + "-vault"),
		Admin:        "admin",
		Module:       "module",
		Forwarder:    "router",
		Beneficiary:  "charity",
		ShareSupply:  decimal.Zero,
		IdleReserve:  decimal.Zero,
		TotalDonated: decimal.Zero,
	}
}

// CreateTestVaultWithBooks creates a vault state with the given supply, idle reserve and donations
func CreateTestVaultWithBooks(id string, supply, idle, donated int64) *models.VaultState {
	state := CreateTestVault(id)
	state.ShareSupply = decimal.NewFromInt(supply)
	state.IdleReserve = decimal.NewFromInt(idle)
	state.TotalDonated = decimal.NewFromInt(donated)
	return state
}

// CreateTestRecord creates a ledger record with metadata
func CreateTestRecord(vaultID string, recordType models.RecordType, actor models.Address) *models.LedgerRecord {
	return &models.LedgerRecord{
		VaultID: vaultID,
		Type:    recordType,
		Actor:   actor,
		Metadata: map[string]any{
			"assets": "1000",
			"shares": "1000",
		},
	}
}

// CreateTestHarvestRun creates a harvest run that donated the given yield
func CreateTestHarvestRun(vaultID string, runAt time.Time, yield int64) *models.HarvestRun {
	return &models.HarvestRun{
		VaultID:     vaultID,
		RunAt:       runAt,
		Yield:       decimal.NewFromInt(yield),
		Beneficiary: "charity",
		Outcome:     models.HarvestOutcomeDonated,
	}
}
