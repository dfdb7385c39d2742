package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HarvestOutcome summarizes a keeper-triggered harvest attempt
type HarvestOutcome string

const (
	HarvestOutcomeDonated HarvestOutcome = "donated"
	HarvestOutcomeNoYield HarvestOutcome = "no_yield"
	HarvestOutcomePaused  HarvestOutcome = "paused"
	HarvestOutcomeFailed  HarvestOutcome = "failed"
)

// HarvestRun represents one scheduled harvest executed by the keeper
type HarvestRun struct {
	ID          int64           `db:"id" json:"id"`
	VaultID     string          `db:"vault_id" json:"vault_id"`
	RunAt       time.Time       `db:"run_at" json:"run_at"`
	Yield       decimal.Decimal `db:"yield" json:"yield"`
	Beneficiary Address         `db:"beneficiary" json:"beneficiary"`
	Outcome     HarvestOutcome  `db:"outcome" json:"outcome"`
	Error       string          `db:"error" json:"error"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
