package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultState is the persisted core of a vault ledger.
// Managed assets are never stored; they are queried live from the yield module.
type VaultState struct {
	ID           string          `db:"id" json:"id"`
	Asset        string          `db:"asset" json:"asset"`
	Address      Address         `db:"address" json:"address"`
	Admin        Address         `db:"admin" json:"admin"`
	Module       Address         `db:"module" json:"module"`
	Forwarder    Address         `db:"forwarder" json:"forwarder"`
	Beneficiary  Address         `db:"beneficiary" json:"beneficiary"`
	Paused       bool            `db:"paused" json:"paused"`
	ShareSupply  decimal.Decimal `db:"share_supply" json:"share_supply"`
	IdleReserve  decimal.Decimal `db:"idle_reserve" json:"idle_reserve"`
	TotalDonated decimal.Decimal `db:"total_donated" json:"total_donated"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *VaultState) Clone() *VaultState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SharePosition is a holder's share balance in a vault.
type SharePosition struct {
	VaultID   string          `db:"vault_id" json:"vault_id"`
	Holder    Address         `db:"holder" json:"holder"`
	Shares    decimal.Decimal `db:"shares" json:"shares"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Allowance is the number of shares a spender may withdraw or redeem on an owner's behalf.
type Allowance struct {
	VaultID string          `db:"vault_id" json:"vault_id"`
	Owner   Address         `db:"owner" json:"owner"`
	Spender Address         `db:"spender" json:"spender"`
	Shares  decimal.Decimal `db:"shares" json:"shares"`
}

// VaultSummary is a read-only snapshot combining persisted state with the live module report.
type VaultSummary struct {
	State         *VaultState     `json:"state"`
	ManagedAssets decimal.Decimal `json:"managed_assets"`
	TotalAssets   decimal.Decimal `json:"total_assets"`
}
