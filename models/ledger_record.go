package models

import (
	"time"
)

// RecordType represents the kind of observable ledger record
type RecordType string

const (
	RecordTypeDeposit            RecordType = "deposit"
	RecordTypeWithdraw           RecordType = "withdraw"
	RecordTypeHarvest            RecordType = "harvest"
	RecordTypeDonationForwarded  RecordType = "donation_forwarded"
	RecordTypeBeneficiaryChanged RecordType = "beneficiary_changed"
	RecordTypeForwarderChanged   RecordType = "forwarder_changed"
	RecordTypeModuleChanged      RecordType = "module_changed"
	RecordTypePauseToggled       RecordType = "pause_toggled"
	RecordTypeEmergencyDivest    RecordType = "emergency_divest"
	RecordTypeApproval           RecordType = "approval"
	RecordTypeShareTransfer      RecordType = "share_transfer"
	RecordTypePayoutReverted     RecordType = "payout_reverted"
)

// LedgerRecord is an append-only audit entry written in the same unit of work as the
// state change it describes.
type LedgerRecord struct {
	ID        string         `db:"id" json:"id"`
	VaultID   string         `db:"vault_id" json:"vault_id"`
	Type      RecordType     `db:"record_type" json:"record_type"`
	Actor     Address        `db:"actor" json:"actor"`
	Metadata  map[string]any `db:"metadata" json:"metadata"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
