package service

import (
	"context"

	"givevault/events"
	"givevault/models"

	"github.com/shopspring/decimal"
)

// AssetToken is the asset transfer primitive. Transfers are all-or-nothing: on error no
// balance has moved.
type AssetToken interface {
	// ID returns the asset identifier, e.g. "usdc"
	ID() string

	// BalanceOf returns the holder's balance
	BalanceOf(ctx context.Context, holder models.Address) (decimal.Decimal, error)

	// Transfer moves amount from one party to another
	Transfer(ctx context.Context, from, to models.Address, amount decimal.Decimal) error
}

// YieldModule is the pluggable yield source a vault routes idle capital into.
type YieldModule interface {
	// Address is the module's identity on the asset book
	Address() models.Address

	// Asset returns the asset the module manages
	Asset() string

	// TotalManagedAssets reports principal plus unharvested yield
	TotalManagedAssets(ctx context.Context) (decimal.Decimal, error)

	// Invest pulls amount from the vault and returns how much was accepted
	Invest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)

	// Divest pushes up to amount back to the vault and returns what was actually returned
	Divest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)

	// Harvest pushes realized yield to the vault and returns its amount
	Harvest(ctx context.Context) (decimal.Decimal, error)
}

// DonationForwarder moves harvested yield to the beneficiary and announces it.
type DonationForwarder interface {
	// Address is the forwarder's identity
	Address() models.Address

	// Forward transfers amount of asset from initiator to beneficiary
	Forward(ctx context.Context, initiator models.Address, asset string, beneficiary models.Address, amount decimal.Decimal) error
}

// VaultRepository defines the interface for vault state access
type VaultRepository interface {
	// Get returns the vault state, or nil if the vault does not exist
	Get(ctx context.Context, vaultID string) (*models.VaultState, error)

	// Create stores a new vault, failing with ErrDuplicateKey if it exists
	Create(ctx context.Context, state *models.VaultState) error

	// Update overwrites the mutable vault fields
	Update(ctx context.Context, state *models.VaultState) error
}

// PositionRepository defines the interface for share balance access
type PositionRepository interface {
	// GetShares returns a holder's shares, zero when the holder has no entry
	GetShares(ctx context.Context, vaultID string, holder models.Address) (decimal.Decimal, error)

	// AddShares credits shares, creating the entry on first credit
	AddShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error

	// DeductShares debits shares, failing with ErrInsufficientShares; the entry is removed at zero
	DeductShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error

	// GetAll returns every position of the vault
	GetAll(ctx context.Context, vaultID string) ([]*models.SharePosition, error)

	// SumShares returns the total over all positions
	SumShares(ctx context.Context, vaultID string) (decimal.Decimal, error)
}

// AllowanceRepository defines the interface for share allowance access
type AllowanceRepository interface {
	// Get returns the allowance, zero when none was granted
	Get(ctx context.Context, vaultID string, owner, spender models.Address) (decimal.Decimal, error)

	// Set overwrites the allowance; zero removes it
	Set(ctx context.Context, vaultID string, owner, spender models.Address, shares decimal.Decimal) error
}

// RecordRepository defines the interface for the append-only ledger record log
type RecordRepository interface {
	// Append stores a record, assigning ID and CreatedAt when unset
	Append(ctx context.Context, record *models.LedgerRecord) error

	// GetByVault returns the newest records first
	GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.LedgerRecord, error)

	// GetByActor returns the newest records of one actor first
	GetByActor(ctx context.Context, vaultID string, actor models.Address, limit int) ([]*models.LedgerRecord, error)
}

// HarvestRunRepository defines the interface for keeper run bookkeeping
type HarvestRunRepository interface {
	// Create stores a run
	Create(ctx context.Context, run *models.HarvestRun) error

	// GetLatest returns the most recent run, or nil
	GetLatest(ctx context.Context, vaultID string) (*models.HarvestRun, error)

	// GetByVault returns the newest runs first
	GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.HarvestRun, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	VaultRepository() VaultRepository
	PositionRepository() PositionRepository
	AllowanceRepository() AllowanceRepository
	RecordRepository() RecordRepository
	HarvestRunRepository() HarvestRunRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// Metrics receives ledger operation outcomes. A nil Metrics is valid.
type Metrics interface {
	RecordOperation(ctx context.Context, op string, err error)
	RecordDonation(ctx context.Context, amount decimal.Decimal)
}
