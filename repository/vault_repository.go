package repository

import (
	"context"
	"errors"
	"fmt"

	"givevault/database"
	"givevault/models"
	"givevault/service"

	"github.com/jackc/pgx/v5"
)

// VaultRepository implements the VaultRepository interface
type VaultRepository struct {
	q queryable
}

// NewVaultRepository creates a new vault repository
func NewVaultRepository(db *database.DB) *VaultRepository {
	return &VaultRepository{q: db.Pool}
}

// newVaultRepositoryWithTx creates a new vault repository with a transaction
func newVaultRepositoryWithTx(tx queryable) *VaultRepository {
	return &VaultRepository{q: tx}
}

const vaultColumns = `id, asset, address, admin, module, forwarder, beneficiary, paused,
	share_supply, idle_reserve, total_donated, created_at, updated_at`

// Get retrieves a vault by ID and locks its row for the rest of the transaction.
// Every ledger operation reads the vault first, so concurrent operations on one vault serialize here.
func (r *VaultRepository) Get(ctx context.Context, vaultID string) (*models.VaultState, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE id = $1 FOR UPDATE`

	var s models.VaultState
	err := r.q.QueryRow(ctx, query, vaultID).Scan(
		&s.ID,
		&s.Asset,
		&s.Address,
		&s.Admin,
		&s.Module,
		&s.Forwarder,
		&s.Beneficiary,
		&s.Paused,
		&s.ShareSupply,
		&s.IdleReserve,
		&s.TotalDonated,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault %s: %w", vaultID, err)
	}

	return &s, nil
}

// Create stores a new vault
func (r *VaultRepository) Create(ctx context.Context, state *models.VaultState) error {
	query := `
		INSERT INTO vaults (id, asset, address, admin, module, forwarder, beneficiary, paused,
			share_supply, idle_reserve, total_donated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		state.ID,
		state.Asset,
		state.Address,
		state.Admin,
		state.Module,
		state.Forwarder,
		state.Beneficiary,
		state.Paused,
		state.ShareSupply,
		state.IdleReserve,
		state.TotalDonated,
	).Scan(&state.CreatedAt, &state.UpdatedAt)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("vault %s: %w", state.ID, service.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to create vault %s: %w", state.ID, err)
	}

	return nil
}

// Update overwrites the mutable vault fields
func (r *VaultRepository) Update(ctx context.Context, state *models.VaultState) error {
	query := `
		UPDATE vaults
		SET admin = $2, module = $3, forwarder = $4, beneficiary = $5, paused = $6,
			share_supply = $7, idle_reserve = $8, total_donated = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		state.ID,
		state.Admin,
		state.Module,
		state.Forwarder,
		state.Beneficiary,
		state.Paused,
		state.ShareSupply,
		state.IdleReserve,
		state.TotalDonated,
	).Scan(&state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("vault %s: %w", state.ID, service.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update vault %s: %w", state.ID, err)
	}

	return nil
}
