package repository

import (
	"context"
	"errors"
	"fmt"

	"givevault/database"
	"givevault/models"
	"givevault/service"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AllowanceRepository implements the AllowanceRepository interface
type AllowanceRepository struct {
	q queryable
}

// NewAllowanceRepository creates a new allowance repository
func NewAllowanceRepository(db *database.DB) *AllowanceRepository {
	return &AllowanceRepository{q: db.Pool}
}

// newAllowanceRepositoryWithTx creates a new allowance repository with a transaction
func newAllowanceRepositoryWithTx(tx queryable) *AllowanceRepository {
	return &AllowanceRepository{q: tx}
}

// Get returns the allowance, zero when none was granted
func (r *AllowanceRepository) Get(ctx context.Context, vaultID string, owner, spender models.Address) (decimal.Decimal, error) {
	query := `SELECT shares FROM share_allowances WHERE vault_id = $1 AND owner = $2 AND spender = $3`

	var shares decimal.Decimal
	err := r.q.QueryRow(ctx, query, vaultID, owner, spender).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get allowance %s -> %s: %w", owner, spender, err)
	}

	return shares, nil
}

// Set overwrites the allowance; zero removes the row
func (r *AllowanceRepository) Set(ctx context.Context, vaultID string, owner, spender models.Address, shares decimal.Decimal) error {
	if shares.Sign() < 0 {
		return fmt.Errorf("allowance of %s: %w", shares, service.ErrNegativeAmount)
	}

	if shares.IsZero() {
		_, err := r.q.Exec(ctx,
			`DELETE FROM share_allowances WHERE vault_id = $1 AND owner = $2 AND spender = $3`,
			vaultID, owner, spender)
		if err != nil {
			return fmt.Errorf("failed to revoke allowance %s -> %s: %w", owner, spender, err)
		}
		return nil
	}

	query := `
		INSERT INTO share_allowances (vault_id, owner, spender, shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vault_id, owner, spender)
		DO UPDATE SET shares = EXCLUDED.shares, updated_at = NOW()
	`
	if _, err := r.q.Exec(ctx, query, vaultID, owner, spender, shares); err != nil {
		return fmt.Errorf("failed to set allowance %s -> %s: %w", owner, spender, err)
	}

	return nil
}
