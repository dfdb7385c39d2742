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

// PositionRepository implements the PositionRepository interface
type PositionRepository struct {
	q queryable
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *database.DB) *PositionRepository {
	return &PositionRepository{q: db.Pool}
}

// newPositionRepositoryWithTx creates a new position repository with a transaction
func newPositionRepositoryWithTx(tx queryable) *PositionRepository {
	return &PositionRepository{q: tx}
}

// GetShares returns a holder's shares, zero when no entry exists
func (r *PositionRepository) GetShares(ctx context.Context, vaultID string, holder models.Address) (decimal.Decimal, error) {
	query := `SELECT shares FROM share_positions WHERE vault_id = $1 AND holder = $2`

	var shares decimal.Decimal
	err := r.q.QueryRow(ctx, query, vaultID, holder).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get shares of %s: %w", holder, err)
	}

	return shares, nil
}

// AddShares credits shares, creating the entry on first credit
func (r *PositionRepository) AddShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error {
	if shares.Sign() <= 0 {
		return fmt.Errorf("credit of %s shares: %w", shares, service.ErrZeroAmount)
	}

	query := `
		INSERT INTO share_positions (vault_id, holder, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (vault_id, holder)
		DO UPDATE SET shares = share_positions.shares + EXCLUDED.shares, updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, vaultID, holder, shares); err != nil {
		return fmt.Errorf("failed to credit %s shares to %s: %w", shares, holder, err)
	}

	return nil
}

// DeductShares debits shares and removes the entry when it reaches zero
func (r *PositionRepository) DeductShares(ctx context.Context, vaultID string, holder models.Address, shares decimal.Decimal) error {
	if shares.Sign() <= 0 {
		return fmt.Errorf("debit of %s shares: %w", shares, service.ErrZeroAmount)
	}

	query := `
		UPDATE share_positions
		SET shares = shares - $3, updated_at = NOW()
		WHERE vault_id = $1 AND holder = $2 AND shares > $3
	`
	result, err := r.q.Exec(ctx, query, vaultID, holder, shares)
	if err != nil {
		return fmt.Errorf("failed to debit %s shares from %s: %w", shares, holder, err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	// Exact balance: the entry goes away instead of lingering at zero
	result, err = r.q.Exec(ctx,
		`DELETE FROM share_positions WHERE vault_id = $1 AND holder = $2 AND shares = $3`,
		vaultID, holder, shares)
	if err != nil {
		return fmt.Errorf("failed to debit %s shares from %s: %w", shares, holder, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("holder %s cannot cover %s shares: %w", holder, shares, service.ErrInsufficientShares)
	}

	return nil
}

// GetAll returns every position of the vault ordered by holder
func (r *PositionRepository) GetAll(ctx context.Context, vaultID string) ([]*models.SharePosition, error) {
	query := `
		SELECT vault_id, holder, shares, updated_at
		FROM share_positions
		WHERE vault_id = $1
		ORDER BY holder
	`

	rows, err := r.q.Query(ctx, query, vaultID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.SharePosition
	for rows.Next() {
		var p models.SharePosition
		if err := rows.Scan(&p.VaultID, &p.Holder, &p.Shares, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// SumShares returns the total over all positions
func (r *PositionRepository) SumShares(ctx context.Context, vaultID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(shares), 0) FROM share_positions WHERE vault_id = $1`, vaultID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum shares: %w", err)
	}

	return total, nil
}
