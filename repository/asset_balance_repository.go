package repository

import (
	"context"
	"fmt"

	"givevault/database"
	"givevault/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AssetBalanceRepository persists the balances of the in-process asset book
type AssetBalanceRepository struct {
	db *database.DB
}

// NewAssetBalanceRepository creates a new asset balance repository
func NewAssetBalanceRepository(db *database.DB) *AssetBalanceRepository {
	return &AssetBalanceRepository{db: db}
}

// LoadBalances returns every non-zero balance held in asset
func (r *AssetBalanceRepository) LoadBalances(ctx context.Context, asset string) (map[models.Address]decimal.Decimal, error) {
	query := `SELECT holder, amount FROM asset_balances WHERE asset = $1`

	rows, err := r.db.Query(ctx, query, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s balances: %w", asset, err)
	}
	defer rows.Close()

	balances := make(map[models.Address]decimal.Decimal)
	for rows.Next() {
		var holder models.Address
		var amount decimal.Decimal
		if err := rows.Scan(&holder, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan %s balance: %w", asset, err)
		}
		balances[holder] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s balances: %w", asset, err)
	}

	return balances, nil
}

// SaveBalances overwrites the given balances in one transaction. A zero balance removes
// the holder's row.
func (r *AssetBalanceRepository) SaveBalances(ctx context.Context, asset string, balances map[models.Address]decimal.Decimal) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for holder, amount := range balances {
			if amount.IsZero() {
				if _, err := tx.Exec(ctx,
					`DELETE FROM asset_balances WHERE asset = $1 AND holder = $2`,
					asset, holder); err != nil {
					return fmt.Errorf("failed to clear %s balance of %s: %w", asset, holder, err)
				}
				continue
			}

			query := `
				INSERT INTO asset_balances (asset, holder, amount)
				VALUES ($1, $2, $3)
				ON CONFLICT (asset, holder)
				DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()
			`
			if _, err := tx.Exec(ctx, query, asset, holder, amount); err != nil {
				return fmt.Errorf("failed to save %s balance of %s: %w", asset, holder, err)
			}
		}
		return nil
	})
}
