package repository

import (
	"context"
	"errors"
	"fmt"

	"givevault/database"
	"givevault/models"

	"github.com/jackc/pgx/v5"
)

// HarvestRunRepository implements the HarvestRunRepository interface
type HarvestRunRepository struct {
	q queryable
}

// NewHarvestRunRepository creates a new harvest run repository
func NewHarvestRunRepository(db *database.DB) *HarvestRunRepository {
	return &HarvestRunRepository{q: db.Pool}
}

// newHarvestRunRepositoryWithTx creates a new harvest run repository with a transaction
func newHarvestRunRepositoryWithTx(tx queryable) *HarvestRunRepository {
	return &HarvestRunRepository{q: tx}
}

const harvestRunColumns = `id, vault_id, run_at, yield, beneficiary, outcome, error, created_at`

// Create stores a harvest run
func (r *HarvestRunRepository) Create(ctx context.Context, run *models.HarvestRun) error {
	query := `
		INSERT INTO harvest_runs (vault_id, run_at, yield, beneficiary, outcome, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		run.VaultID,
		run.RunAt,
		run.Yield,
		run.Beneficiary,
		run.Outcome,
		run.Error,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create harvest run for vault %s: %w", run.VaultID, err)
	}

	return nil
}

// GetLatest returns the most recent run, or nil if the keeper never ran
func (r *HarvestRunRepository) GetLatest(ctx context.Context, vaultID string) (*models.HarvestRun, error) {
	query := `SELECT ` + harvestRunColumns + ` FROM harvest_runs WHERE vault_id = $1 ORDER BY id DESC LIMIT 1`

	run, err := scanHarvestRun(r.q.QueryRow(ctx, query, vaultID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest harvest run: %w", err)
	}

	return run, nil
}

// GetByVault returns the newest runs first
func (r *HarvestRunRepository) GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.HarvestRun, error) {
	query := `SELECT ` + harvestRunColumns + ` FROM harvest_runs WHERE vault_id = $1 ORDER BY id DESC LIMIT $2`

	rows, err := r.q.Query(ctx, query, vaultID, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query harvest runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.HarvestRun
	for rows.Next() {
		run, err := scanHarvestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan harvest run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating harvest runs: %w", err)
	}

	return runs, nil
}

func scanHarvestRun(row pgx.Row) (*models.HarvestRun, error) {
	var run models.HarvestRun
	err := row.Scan(
		&run.ID,
		&run.VaultID,
		&run.RunAt,
		&run.Yield,
		&run.Beneficiary,
		&run.Outcome,
		&run.Error,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
