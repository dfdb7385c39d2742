package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"givevault/database"
	"givevault/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecordRepository implements the RecordRepository interface
type RecordRepository struct {
	q queryable
}

// NewRecordRepository creates a new ledger record repository
func NewRecordRepository(db *database.DB) *RecordRepository {
	return &RecordRepository{q: db.Pool}
}

// newRecordRepositoryWithTx creates a new ledger record repository with a transaction
func newRecordRepositoryWithTx(tx queryable) *RecordRepository {
	return &RecordRepository{q: tx}
}

// Append stores a record, assigning its ID and creation time when unset
func (r *RecordRepository) Append(ctx context.Context, record *models.LedgerRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal record metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_records (id, vault_id, record_type, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING created_at
	`

	var createdAt any
	if !record.CreatedAt.IsZero() {
		createdAt = record.CreatedAt
	}

	err = r.q.QueryRow(ctx, query,
		record.ID,
		record.VaultID,
		record.Type,
		record.Actor,
		metadataJSON,
		createdAt,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append %s record for vault %s: %w", record.Type, record.VaultID, err)
	}

	return nil
}

// GetByVault returns the newest records first
func (r *RecordRepository) GetByVault(ctx context.Context, vaultID string, limit int) ([]*models.LedgerRecord, error) {
	query := `
		SELECT id, vault_id, record_type, actor, metadata, created_at
		FROM ledger_records
		WHERE vault_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, vaultID, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return scanRecords(rows)
}

// GetByActor returns the newest records of one actor first
func (r *RecordRepository) GetByActor(ctx context.Context, vaultID string, actor models.Address, limit int) ([]*models.LedgerRecord, error) {
	query := `
		SELECT id, vault_id, record_type, actor, metadata, created_at
		FROM ledger_records
		WHERE vault_id = $1 AND actor = $2
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := r.q.Query(ctx, query, vaultID, actor, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query records of %s: %w", actor, err)
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*models.LedgerRecord, error) {
	defer rows.Close()

	var records []*models.LedgerRecord
	for rows.Next() {
		var (
			rec          models.LedgerRecord
			metadataJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.VaultID, &rec.Type, &rec.Actor, &metadataJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata of record %s: %w", rec.ID, err)
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
