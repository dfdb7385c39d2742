package service

import (
	"context"
	"fmt"

	"givevault/events"
	"givevault/models"
)

// RecordLedgerChange appends the audit record and queues the matching event.
// This is the single entry point for observable records; both are dropped if the unit of
// work rolls back.
func RecordLedgerChange(ctx context.Context, uow UnitOfWork, record *models.LedgerRecord, event events.Event) error {
	if err := uow.RecordRepository().Append(ctx, record); err != nil {
		return fmt.Errorf("failed to record %s: %w", record.Type, err)
	}

	// Flushed only after the transaction commits
	if event != nil {
		uow.EventBus().Publish(event)
	}
	return nil
}

func (v *Vault) newRecord(recordType models.RecordType, actor models.Address, metadata map[string]any) *models.LedgerRecord {
	return &models.LedgerRecord{
		VaultID:   v.id,
		Type:      recordType,
		Actor:     actor,
		Metadata:  metadata,
		CreatedAt: v.now(),
	}
}
