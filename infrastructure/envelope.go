package infrastructure

import (
	"encoding/json"
	"fmt"
	"time"

	"givevault/events"

	"github.com/google/uuid"
)

const sourceService = "givevault"

// EventEnvelope wraps a record with the metadata consumers use for deduplication and routing
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes event into an envelope
func NewEventEnvelope(event events.Event, now time.Time) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		PartitionKey:  PartitionKey(event),
		Timestamp:     now.UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}, nil
}

// PartitionKey groups records of one vault together. Donation records carry no vault and
// are keyed by asset.
func PartitionKey(event events.Event) string {
	switch e := event.(type) {
	case events.DepositEvent:
		return e.VaultID
	case events.WithdrawEvent:
		return e.VaultID
	case events.HarvestEvent:
		return e.VaultID
	case events.DonationForwardedEvent:
		return "asset:" + e.Asset
	case events.BeneficiaryChangedEvent:
		return e.VaultID
	case events.ForwarderChangedEvent:
		return e.VaultID
	case events.ModuleChangedEvent:
		return e.VaultID
	case events.PauseToggledEvent:
		return e.VaultID
	case events.EmergencyDivestEvent:
		return e.VaultID
	case events.ApprovalEvent:
		return e.VaultID
	case events.ShareTransferEvent:
		return e.VaultID
	case events.PayoutRevertedEvent:
		return e.VaultID
	default:
		return string(event.Type())
	}
}
