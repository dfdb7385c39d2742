package events

import (
	"context"
	"sync"

	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents the observable record kinds a vault emits
type EventType string

const (
	EventTypeDeposit            EventType = "deposit"
	EventTypeWithdraw           EventType = "withdraw"
	EventTypeHarvest            EventType = "harvest"
	EventTypeDonationForwarded  EventType = "donation_forwarded"
	EventTypeBeneficiaryChanged EventType = "beneficiary_changed"
	EventTypeForwarderChanged   EventType = "forwarder_changed"
	EventTypeModuleChanged      EventType = "module_changed"
	EventTypePauseToggled       EventType = "pause_toggled"
	EventTypeEmergencyDivest    EventType = "emergency_divest"
	EventTypeApproval           EventType = "approval"
	EventTypeShareTransfer      EventType = "share_transfer"
	EventTypePayoutReverted     EventType = "payout_reverted"
)

// AllEventTypes lists every event type, in the order sinks register them.
var AllEventTypes = []EventType{
	EventTypeDeposit,
	EventTypeWithdraw,
	EventTypeHarvest,
	EventTypeDonationForwarded,
	EventTypeBeneficiaryChanged,
	EventTypeForwarderChanged,
	EventTypeModuleChanged,
	EventTypePauseToggled,
	EventTypeEmergencyDivest,
	EventTypeApproval,
	EventTypeShareTransfer,
	EventTypePayoutReverted,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// DepositEvent is emitted by deposit and mint
type DepositEvent struct {
	VaultID string          `json:"vault_id"`
	Caller  models.Address  `json:"caller"`
	Owner   models.Address  `json:"owner"`
	Assets  decimal.Decimal `json:"assets"`
	Shares  decimal.Decimal `json:"shares"`
}

func (e DepositEvent) Type() EventType {
	return EventTypeDeposit
}

// WithdrawEvent is emitted by withdraw and redeem
type WithdrawEvent struct {
	VaultID  string          `json:"vault_id"`
	Caller   models.Address  `json:"caller"`
	Receiver models.Address  `json:"receiver"`
	Owner    models.Address  `json:"owner"`
	Assets   decimal.Decimal `json:"assets"`
	Shares   decimal.Decimal `json:"shares"`
}

func (e WithdrawEvent) Type() EventType {
	return EventTypeWithdraw
}

// HarvestEvent records realized yield handed to the beneficiary
type HarvestEvent struct {
	VaultID     string          `json:"vault_id"`
	YieldAmount decimal.Decimal `json:"yield_amount"`
	Beneficiary models.Address  `json:"beneficiary"`
}

func (e HarvestEvent) Type() EventType {
	return EventTypeHarvest
}

// DonationForwardedEvent is emitted by the donation forwarder once the transfer settled
type DonationForwardedEvent struct {
	Asset       string          `json:"asset"`
	Beneficiary models.Address  `json:"beneficiary"`
	Amount      decimal.Decimal `json:"amount"`
	Initiator   models.Address  `json:"initiator"`
}

func (e DonationForwardedEvent) Type() EventType {
	return EventTypeDonationForwarded
}

// BeneficiaryChangedEvent represents an admin beneficiary change
type BeneficiaryChangedEvent struct {
	VaultID  string         `json:"vault_id"`
	Previous models.Address `json:"previous"`
	Current  models.Address `json:"current"`
}

func (e BeneficiaryChangedEvent) Type() EventType {
	return EventTypeBeneficiaryChanged
}

// ForwarderChangedEvent represents an admin forwarder change
type ForwarderChangedEvent struct {
	VaultID  string         `json:"vault_id"`
	Previous models.Address `json:"previous"`
	Current  models.Address `json:"current"`
}

func (e ForwarderChangedEvent) Type() EventType {
	return EventTypeForwarderChanged
}

// ModuleChangedEvent represents an admin yield module change
type ModuleChangedEvent struct {
	VaultID  string          `json:"vault_id"`
	Previous models.Address  `json:"previous"`
	Current  models.Address  `json:"current"`
	Migrated decimal.Decimal `json:"migrated"`
}

func (e ModuleChangedEvent) Type() EventType {
	return EventTypeModuleChanged
}

// PauseToggledEvent carries the new pause state
type PauseToggledEvent struct {
	VaultID string `json:"vault_id"`
	Paused  bool   `json:"paused"`
}

func (e PauseToggledEvent) Type() EventType {
	return EventTypePauseToggled
}

// EmergencyDivestEvent records an admin-initiated divestment
type EmergencyDivestEvent struct {
	VaultID   string          `json:"vault_id"`
	Requested decimal.Decimal `json:"requested"`
	Returned  decimal.Decimal `json:"returned"`
}

func (e EmergencyDivestEvent) Type() EventType {
	return EventTypeEmergencyDivest
}

// ApprovalEvent represents a share allowance update
type ApprovalEvent struct {
	VaultID string          `json:"vault_id"`
	Owner   models.Address  `json:"owner"`
	Spender models.Address  `json:"spender"`
	Shares  decimal.Decimal `json:"shares"`
}

func (e ApprovalEvent) Type() EventType {
	return EventTypeApproval
}

// ShareTransferEvent represents shares moving between holders
type ShareTransferEvent struct {
	VaultID string          `json:"vault_id"`
	From    models.Address  `json:"from"`
	To      models.Address  `json:"to"`
	Shares  decimal.Decimal `json:"shares"`
}

func (e ShareTransferEvent) Type() EventType {
	return EventTypeShareTransfer
}

// PayoutRevertedEvent records a committed withdrawal or donation whose payout failed and
// whose ledger change was reversed
type PayoutRevertedEvent struct {
	VaultID   string          `json:"vault_id"`
	Operation string          `json:"operation"`
	Recipient models.Address  `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func (e PayoutRevertedEvent) Type() EventType {
	return EventTypePayoutReverted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeAll adds a handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publish emits immediately. It lets the bus stand in wherever a publisher is expected
// outside of a unit of work, e.g. the donation forwarder.
func (b *Bus) Publish(event Event) {
	b.Emit(context.Background(), event)
}

// Wait blocks until every handler dispatched so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// TransactionalBus holds events coupled to a unit of work.
// Pending events reach the underlying bus only after a successful commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the events queued so far
func (b *TransactionalBus) Pending() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus to main event bus")

	// Events outlive the unit of work, so they must not inherit its context
	eventCtx := context.Background()

	if b.real != nil {
		for _, ev := range b.pending {
			b.real.Emit(eventCtx, ev)
		}
	}
	b.pending = nil
	return nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
