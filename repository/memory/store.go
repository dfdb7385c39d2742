// Package memory keeps vault ledgers in process memory. Units of work read from private
// snapshots and publish them on commit, failing with service.ErrConflict when another unit
// of work committed the same vault first.
package memory

import (
	"sync"
	"sync/atomic"

	"givevault/events"
	"givevault/models"
	"givevault/service"

	"github.com/shopspring/decimal"
)

type allowanceKey struct {
	owner   models.Address
	spender models.Address
}

// partition holds everything stored for one vault
type partition struct {
	version    int64
	state      *models.VaultState
	positions  map[models.Address]*models.SharePosition
	allowances map[allowanceKey]decimal.Decimal
	records    []*models.LedgerRecord
	runs       []*models.HarvestRun
}

func newPartition() *partition {
	return &partition{
		positions:  make(map[models.Address]*models.SharePosition),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

// clone copies the mutable parts. Records and runs are append-only and never edited in
// place, so their elements are shared.
func (p *partition) clone() *partition {
	c := &partition{
		version:    p.version,
		state:      p.state.Clone(),
		positions:  make(map[models.Address]*models.SharePosition, len(p.positions)),
		allowances: make(map[allowanceKey]decimal.Decimal, len(p.allowances)),
		records:    append([]*models.LedgerRecord(nil), p.records...),
		runs:       append([]*models.HarvestRun(nil), p.runs...),
	}
	for holder, pos := range p.positions {
		cp := *pos
		c.positions[holder] = &cp
	}
	for key, shares := range p.allowances {
		c.allowances[key] = shares
	}
	return c
}

// Store is an in-memory ledger database
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	nextRunID  atomic.Int64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{partitions: make(map[string]*partition)}
}

// snapshot returns a private copy of the vault's partition
func (s *Store) snapshot(vaultID string) *partition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.partitions[vaultID]
	if !ok {
		return newPartition()
	}
	return p.clone()
}

// install publishes the touched partitions if none changed since they were read
func (s *Store) install(touched map[string]*partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for vaultID, p := range touched {
		var current int64
		if existing, ok := s.partitions[vaultID]; ok {
			current = existing.version
		}
		if current != p.version {
			return service.ErrConflict
		}
	}
	for vaultID, p := range touched {
		p.version++
		s.partitions[vaultID] = p
	}
	return nil
}

// NewUnitOfWorkFactory creates a factory whose units of work flush events into eventBus
func NewUnitOfWorkFactory(store *Store, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		store:    store,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	store    *Store
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		store:            f.store,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}
