package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"givevault/asset"
	"givevault/events"
	"givevault/forwarder"
	"givevault/models"
	"givevault/repository/memory"
	"givevault/service"
	"givevault/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	vaultAddr   = models.Address("vault")
	moduleAddr  = models.Address("module")
	routerAddr  = models.Address("router")
	admin       = models.Address("admin")
	charity     = models.Address("charity")
	alice       = models.Address("alice")
	bob         = models.Address("bob")
	carol       = models.Address("carol")
	vaultID     = "usdc-vault"
	assetSymbol = "usdc"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// recorder collects every event the bus dispatches
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(ctx context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// harness wires a vault to the in-memory backend and real collaborators
type harness struct {
	t       *testing.T
	ctx     context.Context
	book    *asset.Book
	module  *strategy.Simulated
	router  *forwarder.Router
	bus     *events.Bus
	events  *recorder
	store   *memory.Store
	factory service.UnitOfWorkFactory
	vault   *service.Vault
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		book:   asset.NewBook(assetSymbol),
		bus:    events.NewBus(),
		events: &recorder{},
		store:  memory.NewStore(),
	}
	h.bus.SubscribeAll(h.events.handle)
	h.module = strategy.NewSimulated(h.book, moduleAddr, vaultAddr)
	h.router = forwarder.NewRouter(routerAddr, h.book, h.bus)
	h.factory = memory.NewUnitOfWorkFactory(h.store, h.bus)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vault, err := service.NewVault(h.ctx, service.VaultConfig{
		ID:          vaultID,
		Address:     vaultAddr,
		Admin:       admin,
		Beneficiary: charity,
	}, h.book, h.module, h.router, h.factory, service.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	h.vault = vault
	return h
}

func (h *harness) fund(holder models.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.book.Issue(holder, d(amount)))
}

func (h *harness) deposit(holder models.Address, amount int64) decimal.Decimal {
	h.t.Helper()
	h.fund(holder, amount)
	shares, err := h.vault.Deposit(h.ctx, holder, holder, d(amount))
	require.NoError(h.t, err)
	return shares
}

func (h *harness) balance(holder models.Address) decimal.Decimal {
	h.t.Helper()
	bal, err := h.book.BalanceOf(h.ctx, holder)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) shares(holder models.Address) decimal.Decimal {
	h.t.Helper()
	shares, err := h.vault.BalanceOf(h.ctx, holder)
	require.NoError(h.t, err)
	return shares
}

func (h *harness) summary() *models.VaultSummary {
	h.t.Helper()
	s, err := h.vault.Summary(h.ctx)
	require.NoError(h.t, err)
	return s
}

// snapshot captures everything a failed operation must leave untouched
type snapshot struct {
	supply    decimal.Decimal
	idle      decimal.Decimal
	donated   decimal.Decimal
	positions map[models.Address]string
	balances  map[models.Address]string
}

func (h *harness) snapshot() snapshot {
	h.t.Helper()
	s := h.summary()
	positions, err := h.vault.Positions(h.ctx)
	require.NoError(h.t, err)

	snap := snapshot{
		supply:    s.State.ShareSupply,
		idle:      s.State.IdleReserve,
		donated:   s.State.TotalDonated,
		positions: make(map[models.Address]string),
		balances:  make(map[models.Address]string),
	}
	for _, p := range positions {
		snap.positions[p.Holder] = p.Shares.String()
	}
	for _, holder := range h.book.Holders() {
		snap.balances[holder] = h.balance(holder).String()
	}
	return snap
}

func (h *harness) requireUnchanged(before snapshot) {
	h.t.Helper()
	after := h.snapshot()
	require.True(h.t, before.supply.Equal(after.supply), "supply %s -> %s", before.supply, after.supply)
	require.True(h.t, before.idle.Equal(after.idle), "idle %s -> %s", before.idle, after.idle)
	require.True(h.t, before.donated.Equal(after.donated), "donated %s -> %s", before.donated, after.donated)
	require.Equal(h.t, before.positions, after.positions)
	require.Equal(h.t, before.balances, after.balances)
}
