// Package asset implements an in-process fungible token book.
package asset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be a positive whole number")
	ErrInvalidParty        = errors.New("transfer party must not be the zero address")
)

// BalanceStore persists book balances so they survive a restart
type BalanceStore interface {
	LoadBalances(ctx context.Context, asset string) (map[models.Address]decimal.Decimal, error)
	SaveBalances(ctx context.Context, asset string, balances map[models.Address]decimal.Decimal) error
}

// Book tracks balances of a single asset. Every transfer either fully applies or leaves all
// balances untouched.
type Book struct {
	id       string
	mu       sync.Mutex
	balances map[models.Address]decimal.Decimal
	store    BalanceStore
}

// NewBook creates an empty book for asset id
func NewBook(id string) *Book {
	return &Book{
		id:       id,
		balances: make(map[models.Address]decimal.Decimal),
	}
}

// OpenBook loads the balances of asset id from store. Every later change is written to
// store before it is applied in memory.
func OpenBook(ctx context.Context, id string, store BalanceStore) (*Book, error) {
	balances, err := store.LoadBalances(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s book: %w", id, err)
	}

	b := NewBook(id)
	b.store = store
	for holder, amount := range balances {
		b.set(holder, amount)
	}

	log.WithFields(log.Fields{
		"asset":   id,
		"holders": len(b.balances),
	}).Info("Loaded asset book")
	return b, nil
}

// ID returns the asset identifier
func (b *Book) ID() string {
	return b.id
}

// BalanceOf returns holder's balance
func (b *Book) BalanceOf(ctx context.Context, holder models.Address) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(holder), nil
}

func (b *Book) balance(holder models.Address) decimal.Decimal {
	if bal, ok := b.balances[holder]; ok {
		return bal
	}
	return decimal.Zero
}

// Transfer moves amount from one holder to another
func (b *Book) Transfer(ctx context.Context, from, to models.Address, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidParty
	}
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	available := b.balance(from)
	if available.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance, from, available, b.id, amount)
	}
	if from == to {
		return nil
	}
	if err := b.apply(ctx, map[models.Address]decimal.Decimal{
		from: available.Sub(amount),
		to:   b.balance(to).Add(amount),
	}); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"asset":  b.id,
		"from":   from,
		"to":     to,
		"amount": amount.String(),
	}).Debug("Asset transferred")
	return nil
}

// Issue creates new units for holder. It is the only way supply enters the book.
func (b *Book) Issue(holder models.Address, amount decimal.Decimal) error {
	if holder.IsZero() {
		return ErrInvalidParty
	}
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.apply(context.Background(), map[models.Address]decimal.Decimal{
		holder: b.balance(holder).Add(amount),
	})
}

// apply persists the new balances, then installs them. Caller holds mu.
func (b *Book) apply(ctx context.Context, balances map[models.Address]decimal.Decimal) error {
	if b.store != nil {
		if err := b.store.SaveBalances(ctx, b.id, balances); err != nil {
			return fmt.Errorf("failed to persist %s balances: %w", b.id, err)
		}
	}
	for holder, amount := range balances {
		b.set(holder, amount)
	}
	return nil
}

// Supply returns the sum of all balances
func (b *Book) Supply() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for _, bal := range b.balances {
		total = total.Add(bal)
	}
	return total
}

// Holders lists every address with a non-zero balance, sorted
func (b *Book) Holders() []models.Address {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Address, 0, len(b.balances))
	for holder := range b.balances {
		out = append(out, holder)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (b *Book) set(holder models.Address, amount decimal.Decimal) {
	if amount.IsZero() {
		delete(b.balances, holder)
		return
	}
	b.balances[holder] = amount
}
