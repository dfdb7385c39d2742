package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const basisPoints = 10_000

var yearNanos = decimal.NewFromInt(int64(365 * 24 * time.Hour))

// FixedRate accrues simple interest of rateBps per year on invested principal. Interest is
// issued onto the book when it is realized by Harvest or Divest.
type FixedRate struct {
	mu         sync.Mutex
	token      Token
	self       models.Address
	vault      models.Address
	rateBps    int64
	now        func() time.Time
	principal  decimal.Decimal
	accrued    decimal.Decimal
	remainder  decimal.Decimal
	checkpoint time.Time
}

// NewFixedRate creates a module earning rateBps per year. A nil clock uses time.Now.
func NewFixedRate(token Token, self, vault models.Address, rateBps int64, now func() time.Time) (*FixedRate, error) {
	if rateBps < 0 {
		return nil, fmt.Errorf("rate must not be negative, got %d bps", rateBps)
	}
	if now == nil {
		now = time.Now
	}
	return &FixedRate{
		token:      token,
		self:       self,
		vault:      vault,
		rateBps:    rateBps,
		now:        now,
		principal:  decimal.Zero,
		accrued:    decimal.Zero,
		remainder:  decimal.Zero,
		checkpoint: now(),
	}, nil
}

// Restore takes the module's custody on the book as invested principal. Realized interest
// always leaves the module, so custody is exactly principal. Interest accrued but not
// realized before a restart is not recovered.
func (f *FixedRate) Restore(ctx context.Context) error {
	held, err := f.token.BalanceOf(ctx, f.self)
	if err != nil {
		return fmt.Errorf("failed to read module custody: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.principal = held
	f.accrued = decimal.Zero
	f.remainder = decimal.Zero
	f.checkpoint = f.now()

	log.WithFields(log.Fields{
		"module":    f.self,
		"principal": held.String(),
	}).Info("Fixed rate module restored from book")
	return nil
}

func (f *FixedRate) Address() models.Address {
	return f.self
}

func (f *FixedRate) Asset() string {
	return f.token.ID()
}

// accrue brings interest up to the current instant. The sub-unit remainder is carried so
// frequent checkpoints do not lose interest. Caller holds mu.
func (f *FixedRate) accrue() {
	now := f.now()
	elapsed := now.Sub(f.checkpoint)
	f.checkpoint = now
	if elapsed <= 0 || f.principal.IsZero() || f.rateBps == 0 {
		return
	}

	numerator := f.principal.
		Mul(decimal.NewFromInt(f.rateBps)).
		Mul(decimal.NewFromInt(int64(elapsed))).
		Add(f.remainder)
	q, r := numerator.QuoRem(yearNanos.Mul(decimal.NewFromInt(basisPoints)), 0)
	f.accrued = f.accrued.Add(q)
	f.remainder = r
}

// TotalManagedAssets is principal plus interest accrued so far
func (f *FixedRate) TotalManagedAssets(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accrue()
	return f.principal.Add(f.accrued), nil
}

// Invest pulls amount from the vault and accepts all of it
func (f *FixedRate) Invest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if amount.Sign() <= 0 {
		return decimal.Zero, nil
	}
	f.accrue()
	if err := f.token.Transfer(ctx, f.vault, f.self, amount); err != nil {
		return decimal.Zero, fmt.Errorf("failed to pull %s from vault: %w", amount, err)
	}
	f.principal = f.principal.Add(amount)
	return amount, nil
}

// Divest returns up to amount, principal first and then accrued interest
func (f *FixedRate) Divest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.accrue()
	returned := decimal.Min(amount, f.principal.Add(f.accrued))
	if returned.Sign() <= 0 {
		return decimal.Zero, nil
	}

	fromPrincipal := decimal.Min(returned, f.principal)
	fromInterest := returned.Sub(fromPrincipal)
	if err := f.realize(fromInterest); err != nil {
		return decimal.Zero, err
	}
	if err := f.token.Transfer(ctx, f.self, f.vault, returned); err != nil {
		return decimal.Zero, fmt.Errorf("failed to return %s to vault: %w", returned, err)
	}

	f.principal = f.principal.Sub(fromPrincipal)
	f.accrued = f.accrued.Sub(fromInterest)
	return returned, nil
}

// Harvest realizes accrued interest and pushes it to the vault
func (f *FixedRate) Harvest(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.accrue()
	realized := f.accrued
	if realized.IsZero() {
		return decimal.Zero, nil
	}
	if err := f.realize(realized); err != nil {
		return decimal.Zero, err
	}
	if err := f.token.Transfer(ctx, f.self, f.vault, realized); err != nil {
		return decimal.Zero, fmt.Errorf("failed to push yield to vault: %w", err)
	}
	f.accrued = decimal.Zero

	log.WithFields(log.Fields{
		"module": f.self,
		"yield":  realized.String(),
	}).Debug("Fixed rate interest realized")
	return realized, nil
}

// realize issues interest onto the book under the module's custody
func (f *FixedRate) realize(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}
	if err := f.token.Issue(f.self, amount); err != nil {
		return fmt.Errorf("failed to issue interest: %w", err)
	}
	return nil
}
