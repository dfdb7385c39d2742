// Package strategy provides yield modules a vault can route idle capital into.
package strategy

import (
	"context"
	"fmt"
	"sync"

	"givevault/models"
	"givevault/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Token is the asset book a module keeps custody on. Issue is how simulated yield enters it.
type Token interface {
	service.AssetToken
	Issue(holder models.Address, amount decimal.Decimal) error
}

// Simulated is a deterministic yield module. Yield appears only through Accrue, and its
// failure modes can be switched on to exercise the vault's error paths.
type Simulated struct {
	mu       sync.Mutex
	token    Token
	self     models.Address
	vault    models.Address
	invested decimal.Decimal
	pending  decimal.Decimal

	acceptCap  *decimal.Decimal
	divestCap  *decimal.Decimal
	investErr  error
	harvestErr error
	onInvest   func(ctx context.Context)
	onDivest   func(ctx context.Context)
}

// NewSimulated creates a module holding custody at self on behalf of vault
func NewSimulated(token Token, self, vault models.Address) *Simulated {
	return &Simulated{
		token:    token,
		self:     self,
		vault:    vault,
		invested: decimal.Zero,
		pending:  decimal.Zero,
	}
}

func (s *Simulated) Address() models.Address {
	return s.self
}

func (s *Simulated) Asset() string {
	return s.token.ID()
}

// TotalManagedAssets is principal plus unharvested yield
func (s *Simulated) TotalManagedAssets(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invested.Add(s.pending), nil
}

// Invest pulls up to amount from the vault. With an accept cap set, anything above the cap
// is left with the vault.
func (s *Simulated) Invest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	hook, investErr, acceptCap := s.onInvest, s.investErr, s.acceptCap
	s.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if investErr != nil {
		return decimal.Zero, investErr
	}

	accepted := amount
	if acceptCap != nil && accepted.GreaterThan(*acceptCap) {
		accepted = *acceptCap
	}
	if accepted.Sign() <= 0 {
		return decimal.Zero, nil
	}
	if err := s.token.Transfer(ctx, s.vault, s.self, accepted); err != nil {
		return decimal.Zero, fmt.Errorf("failed to pull %s from vault: %w", accepted, err)
	}

	s.mu.Lock()
	s.invested = s.invested.Add(accepted)
	s.mu.Unlock()
	return accepted, nil
}

// Divest returns up to amount to the vault, principal first
func (s *Simulated) Divest(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	hook := s.onDivest
	s.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	returned := decimal.Min(amount, s.invested.Add(s.pending))
	if s.divestCap != nil && returned.GreaterThan(*s.divestCap) {
		returned = *s.divestCap
	}
	if returned.Sign() <= 0 {
		return decimal.Zero, nil
	}
	if err := s.token.Transfer(ctx, s.self, s.vault, returned); err != nil {
		return decimal.Zero, fmt.Errorf("failed to return %s to vault: %w", returned, err)
	}

	fromPrincipal := decimal.Min(returned, s.invested)
	s.invested = s.invested.Sub(fromPrincipal)
	s.pending = s.pending.Sub(returned.Sub(fromPrincipal))
	return returned, nil
}

// Harvest pushes all accrued yield to the vault
func (s *Simulated) Harvest(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.harvestErr != nil {
		return decimal.Zero, s.harvestErr
	}
	realized := s.pending
	if realized.IsZero() {
		return decimal.Zero, nil
	}
	if err := s.token.Transfer(ctx, s.self, s.vault, realized); err != nil {
		return decimal.Zero, fmt.Errorf("failed to push yield to vault: %w", err)
	}
	s.pending = decimal.Zero
	return realized, nil
}

// Accrue credits amount of fresh yield to the module's custody
func (s *Simulated) Accrue(amount decimal.Decimal) error {
	if err := s.token.Issue(s.self, amount); err != nil {
		return fmt.Errorf("failed to issue yield: %w", err)
	}

	s.mu.Lock()
	s.pending = s.pending.Add(amount)
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"module": s.self,
		"yield":  amount.String(),
	}).Debug("Simulated yield accrued")
	return nil
}

// Invested returns the principal currently held
func (s *Simulated) Invested() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invested
}

// Pending returns unharvested yield
func (s *Simulated) Pending() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// CapInvest limits how much a single Invest accepts. A nil cap removes the limit.
func (s *Simulated) CapInvest(limit *decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptCap = limit
}

// CapDivest limits how much a single Divest returns. A nil cap removes the limit.
func (s *Simulated) CapDivest(limit *decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.divestCap = limit
}

// FailInvest makes Invest return err. Nil restores normal behavior.
func (s *Simulated) FailInvest(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investErr = err
}

// FailHarvest makes Harvest return err. Nil restores normal behavior.
func (s *Simulated) FailHarvest(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.harvestErr = err
}

// OnInvest registers a callback run at the start of every Invest with the caller's context
func (s *Simulated) OnInvest(hook func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvest = hook
}

// OnDivest registers a callback run at the start of every Divest with the caller's context
func (s *Simulated) OnDivest(hook func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDivest = hook
}
