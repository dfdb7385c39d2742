// Package forwarder hands harvested yield to beneficiaries.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"givevault/events"
	"givevault/models"
	"givevault/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnsupportedAsset = errors.New("asset is not routed by this forwarder")
	ErrInvalidDonation  = errors.New("donation must move a positive amount to a non-zero beneficiary")
)

// Router forwards donations of one asset and announces each settled transfer
type Router struct {
	self      models.Address
	token     service.AssetToken
	publisher service.EventPublisher

	mu      sync.Mutex
	donated map[models.Address]decimal.Decimal
}

// NewRouter creates a forwarder for token's asset. publisher receives a DonationForwarded
// event for every successful transfer.
func NewRouter(self models.Address, token service.AssetToken, publisher service.EventPublisher) *Router {
	return &Router{
		self:      self,
		token:     token,
		publisher: publisher,
		donated:   make(map[models.Address]decimal.Decimal),
	}
}

// Address returns the forwarder identity
func (r *Router) Address() models.Address {
	return r.self
}

// Forward moves amount from initiator to beneficiary. Nothing is published unless the
// transfer succeeded.
func (r *Router) Forward(ctx context.Context, initiator models.Address, asset string, beneficiary models.Address, amount decimal.Decimal) error {
	if asset != r.token.ID() {
		return fmt.Errorf("%w: %q", ErrUnsupportedAsset, asset)
	}
	if beneficiary.IsZero() || initiator.IsZero() || amount.Sign() <= 0 {
		return ErrInvalidDonation
	}

	if err := r.token.Transfer(ctx, initiator, beneficiary, amount); err != nil {
		return fmt.Errorf("failed to transfer donation to %s: %w", beneficiary, err)
	}

	r.mu.Lock()
	total, ok := r.donated[beneficiary]
	if !ok {
		total = decimal.Zero
	}
	r.donated[beneficiary] = total.Add(amount)
	r.mu.Unlock()

	if r.publisher != nil {
		r.publisher.Publish(events.DonationForwardedEvent{
			Asset:       asset,
			Beneficiary: beneficiary,
			Amount:      amount,
			Initiator:   initiator,
		})
	}

	log.WithFields(log.Fields{
		"asset":       asset,
		"beneficiary": beneficiary,
		"amount":      amount.String(),
		"initiator":   initiator,
	}).Info("Donation forwarded")
	return nil
}

// Donated returns everything this router has forwarded to beneficiary
func (r *Router) Donated(beneficiary models.Address) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if total, ok := r.donated[beneficiary]; ok {
		return total
	}
	return decimal.Zero
}
