package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// mulDivDown returns floor(a*b/c) for non-negative integers. c must be positive.
func mulDivDown(a, b, c decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// mulDivUp returns ceil(a*b/c) for non-negative integers. c must be positive.
func mulDivUp(a, b, c decimal.Decimal) decimal.Decimal {
	q, r := a.Mul(b).QuoRem(c, 0)
	if r.Sign() > 0 {
		return q.Add(decimal.NewFromInt(1))
	}
	return q
}

// checkAmount validates a caller-supplied quantity of base units
func checkAmount(amount decimal.Decimal) error {
	if err := checkQuantity(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

// checkQuantity accepts zero; conversions and previews of nothing are nothing
func checkQuantity(amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	if !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrFractionalAmount, amount)
	}
	return nil
}

// shareMath holds the two quantities every conversion depends on
type shareMath struct {
	supply      decimal.Decimal
	totalAssets decimal.Decimal
}

// toShares is the rounding-down asset->share conversion used by deposit and convertToShares
func (m shareMath) toShares(assets decimal.Decimal) (decimal.Decimal, error) {
	if m.supply.IsZero() {
		return assets, nil
	}
	if m.totalAssets.IsZero() {
		return decimal.Zero, ErrVaultInsolvent
	}
	return mulDivDown(assets, m.supply, m.totalAssets), nil
}

// toAssets is the rounding-down share->asset conversion used by redeem and convertToAssets
func (m shareMath) toAssets(shares decimal.Decimal) decimal.Decimal {
	if m.supply.IsZero() {
		return shares
	}
	return mulDivDown(shares, m.totalAssets, m.supply)
}

// mintCost is the rounding-up number of assets needed to mint shares
func (m shareMath) mintCost(shares decimal.Decimal) (decimal.Decimal, error) {
	if m.supply.IsZero() {
		return shares, nil
	}
	if m.totalAssets.IsZero() {
		return decimal.Zero, ErrVaultInsolvent
	}
	return mulDivUp(shares, m.totalAssets, m.supply), nil
}

// withdrawCost is the rounding-up number of shares burned to release assets
func (m shareMath) withdrawCost(assets decimal.Decimal) (decimal.Decimal, error) {
	if m.supply.IsZero() {
		return assets, nil
	}
	if m.totalAssets.IsZero() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	return mulDivUp(assets, m.supply, m.totalAssets), nil
}
