// Package market reads the off-chain reference price and the on-chain oracle
// and pool quotes, and carries them as fixed-point values with an explicit
// scale so that prices from different sources compare correctly.
package market

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Common scales used across the ecosystem.
const (
	OracleScale uint8 = 8
	LedgerScale uint8 = 18
)

// Price is a fixed-point decimal: Value / 10^Scale.
type Price struct {
	Value *big.Int
	Scale uint8
}

// NewPrice copies value into a Price with the given scale.
func NewPrice(value *big.Int, scale uint8) Price {
	if value == nil {
		value = new(big.Int)
	}
	return Price{Value: new(big.Int).Set(value), Scale: scale}
}

// PriceFromDecimal converts d to fixed point, truncating digits beyond scale.
func PriceFromDecimal(d decimal.Decimal, scale uint8) Price {
	return Price{Value: d.Shift(int32(scale)).BigInt(), Scale: scale}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Rescale converts the price to another scale. Reducing the scale truncates
// toward zero, so a round trip through a smaller scale keeps that scale's
// precision and a round trip through a larger scale is exact.
func (p Price) Rescale(scale uint8) Price {
	value := p.value()
	switch {
	case scale == p.Scale:
		return Price{Value: new(big.Int).Set(value), Scale: scale}
	case scale > p.Scale:
		return Price{Value: new(big.Int).Mul(value, pow10(scale-p.Scale)), Scale: scale}
	default:
		return Price{Value: new(big.Int).Quo(value, pow10(p.Scale-scale)), Scale: scale}
	}
}

// Cmp compares two prices after normalizing both to the larger scale.
func (p Price) Cmp(other Price) int {
	scale := p.Scale
	if other.Scale > scale {
		scale = other.Scale
	}
	return p.Rescale(scale).Value.Cmp(other.Rescale(scale).Value)
}

// Sign returns -1, 0 or +1.
func (p Price) Sign() int { return p.value().Sign() }

// Decimal returns the human readable value.
func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(p.value(), -int32(p.Scale))
}

// String renders the price with two decimals, as in log lines.
func (p Price) String() string {
	return p.Decimal().StringFixed(2)
}

// Quote converts an amount of the volatile asset (LedgerScale units) into
// quote asset units at this price, rounding down.
func (p Price) Quote(volatileAmount *big.Int) *big.Int {
	if volatileAmount == nil {
		return new(big.Int)
	}
	perUnit := p.Rescale(LedgerScale).Value
	out := new(big.Int).Mul(volatileAmount, perUnit)
	return out.Quo(out, pow10(LedgerScale))
}

// FormatUnits renders a ledger amount (LedgerScale) with the given precision.
func FormatUnits(amount *big.Int, places int32) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return decimal.NewFromBigInt(amount, -int32(LedgerScale)).StringFixed(places)
}

func (p Price) value() *big.Int {
	if p.Value == nil {
		return new(big.Int)
	}
	return p.Value
}
