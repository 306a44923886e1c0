package strategy

import (
	"math/big"

	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/web3/contracts"
)

// RetailConfig sizes the noise trader.
type RetailConfig struct {
	Pool    contracts.Pool
	MinSize *big.Int
	MaxSize *big.Int
}

// RetailObservation is the state the retailer reads each cycle.
type RetailObservation struct {
	Oracle          market.Price
	PoolPrice       market.Price
	QuoteBalance    *big.Int
	VolatileBalance *big.Int
}

// Retail perturbs one pool with alternating buy and sell pressure, biased
// toward the side that is cheap relative to the oracle.
type Retail struct {
	cfg   RetailConfig
	sizes SizeSource
}

// NewRetail builds the retailer strategy.
func NewRetail(cfg RetailConfig, sizes SizeSource) *Retail {
	return &Retail{cfg: cfg, sizes: sizes}
}

// Pool returns the traded pool.
func (r *Retail) Pool() contracts.Pool { return r.cfg.Pool }

// Decide maps one observation to at most one swap.
//
// The size draw is expressed in the volatile asset. A buy spends
// min(quote/2, draw*poolPrice) of the quote asset; a sell spends the draw.
func (r *Retail) Decide(obs RetailObservation) Action {
	draw := r.sizes.Draw(r.cfg.MinSize, r.cfg.MaxSize)
	quoteBal := orZero(obs.QuoteBalance)
	volatileBal := orZero(obs.VolatileBalance)

	buyAmount := minBig(half(quoteBal), obs.PoolPrice.Quote(draw))
	undervalued := obs.PoolPrice.Cmp(obs.Oracle) < 0

	switch {
	case undervalued && buyAmount.Sign() > 0:
		return Buy(r.cfg.Pool, buyAmount)
	case draw.Sign() > 0 && volatileBal.Cmp(draw) >= 0:
		return Sell(r.cfg.Pool, draw)
	case buyAmount.Sign() > 0:
		return Buy(r.cfg.Pool, buyAmount)
	case volatileBal.Sign() > 0:
		if amount := half(volatileBal); amount.Sign() > 0 {
			return Sell(r.cfg.Pool, amount)
		}
	}
	return NoOp()
}

// Fallback is tried once after failed fails: the opposite side at half of
// the current holdings of that side's input asset, or NoOp when there are none.
func (r *Retail) Fallback(failed Action, quoteBalance, volatileBalance *big.Int) Action {
	switch failed.Kind {
	case KindBuy:
		if amount := half(orZero(volatileBalance)); amount.Sign() > 0 {
			return Sell(r.cfg.Pool, amount)
		}
	case KindSell:
		if amount := half(orZero(quoteBalance)); amount.Sign() > 0 {
			return Buy(r.cfg.Pool, amount)
		}
	}
	return NoOp()
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func half(v *big.Int) *big.Int {
	return new(big.Int).Rsh(v, 1)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
