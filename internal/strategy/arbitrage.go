package strategy

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/web3/contracts"
)

// PoolQuote pairs a pool with its quoted price.
type PoolQuote struct {
	Pool  contracts.Pool
	Price market.Price
}

// Route is a two-leg arbitrage: buy the volatile asset in From, sell it in To.
type Route struct {
	From contracts.Pool
	To   contracts.Pool
}

// Name is the route label used in statistics, e.g. "dusd_to_dusc".
func (r Route) Name() string {
	return strings.ToLower(r.From.Quote) + "_to_" + strings.ToLower(r.To.Quote)
}

// ArbitrageConfig bounds the arbitrage strategy.
type ArbitrageConfig struct {
	// ThresholdBps is the minimum relative divergence, in basis points of
	// the first pool's price.
	ThresholdBps int64
	// Cap bounds the first leg's input amount.
	Cap *big.Int
}

// Arbitrage exploits divergence between the two pools.
type Arbitrage struct {
	cfg ArbitrageConfig
}

// NewArbitrage builds the arbitrage strategy.
func NewArbitrage(cfg ArbitrageConfig) *Arbitrage {
	return &Arbitrage{cfg: cfg}
}

// Route picks a direction when |a-b| exceeds the threshold relative to a.
// The route starts in the pool where the volatile asset is cheaper.
func (s *Arbitrage) Route(a, b PoolQuote) (Route, bool) {
	scale := a.Price.Scale
	if b.Price.Scale > scale {
		scale = b.Price.Scale
	}
	pa := a.Price.Rescale(scale).Value
	pb := b.Price.Rescale(scale).Value

	diff := new(big.Int).Sub(pa, pb)
	diff.Abs(diff).Mul(diff, big.NewInt(10_000))
	limit := new(big.Int).Mul(pa, big.NewInt(s.cfg.ThresholdBps))
	if diff.Cmp(limit) <= 0 {
		return Route{}, false
	}
	if pa.Cmp(pb) < 0 {
		return Route{From: a.Pool, To: b.Pool}, true
	}
	return Route{From: b.Pool, To: a.Pool}, true
}

// Size bounds the first leg by half the available balance and the cap.
// A zero result means the route cannot be funded this cycle.
func (s *Arbitrage) Size(balance *big.Int) *big.Int {
	amount := half(orZero(balance))
	if s.cfg.Cap != nil && s.cfg.Cap.Sign() > 0 && amount.Cmp(s.cfg.Cap) > 0 {
		amount.Set(s.cfg.Cap)
	}
	return amount
}

// LiquidationConfig sets the working-balance rule of the liquidator.
type LiquidationConfig struct {
	Threshold *big.Int
	TopUp     *big.Int
}

// LiquidationObservation is the state the liquidator reads each cycle.
type LiquidationObservation struct {
	Target          common.Address
	Eligible        bool
	DUSDBalance     *big.Int
	DUSCBalance     *big.Int
	VolatileBalance *big.Int
}

// Liquidation decides whether and how to liquidate the monitored borrower.
type Liquidation struct {
	cfg LiquidationConfig
}

// NewLiquidation builds the liquidation strategy.
func NewLiquidation(cfg LiquidationConfig) *Liquidation {
	return &Liquidation{cfg: cfg}
}

// Plan returns the ordered actions for this cycle: nothing when the target
// is not eligible, otherwise an optional collateralized top-up borrow
// followed by the liquidation itself.
func (l *Liquidation) Plan(obs LiquidationObservation) []Action {
	if !obs.Eligible {
		return nil
	}
	plan := make([]Action, 0, 2)
	threshold := orZero(l.cfg.Threshold)
	low := orZero(obs.DUSDBalance).Cmp(threshold) < 0 || orZero(obs.DUSCBalance).Cmp(threshold) < 0
	if low && orZero(obs.VolatileBalance).Sign() > 0 && l.cfg.TopUp != nil && l.cfg.TopUp.Sign() > 0 {
		plan = append(plan, Borrow(obs.VolatileBalance, l.cfg.TopUp, l.cfg.TopUp))
	}
	return append(plan, Liquidate(obs.Target))
}
