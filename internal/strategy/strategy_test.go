package strategy

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/web3/contracts"
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

func ledgerPrice(n int64) market.Price { return market.NewPrice(units(n), market.LedgerScale) }

func oraclePrice(n int64) market.Price {
	return market.NewPrice(big.NewInt(n*100_000_000), market.OracleScale)
}

func newRetail(draw *big.Int) *Retail {
	return NewRetail(RetailConfig{
		Pool:    contracts.PoolDUSD,
		MinSize: milli(10),
		MaxSize: milli(300),
	}, FixedSize{Value: draw})
}

func TestRetailBuysUndervaluedPool(t *testing.T) {
	retail := newRetail(milli(300))
	obs := RetailObservation{
		Oracle:          oraclePrice(2000),
		PoolPrice:       ledgerPrice(1900),
		QuoteBalance:    units(500),
		VolatileBalance: new(big.Int),
	}

	action := retail.Decide(obs)
	if action.Kind != KindBuy || action.AssetIn != "dUSD" {
		t.Fatalf("expected buy with dUSD, got %s", action)
	}
	// 0.3 * 1900 = 570 exceeds half the balance.
	if action.Amount.Cmp(units(250)) != 0 {
		t.Fatalf("expected amount capped at half balance, got %s", action.Amount)
	}

	small := newRetail(milli(100)).Decide(obs)
	if small.Amount.Cmp(units(190)) != 0 {
		t.Fatalf("expected draw sized buy of 190, got %s", small.Amount)
	}
}

func TestRetailFallbackAfterFailedBuy(t *testing.T) {
	retail := newRetail(milli(300))
	failed := Buy(contracts.PoolDUSD, units(250))

	fallback := retail.Fallback(failed, units(250), milli(40))
	if fallback.Kind != KindSell || fallback.Amount.Cmp(milli(20)) != 0 {
		t.Fatalf("expected sell of half volatile balance, got %s", fallback)
	}
	if got := retail.Fallback(failed, units(250), new(big.Int)); !got.IsNoOp() {
		t.Fatalf("expected noop without volatile balance, got %s", got)
	}
	if got := retail.Fallback(Sell(contracts.PoolDUSD, milli(10)), units(100), nil); got.Kind != KindBuy || got.Amount.Cmp(units(50)) != 0 {
		t.Fatalf("expected buy with half quote balance, got %s", got)
	}
}

func TestRetailSellsWhenPoolIsRich(t *testing.T) {
	retail := newRetail(milli(100))
	action := retail.Decide(RetailObservation{
		Oracle:          oraclePrice(2000),
		PoolPrice:       ledgerPrice(2100),
		QuoteBalance:    units(500),
		VolatileBalance: milli(500),
	})
	if action.Kind != KindSell || action.Amount.Cmp(milli(100)) != 0 {
		t.Fatalf("expected sell of the draw, got %s", action)
	}
}

func TestRetailOppositeSideAndNoOp(t *testing.T) {
	retail := newRetail(milli(100))
	// Pool is rich but there is not enough mWETH to sell the draw.
	action := retail.Decide(RetailObservation{
		Oracle:          oraclePrice(2000),
		PoolPrice:       ledgerPrice(2100),
		QuoteBalance:    units(100),
		VolatileBalance: milli(1),
	})
	if action.Kind != KindBuy {
		t.Fatalf("expected opposite side buy, got %s", action)
	}

	empty := retail.Decide(RetailObservation{
		Oracle:    oraclePrice(2000),
		PoolPrice: ledgerPrice(1900),
	})
	if !empty.IsNoOp() {
		t.Fatalf("expected noop with empty wallet, got %s", empty)
	}
}

func TestArbitrageRouteThreshold(t *testing.T) {
	arb := NewArbitrage(ArbitrageConfig{ThresholdBps: 100, Cap: units(1000)})

	route, ok := arb.Route(
		PoolQuote{Pool: contracts.PoolDUSD, Price: ledgerPrice(99)},
		PoolQuote{Pool: contracts.PoolDUSC, Price: ledgerPrice(101)},
	)
	if !ok {
		t.Fatalf("expected a route for 99 vs 101")
	}
	if route.From != contracts.PoolDUSD || route.To != contracts.PoolDUSC || route.Name() != "dusd_to_dusc" {
		t.Fatalf("unexpected route %+v", route)
	}

	reverse, ok := arb.Route(
		PoolQuote{Pool: contracts.PoolDUSD, Price: ledgerPrice(101)},
		PoolQuote{Pool: contracts.PoolDUSC, Price: ledgerPrice(99)},
	)
	if !ok || reverse.Name() != "dusc_to_dusd" {
		t.Fatalf("expected reverse route, got %+v %v", reverse, ok)
	}

	if _, ok := arb.Route(
		PoolQuote{Pool: contracts.PoolDUSD, Price: ledgerPrice(1000)},
		PoolQuote{Pool: contracts.PoolDUSC, Price: ledgerPrice(1005)},
	); ok {
		t.Fatalf("expected no route under threshold")
	}
}

func TestArbitrageSize(t *testing.T) {
	arb := NewArbitrage(ArbitrageConfig{ThresholdBps: 100, Cap: units(1000)})
	if got := arb.Size(units(500)); got.Cmp(units(250)) != 0 {
		t.Fatalf("expected half balance, got %s", got)
	}
	if got := arb.Size(units(5000)); got.Cmp(units(1000)) != 0 {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := arb.Size(nil); got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestLiquidationPlan(t *testing.T) {
	liq := NewLiquidation(LiquidationConfig{Threshold: units(1000), TopUp: units(1000)})
	target := common.HexToAddress("0x0000000000000000000000000000000000000003")

	if plan := liq.Plan(LiquidationObservation{Target: target}); len(plan) != 0 {
		t.Fatalf("expected empty plan for healthy position, got %v", plan)
	}

	plan := liq.Plan(LiquidationObservation{
		Target:          target,
		Eligible:        true,
		DUSDBalance:     units(10),
		DUSCBalance:     units(2000),
		VolatileBalance: units(2),
	})
	if len(plan) != 2 || plan[0].Kind != KindBorrow || plan[1].Kind != KindLiquidate {
		t.Fatalf("expected borrow then liquidate, got %v", plan)
	}
	if plan[0].Collateral.Cmp(units(2)) != 0 || plan[0].DebtDUSD.Cmp(units(1000)) != 0 {
		t.Fatalf("unexpected borrow sizing %s", plan[0])
	}
	if plan[1].Target != target {
		t.Fatalf("unexpected target %s", plan[1].Target.Hex())
	}

	funded := liq.Plan(LiquidationObservation{
		Target:          target,
		Eligible:        true,
		DUSDBalance:     units(1000),
		DUSCBalance:     units(1000),
		VolatileBalance: units(2),
	})
	if len(funded) != 1 || funded[0].Kind != KindLiquidate {
		t.Fatalf("expected direct liquidation, got %v", funded)
	}
}

func TestRandomSizeStaysInRange(t *testing.T) {
	sizes := NewRandomSize(7)
	lo, hi := milli(10), milli(300)
	for i := 0; i < 200; i++ {
		v := sizes.Draw(lo, hi)
		if v.Cmp(lo) < 0 || v.Cmp(hi) > 0 {
			t.Fatalf("draw %s out of range", v)
		}
	}
}
