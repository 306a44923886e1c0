// Package strategy holds the pure decision functions of the agents. Nothing
// here touches the ledger: observations come in, at most one intended action
// (or a short ordered plan) comes out.
package strategy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/web3/contracts"
)

// Kind tags an intended action.
type Kind int

const (
	KindNoOp Kind = iota
	KindBuy
	KindSell
	KindBorrow
	KindLiquidate
)

func (k Kind) String() string {
	switch k {
	case KindNoOp:
		return "noop"
	case KindBuy:
		return "buy"
	case KindSell:
		return "sell"
	case KindBorrow:
		return "borrow"
	case KindLiquidate:
		return "liquidate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action is the intended action of one cycle. It is computed from fresh
// state and consumed immediately; it is never queued.
type Action struct {
	Kind Kind

	// Buy and Sell.
	Pool    contracts.Pool
	AssetIn string
	Amount  *big.Int

	// Borrow.
	Collateral *big.Int
	DebtDUSD   *big.Int
	DebtDUSC   *big.Int

	// Liquidate.
	Target common.Address
}

// NoOp is the empty action.
func NoOp() Action { return Action{Kind: KindNoOp} }

// Buy spends amount of the pool's quote asset on the volatile asset.
func Buy(pool contracts.Pool, amount *big.Int) Action {
	return Action{Kind: KindBuy, Pool: pool, AssetIn: pool.Quote, Amount: new(big.Int).Set(amount)}
}

// Sell spends amount of the volatile asset on the pool's quote asset.
func Sell(pool contracts.Pool, amount *big.Int) Action {
	return Action{Kind: KindSell, Pool: pool, AssetIn: VolatileSymbol, Amount: new(big.Int).Set(amount)}
}

// Borrow deposits collateral and borrows both debt assets.
func Borrow(collateral, dusd, dusc *big.Int) Action {
	return Action{
		Kind:       KindBorrow,
		AssetIn:    VolatileSymbol,
		Collateral: new(big.Int).Set(collateral),
		DebtDUSD:   new(big.Int).Set(dusd),
		DebtDUSC:   new(big.Int).Set(dusc),
	}
}

// Liquidate closes target's position.
func Liquidate(target common.Address) Action {
	return Action{Kind: KindLiquidate, Target: target}
}

// VolatileSymbol is the asset traded against both quote assets.
const VolatileSymbol = "mWETH"

// IsNoOp reports whether nothing should be submitted.
func (a Action) IsNoOp() bool { return a.Kind == KindNoOp }

func (a Action) String() string {
	switch a.Kind {
	case KindBuy, KindSell:
		return fmt.Sprintf("%s %s %s in %s", a.Kind, market.FormatUnits(a.Amount, 6), a.AssetIn, a.Pool.Name)
	case KindBorrow:
		return fmt.Sprintf("borrow dUSD=%s dUSC=%s against %s %s",
			market.FormatUnits(a.DebtDUSD, 2), market.FormatUnits(a.DebtDUSC, 2),
			market.FormatUnits(a.Collateral, 6), VolatileSymbol)
	case KindLiquidate:
		return "liquidate " + a.Target.Hex()
	default:
		return a.Kind.String()
	}
}
