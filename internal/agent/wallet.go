package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/strategy"
	"EcoBot-Chain/internal/web3/contracts"
)

// BalanceReader reads one asset balance of an address.
type BalanceReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Balances holds the three asset balances from one read, in smallest units.
type Balances struct {
	MWETH *big.Int
	DUSD  *big.Int
	DUSC  *big.Int
}

// Of returns the balance of symbol, or zero for an unknown asset.
func (b Balances) Of(symbol string) *big.Int {
	var v *big.Int
	switch symbol {
	case strategy.VolatileSymbol:
		v = b.MWETH
	case contracts.PoolDUSD.Quote:
		v = b.DUSD
	case contracts.PoolDUSC.Quote:
		v = b.DUSC
	}
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Wallet reads an agent's balances. Balances are never cached; every call
// goes to the ledger.
type Wallet struct {
	owner  common.Address
	tokens map[string]BalanceReader
}

// NewWallet binds owner to the token clients keyed by symbol.
func NewWallet(owner common.Address, tokens map[string]BalanceReader) *Wallet {
	return &Wallet{owner: owner, tokens: tokens}
}

// Owner returns the wallet address.
func (w *Wallet) Owner() common.Address { return w.owner }

// Balances reads all three assets.
func (w *Wallet) Balances(ctx context.Context) (Balances, error) {
	var (
		out Balances
		err error
	)
	if out.MWETH, err = w.balance(ctx, strategy.VolatileSymbol); err != nil {
		return Balances{}, err
	}
	if out.DUSD, err = w.balance(ctx, contracts.PoolDUSD.Quote); err != nil {
		return Balances{}, err
	}
	if out.DUSC, err = w.balance(ctx, contracts.PoolDUSC.Quote); err != nil {
		return Balances{}, err
	}
	return out, nil
}

func (w *Wallet) balance(ctx context.Context, symbol string) (*big.Int, error) {
	token, ok := w.tokens[symbol]
	if !ok || token == nil {
		return nil, errMissing("代币 " + symbol)
	}
	amount, err := token.BalanceOf(ctx, w.owner)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 余额失败: %w", symbol, err)
	}
	return amount, nil
}

func logBalances(logger *slog.Logger, label string, b Balances) {
	logger.Info(fmt.Sprintf("%s balances - mWETH: %s, dUSD: %s, dUSC: %s", label,
		market.FormatUnits(b.MWETH, 6), market.FormatUnits(b.DUSD, 2), market.FormatUnits(b.DUSC, 2)))
}
