package executor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/strategy"
	"EcoBot-Chain/internal/web3"
	"EcoBot-Chain/internal/web3/contracts"
)

// Contracts are the typed clients an action may touch.
type Contracts struct {
	Tokens  map[string]*contracts.Token
	DEX     *contracts.DEX
	Lending *contracts.Lending
}

// Token returns the client for symbol.
func (c Contracts) Token(symbol string) (*contracts.Token, error) {
	token, ok := c.Tokens[symbol]
	if !ok || token == nil {
		return nil, xerrors.New(xerrors.CodeConfigurationMissing, fmt.Sprintf("未配置代币 %s", symbol))
	}
	return token, nil
}

// Result lists the transactions an action produced, in submission order.
type Result struct {
	Hashes []common.Hash
}

// Last returns the hash of the final transaction, or the zero hash.
func (r Result) Last() common.Hash {
	if len(r.Hashes) == 0 {
		return common.Hash{}
	}
	return r.Hashes[len(r.Hashes)-1]
}

func (r *Result) add(hashes ...common.Hash) {
	for _, h := range hashes {
		if h != (common.Hash{}) {
			r.Hashes = append(r.Hashes, h)
		}
	}
}

// Actions turns intended actions into staged ledger operations.
type Actions struct {
	exec      *Executor
	contracts Contracts
}

// NewActions binds the executor to the ecosystem contracts.
func NewActions(exec *Executor, c Contracts) *Actions {
	return &Actions{exec: exec, contracts: c}
}

// Address returns the acting agent's address.
func (a *Actions) Address() common.Address { return a.exec.Address() }

// Execute submits action. Swaps and collateral deposits are preceded by an
// exact-amount approval; borrow and liquidate are submitted directly.
func (a *Actions) Execute(ctx context.Context, action strategy.Action) (Result, error) {
	switch action.Kind {
	case strategy.KindNoOp:
		return Result{}, nil
	case strategy.KindBuy, strategy.KindSell:
		return a.swap(ctx, action)
	case strategy.KindBorrow:
		return a.borrow(ctx, action)
	case strategy.KindLiquidate:
		if a.contracts.Lending == nil {
			return Result{}, errMissing("借贷合约")
		}
		call, err := a.contracts.Lending.Liquidate(action.Target)
		if err != nil {
			return Result{}, err
		}
		var res Result
		hash, err := a.exec.Transact(ctx, call)
		res.add(hash)
		return res, err
	default:
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "未知的操作类型: "+action.Kind.String())
	}
}

func (a *Actions) swap(ctx context.Context, action strategy.Action) (Result, error) {
	dex := a.contracts.DEX
	if dex == nil {
		return Result{}, errMissing("DEX 合约")
	}
	var (
		call web3.Call
		err  error
	)
	if action.Kind == strategy.KindBuy {
		call, err = dex.BuyVolatile(action.Pool, action.Amount)
	} else {
		call, err = dex.SellVolatile(action.Pool, action.Amount)
	}
	if err != nil {
		return Result{}, err
	}
	return a.staged(ctx, action.AssetIn, dex.Address(), action.Amount, call)
}

// borrow deposits the collateral (approval then deposit) and, only when the
// deposit confirmed, borrows the debt assets.
func (a *Actions) borrow(ctx context.Context, action strategy.Action) (Result, error) {
	lending := a.contracts.Lending
	if lending == nil {
		return Result{}, errMissing("借贷合约")
	}
	deposit, err := lending.DepositCollateral(action.Collateral)
	if err != nil {
		return Result{}, err
	}
	res, err := a.staged(ctx, strategy.VolatileSymbol, lending.Address(), action.Collateral, deposit)
	if err != nil {
		return res, err
	}
	borrow, err := lending.Borrow(action.DebtDUSD, action.DebtDUSC)
	if err != nil {
		return res, err
	}
	hash, err := a.exec.Transact(ctx, borrow)
	res.add(hash)
	return res, err
}

func (a *Actions) staged(ctx context.Context, symbol string, spender common.Address, amount *big.Int, call web3.Call) (Result, error) {
	token, err := a.contracts.Token(symbol)
	if err != nil {
		return Result{}, err
	}
	approval, err := token.Approve(spender, amount)
	if err != nil {
		return Result{}, err
	}
	var res Result
	staged, err := a.exec.ApproveAndTransact(ctx, approval, call)
	res.add(staged.Approval, staged.Action)
	return res, err
}

func errMissing(what string) error {
	return xerrors.New(xerrors.CodeConfigurationMissing, "未配置"+what)
}
