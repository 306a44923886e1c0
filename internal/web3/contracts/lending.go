package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/web3"
)

const lendingABIJSON = `[
  {"type":"function","name":"canLiquidate","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"liquidate","stateMutability":"nonpayable",
   "inputs":[{"name":"user","type":"address"}],"outputs":[]},
  {"type":"function","name":"depositCollateral","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"borrow","stateMutability":"nonpayable",
   "inputs":[{"name":"dusdAmount","type":"uint256"},{"name":"duscAmount","type":"uint256"}],"outputs":[]}
]`

var lendingABI = mustParseABI(lendingABIJSON)

// Lending is the collateralized lending market.
type Lending struct {
	binding
}

// NewLending binds the lending market at address.
func NewLending(address common.Address, gw web3.Gateway) *Lending {
	return &Lending{binding{name: "Lending", address: address, abi: lendingABI, gw: gw}}
}

// Address returns the lending contract address, the spender of collateral approvals.
func (l *Lending) Address() common.Address { return l.address }

// CanLiquidate reports whether user's position is eligible for liquidation.
func (l *Lending) CanLiquidate(ctx context.Context, user common.Address) (bool, error) {
	values, err := l.view(ctx, "canLiquidate", user)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, xerrors.New(xerrors.CodeCallReverted, "canLiquidate 返回值为空")
	}
	eligible, ok := values[0].(bool)
	if !ok {
		return false, xerrors.New(xerrors.CodeCallReverted, "canLiquidate 返回值类型异常")
	}
	return eligible, nil
}

// Liquidate builds the liquidation of user's position.
func (l *Lending) Liquidate(user common.Address) (web3.Call, error) {
	return l.call("liquidate", GasLiquidate, user)
}

// DepositCollateral builds a collateral deposit of mWETH.
func (l *Lending) DepositCollateral(amount *big.Int) (web3.Call, error) {
	if err := requirePositive("抵押数量", amount); err != nil {
		return web3.Call{}, err
	}
	return l.call("depositCollateral", GasDeposit, new(big.Int).Set(amount))
}

// Borrow builds a borrow of both debt assets.
func (l *Lending) Borrow(dusdAmount, duscAmount *big.Int) (web3.Call, error) {
	if dusdAmount == nil {
		dusdAmount = new(big.Int)
	}
	if duscAmount == nil {
		duscAmount = new(big.Int)
	}
	if dusdAmount.Sign() <= 0 && duscAmount.Sign() <= 0 {
		return web3.Call{}, xerrors.New(xerrors.CodeInvalidArgument, "借款数量不能全部为零")
	}
	return l.call("borrow", GasBorrow, new(big.Int).Set(dusdAmount), new(big.Int).Set(duscAmount))
}
