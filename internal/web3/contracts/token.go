package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/web3"
)

const tokenABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var tokenABI = mustParseABI(tokenABIJSON)

// Token is an ERC20 asset held by the agents.
type Token struct {
	binding
}

// NewToken binds the ERC20 at address.
func NewToken(symbol string, address common.Address, gw web3.Gateway) *Token {
	return &Token{binding{name: symbol, address: address, abi: tokenABI, gw: gw}}
}

// Symbol returns the configured ticker of the asset.
func (t *Token) Symbol() string { return t.name }

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.address }

// BalanceOf reads the owner's balance in the token's smallest unit.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.viewBig(ctx, "balanceOf", 0, owner)
}

// Approve builds the allowance grant letting spender move exactly amount.
func (t *Token) Approve(spender common.Address, amount *big.Int) (web3.Call, error) {
	if err := requirePositive("授权数量", amount); err != nil {
		return web3.Call{}, err
	}
	return t.call("approve", GasApprove, spender, new(big.Int).Set(amount))
}
