package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/web3"
)

// PoolDecimals is the fixed-point scale of pool quotes and token amounts.
const PoolDecimals = 18

const dexABIJSON = `[
  {"type":"function","name":"getDUSDPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDUSCPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"swapDUSDForWETH","stateMutability":"nonpayable",
   "inputs":[{"name":"dusdIn","type":"uint256"}],"outputs":[{"name":"wethOut","type":"uint256"}]},
  {"type":"function","name":"swapWETHForDUSD","stateMutability":"nonpayable",
   "inputs":[{"name":"wethIn","type":"uint256"}],"outputs":[{"name":"dusdOut","type":"uint256"}]},
  {"type":"function","name":"swapDUSCForWETH","stateMutability":"nonpayable",
   "inputs":[{"name":"duscIn","type":"uint256"}],"outputs":[{"name":"wethOut","type":"uint256"}]},
  {"type":"function","name":"swapWETHForDUSC","stateMutability":"nonpayable",
   "inputs":[{"name":"wethIn","type":"uint256"}],"outputs":[{"name":"duscOut","type":"uint256"}]}
]`

var dexABI = mustParseABI(dexABIJSON)

// Pool identifies one of the two quote/mWETH pools hosted by the DEX.
type Pool struct {
	Name        string
	Quote       string
	PriceMethod string
	BuyMethod   string
	SellMethod  string
}

var (
	// PoolDUSD is the dUSD/mWETH pool.
	PoolDUSD = Pool{
		Name:        "dUSD/mWETH",
		Quote:       "dUSD",
		PriceMethod: "getDUSDPrice",
		BuyMethod:   "swapDUSDForWETH",
		SellMethod:  "swapWETHForDUSD",
	}
	// PoolDUSC is the dUSC/mWETH pool.
	PoolDUSC = Pool{
		Name:        "dUSC/mWETH",
		Quote:       "dUSC",
		PriceMethod: "getDUSCPrice",
		BuyMethod:   "swapDUSCForWETH",
		SellMethod:  "swapWETHForDUSC",
	}
)

// DEX is the AMM contract hosting both pools.
type DEX struct {
	binding
}

// NewDEX binds the AMM at address.
func NewDEX(address common.Address, gw web3.Gateway) *DEX {
	return &DEX{binding{name: "DEX", address: address, abi: dexABI, gw: gw}}
}

// Address returns the AMM contract address, the spender of swap approvals.
func (d *DEX) Address() common.Address { return d.address }

// PoolPrice reads the pool's quote per mWETH (PoolDecimals scale).
func (d *DEX) PoolPrice(ctx context.Context, pool Pool) (*big.Int, error) {
	return d.viewBig(ctx, pool.PriceMethod, 0)
}

// BuyVolatile swaps quoteIn of the pool's quote asset for mWETH.
func (d *DEX) BuyVolatile(pool Pool, quoteIn *big.Int) (web3.Call, error) {
	if err := requirePositive("兑换数量", quoteIn); err != nil {
		return web3.Call{}, err
	}
	return d.call(pool.BuyMethod, GasSwap, new(big.Int).Set(quoteIn))
}

// SellVolatile swaps volatileIn mWETH for the pool's quote asset.
func (d *DEX) SellVolatile(pool Pool, volatileIn *big.Int) (web3.Call, error) {
	if err := requirePositive("兑换数量", volatileIn); err != nil {
		return web3.Call{}, err
	}
	return d.call(pool.SellMethod, GasSwap, new(big.Int).Set(volatileIn))
}
