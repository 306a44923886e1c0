package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/web3"
)

// OracleDecimals is the fixed-point scale of oracle answers.
const OracleDecimals = 8

const oracleABIJSON = `[
  {"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],
   "outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},
              {"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},
              {"name":"answeredInRound","type":"uint80"}]},
  {"type":"function","name":"setPrice","stateMutability":"nonpayable",
   "inputs":[{"name":"_price","type":"int256"}],"outputs":[]}
]`

var oracleABI = mustParseABI(oracleABIJSON)

// Oracle is the Chainlink style price feed contract.
type Oracle struct {
	binding
}

// NewOracle binds the oracle at address.
func NewOracle(address common.Address, gw web3.Gateway) *Oracle {
	return &Oracle{binding{name: "Oracle", address: address, abi: oracleABI, gw: gw}}
}

// Address returns the oracle contract address.
func (o *Oracle) Address() common.Address { return o.address }

// LatestAnswer reads the answer of the latest round (OracleDecimals scale).
func (o *Oracle) LatestAnswer(ctx context.Context) (*big.Int, error) {
	return o.viewBig(ctx, "latestRoundData", 1)
}

// SetPrice builds the price update transaction.
func (o *Oracle) SetPrice(price *big.Int) (web3.Call, error) {
	if err := requirePositive("预言机价格", price); err != nil {
		return web3.Call{}, err
	}
	return o.call("setPrice", GasSetPrice, new(big.Int).Set(price))
}
