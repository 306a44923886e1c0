package web3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Gateway defines the ledger operations the agents rely on. Implementations
// must be safe to call from a single agent loop; no pipelining is assumed.
type Gateway interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

// Call is an ABI encoded, state-changing contract invocation together with
// the static gas ceiling for its kind.
type Call struct {
	To       common.Address
	Contract string
	Method   string
	Args     []any
	Data     []byte
	GasLimit uint64
}

// String renders the call as Contract.method(args) for logs.
func (c Call) String() string {
	args := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		args = append(args, fmt.Sprint(arg))
	}
	name := c.Contract
	if name == "" {
		name = c.To.Hex()
	}
	return fmt.Sprintf("%s.%s(%s)", name, c.Method, strings.Join(args, ", "))
}

// Params returns the call arguments in a form suitable for statistics records.
func (c Call) Params() map[string]any {
	params := map[string]any{
		"contract": c.Contract,
		"to":       c.To.Hex(),
		"method":   c.Method,
	}
	if len(c.Args) > 0 {
		args := make([]string, 0, len(c.Args))
		for _, arg := range c.Args {
			switch v := arg.(type) {
			case common.Address:
				args = append(args, v.Hex())
			default:
				args = append(args, fmt.Sprint(v))
			}
		}
		params["args"] = args
	}
	return params
}
