// Package contracts provides small typed clients for the ecosystem contracts.
// Each client exposes one method per on-chain function: view functions are
// executed through the Gateway, state-changing functions return an encoded
// web3.Call for the executor to submit.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/web3"
)

// Static gas ceilings per call kind.
const (
	GasApprove   uint64 = 100_000
	GasSetPrice  uint64 = 100_000
	GasSwap      uint64 = 200_000
	GasDeposit   uint64 = 200_000
	GasBorrow    uint64 = 300_000
	GasLiquidate uint64 = 500_000
)

type binding struct {
	name    string
	address common.Address
	abi     abi.ABI
	gw      web3.Gateway
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

func (b binding) view(ctx context.Context, method string, args ...any) ([]any, error) {
	if b.gw == nil {
		return nil, xerrors.New(xerrors.CodeLedgerUnreachable, fmt.Sprintf("%s 未配置链访问后端", b.name))
	}
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("编码 %s.%s 失败", b.name, method))
	}
	out, err := b.gw.CallContract(ctx, b.address, data)
	if err != nil {
		return nil, err
	}
	values, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCallReverted, err, fmt.Sprintf("解码 %s.%s 返回值失败", b.name, method))
	}
	return values, nil
}

func (b binding) viewBig(ctx context.Context, method string, index int, args ...any) (*big.Int, error) {
	values, err := b.view(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) <= index {
		return nil, xerrors.New(xerrors.CodeCallReverted, fmt.Sprintf("%s.%s 返回值数量不足", b.name, method))
	}
	value, ok := values[index].(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeCallReverted, fmt.Sprintf("%s.%s 返回值类型异常", b.name, method))
	}
	return value, nil
}

func (b binding) call(method string, gas uint64, args ...any) (web3.Call, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return web3.Call{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("编码 %s.%s 失败", b.name, method))
	}
	return web3.Call{
		To:       b.address,
		Contract: b.name,
		Method:   method,
		Args:     args,
		Data:     data,
		GasLimit: gas,
	}, nil
}

func requirePositive(name string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 必须为正数", name))
	}
	return nil
}
