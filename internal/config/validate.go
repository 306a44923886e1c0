package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/web3"
)

// Role 是进程运行的智能体角色。
type Role string

const (
	RoleOracle       Role = "oracle"
	RoleRetailerDUSD Role = "retailer-dusd"
	RoleRetailerDUSC Role = "retailer-dusc"
	RoleArbitrage    Role = "arbitrage"
)

// Roles 列出全部可运行的角色。
var Roles = []Role{RoleOracle, RoleRetailerDUSD, RoleRetailerDUSC, RoleArbitrage}

// ParseRole 校验命令行传入的角色名称。
func ParseRole(name string) (Role, error) {
	for _, r := range Roles {
		if string(r) == strings.ToLower(strings.TrimSpace(name)) {
			return r, nil
		}
	}
	return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的智能体角色 %q", name))
}

type requirement struct {
	name  string
	value string
	addr  bool
}

// Validate 检查 role 所需的字段，缺失时返回 CONFIGURATION_MISSING 并列出全部缺失项。
func (c *Config) Validate(role Role) error {
	reqs := []requirement{{name: "RPC_URL", value: c.Ledger.RPCURL}}
	tokens := []requirement{
		{name: "MWETH_ADDRESS", value: c.Contracts.MWETH, addr: true},
		{name: "DUSD_ADDRESS", value: c.Contracts.DUSD, addr: true},
		{name: "DUSC_ADDRESS", value: c.Contracts.DUSC, addr: true},
	}

	switch role {
	case RoleOracle:
		reqs = append(reqs,
			requirement{name: "ORACLE_ADDRESS", value: c.Contracts.Oracle, addr: true},
			requirement{name: "ORACLE_KEY", value: c.Wallets.Oracle})
	case RoleRetailerDUSD, RoleRetailerDUSC:
		reqs = append(reqs, tokens...)
		reqs = append(reqs,
			requirement{name: "ORACLE_ADDRESS", value: c.Contracts.Oracle, addr: true},
			requirement{name: "DEX_ADDRESS", value: c.Contracts.DEX, addr: true})
		if role == RoleRetailerDUSD {
			reqs = append(reqs, requirement{name: "WALLET_1_KEY", value: c.Wallets.Wallet1})
		} else {
			reqs = append(reqs, requirement{name: "WALLET_2_KEY", value: c.Wallets.Wallet2})
		}
	case RoleArbitrage:
		reqs = append(reqs, tokens...)
		reqs = append(reqs,
			requirement{name: "DEX_ADDRESS", value: c.Contracts.DEX, addr: true},
			requirement{name: "LENDING_ADDRESS", value: c.Contracts.Lending, addr: true},
			requirement{name: "WALLET_4_KEY", value: c.Wallets.Wallet4})
		if c.Wallets.LiquidationTarget != "" {
			reqs = append(reqs, requirement{name: "LIQUIDATION_TARGET", value: c.Wallets.LiquidationTarget, addr: true})
		} else {
			reqs = append(reqs, requirement{name: "LIQUIDATION_TARGET or WALLET_3_KEY", value: c.Wallets.Wallet3})
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的智能体角色 %q", role))
	}

	var missing, invalid []string
	for _, r := range reqs {
		switch {
		case strings.TrimSpace(r.value) == "":
			missing = append(missing, r.name)
		case r.addr && !common.IsHexAddress(r.value):
			invalid = append(invalid, r.name)
		}
	}
	if len(missing) > 0 {
		return xerrors.New(xerrors.CodeConfigurationMissing,
			fmt.Sprintf("%s 缺少配置: %s", role, strings.Join(missing, ", ")),
			xerrors.WithMetadata("missing", strings.Join(missing, ",")))
	}
	if len(invalid) > 0 {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("%s 地址格式非法: %s", role, strings.Join(invalid, ", ")))
	}

	for name, amount := range map[string]string{
		"retail_min_size":       c.Agents.RetailMinSize,
		"retail_max_size":       c.Agents.RetailMaxSize,
		"arbitrage_cap":         c.Agents.ArbitrageCap,
		"liquidation_threshold": c.Agents.LiquidationThreshold,
		"liquidation_top_up":    c.Agents.LiquidationTopUp,
	} {
		if _, err := Units(amount); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// SigningKey 返回 role 使用的私钥。
func (c *Config) SigningKey(role Role) string {
	switch role {
	case RoleOracle:
		return c.Wallets.Oracle
	case RoleRetailerDUSD:
		return c.Wallets.Wallet1
	case RoleRetailerDUSC:
		return c.Wallets.Wallet2
	case RoleArbitrage:
		return c.Wallets.Wallet4
	default:
		return ""
	}
}

// LiquidationTarget 返回被监控的借款地址：优先使用显式配置，否则由 WALLET_3_KEY 推导。
func (c *Config) LiquidationTarget() (common.Address, error) {
	if c.Wallets.LiquidationTarget != "" {
		if !common.IsHexAddress(c.Wallets.LiquidationTarget) {
			return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "LIQUIDATION_TARGET 地址格式非法")
		}
		return common.HexToAddress(c.Wallets.LiquidationTarget), nil
	}
	if c.Wallets.Wallet3 == "" {
		return common.Address{}, xerrors.New(xerrors.CodeConfigurationMissing, "未配置 LIQUIDATION_TARGET 或 WALLET_3_KEY")
	}
	return web3.AddressFromKey(c.Wallets.Wallet3)
}
