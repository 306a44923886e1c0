package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	xerrors "EcoBot-Chain/internal/errors"
)

// DefaultPath 是未设置 ECOBOT_CONFIG 时尝试读取的配置文件。
const DefaultPath = "configs/ecobot.yaml"

// Config 描述了 EcoBot 各智能体在启动阶段需要加载的全部配置。
type Config struct {
	Ledger     LedgerConfig     `yaml:"ledger"`
	Contracts  ContractsConfig  `yaml:"contracts"`
	Wallets    WalletsConfig    `yaml:"wallets"`
	Feed       FeedConfig       `yaml:"feed"`
	Agents     AgentsConfig     `yaml:"agents"`
	Logging    LoggingConfig    `yaml:"logging"`
	Statistics StatisticsConfig `yaml:"statistics"`
	KillSwitch KillSwitchConfig `yaml:"kill_switch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// LedgerConfig 包含访问区块链节点所需的 RPC 地址与确认超时。
type LedgerConfig struct {
	RPCURL              string        `yaml:"rpc_url"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
}

// ContractsConfig 列出生态内各合约地址（十六进制）。
type ContractsConfig struct {
	MWETH   string `yaml:"mweth"`
	DUSD    string `yaml:"dusd"`
	DUSC    string `yaml:"dusc"`
	Oracle  string `yaml:"oracle"`
	DEX     string `yaml:"dex"`
	Lending string `yaml:"lending"`
}

// WalletsConfig 保存各智能体的签名私钥。
type WalletsConfig struct {
	Oracle string `yaml:"oracle_key"`
	// Wallet1..Wallet4 沿用生态约定：1、2 为散户，3 为被监控的借款人，
	// 4 为套利智能体。
	Wallet1 string `yaml:"wallet_1_key"`
	Wallet2 string `yaml:"wallet_2_key"`
	Wallet3 string `yaml:"wallet_3_key"`
	Wallet4 string `yaml:"wallet_4_key"`
	// LiquidationTarget 覆盖由 Wallet3 推导出的地址。
	LiquidationTarget string `yaml:"liquidation_target"`
}

// FeedConfig 配置链下参考价格源。
type FeedConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AgentsConfig 汇总各角色的节奏与策略参数。金额均为十进制字符串，单位为
// 代币整数单位（18 位精度）。
type AgentsConfig struct {
	OracleInterval    time.Duration `yaml:"oracle_interval"`
	RetailerInterval  time.Duration `yaml:"retailer_interval"`
	ArbitrageInterval time.Duration `yaml:"arbitrage_interval"`

	RetailMinSize string `yaml:"retail_min_size"`
	RetailMaxSize string `yaml:"retail_max_size"`
	RetailSeed    uint64 `yaml:"retail_seed"`

	ArbitrageThresholdBps int64  `yaml:"arbitrage_threshold_bps"`
	ArbitrageCap          string `yaml:"arbitrage_cap"`

	LiquidationThreshold string `yaml:"liquidation_threshold"`
	LiquidationTopUp     string `yaml:"liquidation_top_up"`
}

// LoggingConfig 控制日志级别、格式与输出位置。
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StatisticsConfig 描述统计事件的落盘目标。File 总是启用，MySQL 与 AMQP 可选。
type StatisticsConfig struct {
	File         string `yaml:"file"`
	MySQLDSN     string `yaml:"mysql_dsn"`
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
}

// KillSwitchConfig 描述停止标记。RedisAddr 非空时同时轮询 Redis。
type KillSwitchConfig struct {
	File          string `yaml:"file"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`
}

// MetricsConfig 控制 Prometheus 指标端点，Address 为空时不启动。
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// AlertsConfig 控制周期失败告警。告警总会写入日志，WebhookURL 非空时额外推送。
type AlertsConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	AfterFailures int    `yaml:"after_failures"`
}

// Load 读取 YAML 配置文件（可选），再叠加环境变量并填充默认值。path 为空时
// 使用 ECOBOT_CONFIG，仍为空时尝试 DefaultPath；默认文件不存在不视为错误。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv("ECOBOT_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath
		}
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"RPC_URL":            &c.Ledger.RPCURL,
		"MWETH_ADDRESS":      &c.Contracts.MWETH,
		"DUSD_ADDRESS":       &c.Contracts.DUSD,
		"DUSC_ADDRESS":       &c.Contracts.DUSC,
		"ORACLE_ADDRESS":     &c.Contracts.Oracle,
		"DEX_ADDRESS":        &c.Contracts.DEX,
		"LENDING_ADDRESS":    &c.Contracts.Lending,
		"ORACLE_KEY":         &c.Wallets.Oracle,
		"WALLET_1_KEY":       &c.Wallets.Wallet1,
		"WALLET_2_KEY":       &c.Wallets.Wallet2,
		"WALLET_3_KEY":       &c.Wallets.Wallet3,
		"WALLET_4_KEY":       &c.Wallets.Wallet4,
		"LIQUIDATION_TARGET": &c.Wallets.LiquidationTarget,
		"PRICE_FEED_URL":     &c.Feed.URL,
		"LOG_FILE":           &c.Logging.File,
		"LOG_LEVEL":          &c.Logging.Level,
		"STATS_FILE":         &c.Statistics.File,
		"STATS_MYSQL_DSN":    &c.Statistics.MySQLDSN,
		"STATS_AMQP_URL":     &c.Statistics.AMQPURL,
		"KILL_SWITCH_FILE":   &c.KillSwitch.File,
		"REDIS_ADDR":         &c.KillSwitch.RedisAddr,
		"REDIS_PASSWORD":     &c.KillSwitch.RedisPassword,
		"KILL_SWITCH_KEY":    &c.KillSwitch.RedisKey,
		"METRICS_ADDR":       &c.Metrics.Address,
		"ALERT_WEBHOOK_URL":  &c.Alerts.WebhookURL,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "REDIS_DB 必须是整数")
		}
		c.KillSwitch.RedisDB = db
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Ledger.RPCURL == "" {
		c.Ledger.RPCURL = "http://localhost:8545"
	}
	if c.Ledger.ConfirmationTimeout <= 0 {
		c.Ledger.ConfirmationTimeout = 60 * time.Second
	}

	if c.Feed.URL == "" {
		c.Feed.URL = "https://api.binance.com/api/v3/ticker/price?symbol=ETHUSDT"
	}
	if c.Feed.Timeout <= 0 {
		c.Feed.Timeout = 5 * time.Second
	}

	a := &c.Agents
	if a.OracleInterval <= 0 {
		a.OracleInterval = 5 * time.Second
	}
	if a.RetailerInterval <= 0 {
		a.RetailerInterval = 10 * time.Second
	}
	if a.ArbitrageInterval <= 0 {
		a.ArbitrageInterval = 15 * time.Second
	}
	if a.RetailMinSize == "" {
		a.RetailMinSize = "0.01"
	}
	if a.RetailMaxSize == "" {
		a.RetailMaxSize = "0.3"
	}
	if a.ArbitrageThresholdBps <= 0 {
		a.ArbitrageThresholdBps = 100
	}
	if a.ArbitrageCap == "" {
		a.ArbitrageCap = "1000"
	}
	if a.LiquidationThreshold == "" {
		a.LiquidationThreshold = "1000"
	}
	if a.LiquidationTopUp == "" {
		a.LiquidationTopUp = "1000"
	}

	if c.Logging.File == "" {
		c.Logging.File = "ecosystem.log"
	}
	if c.Statistics.File == "" {
		c.Statistics.File = "statistics.log"
	}
	if c.Statistics.AMQPExchange == "" {
		c.Statistics.AMQPExchange = "ecobot.statistics"
	}
	if c.KillSwitch.File == "" {
		c.KillSwitch.File = ".kill_switch"
	}
	if c.Alerts.AfterFailures <= 0 {
		c.Alerts.AfterFailures = 3
	}
}

// Units 将 "0.3" 这样的十进制代币数量转换为 18 位精度的整数表示。
func Units(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "金额格式非法: "+amount)
	}
	if d.IsNegative() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金额不能为负数: "+amount)
	}
	return d.Shift(18).BigInt(), nil
}
