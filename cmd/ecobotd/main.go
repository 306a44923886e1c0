package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/agent"
	"EcoBot-Chain/internal/audit"
	"EcoBot-Chain/internal/config"
	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/executor"
	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/observability/alerting"
	"EcoBot-Chain/internal/observability/metrics"
	"EcoBot-Chain/internal/runner"
	"EcoBot-Chain/internal/strategy"
	"EcoBot-Chain/internal/web3"
	"EcoBot-Chain/internal/web3/contracts"
	"EcoBot-Chain/internal/web3/ethereum"
	"EcoBot-Chain/pkg/logger"
)

// main runs the EcoBot daemon. Each process hosts exactly one agent role.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <oracle|retailer-dusd|retailer-dusc|arbitrage>\n", os.Args[0])
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1]); err != nil && !errors.Is(err, context.Canceled) {
		if xerrors.IsFatal(err) {
			log.Fatalf("ecobotd 配置错误，请检查环境变量或配置文件: %v", err)
		}
		log.Fatalf("ecobotd 运行失败: %v", err)
	}
}

func run(ctx context.Context, roleName string) error {
	role, err := config.ParseRole(roleName)
	if err != nil {
		return err
	}
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.Logging.File},
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named(string(role))

	// Startup preconditions: missing configuration, a malformed key or an
	// unreachable node end the process here.
	if err := cfg.Validate(role); err != nil {
		lg.Error("Configuration incomplete", slog.Any("error", err))
		return err
	}
	identity, err := web3.LoadIdentity(cfg.SigningKey(role))
	if err != nil {
		lg.Error("Failed to load signing key", slog.Any("error", err))
		return err
	}

	recorder, err := openRecorder(ctx, lg, cfg, role)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			lg.Warn("Failed to close statistics sinks", slog.Any("error", err))
		}
	}()

	stopSignal, closeStop, err := openStopSignal(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer closeStop()

	gw, err := ethereum.NewClient(ctx, ethereum.Config{RPCURL: cfg.Ledger.RPCURL, CallTimeout: 10 * time.Second})
	if err != nil {
		lg.Error("Failed to connect to ledger", slog.String("rpc", cfg.Ledger.RPCURL), slog.Any("error", err))
		return err
	}
	defer gw.Close()

	exec := executor.New(gw, identity, recorder, lg, executor.Config{
		Agent:               string(role),
		ConfirmationTimeout: cfg.Ledger.ConfirmationTimeout,
	})
	ag, interval, err := buildAgent(cfg, role, gw, exec, recorder)
	if err != nil {
		return err
	}

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("Metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: lg}}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerts.WebhookURL})
	}
	ctrl := runner.NewController(stopSignal, runner.Config{
		Interval:   interval,
		Logger:     lg,
		Alerts:     alerting.NewFanout(notifiers...),
		AlertAfter: cfg.Alerts.AfterFailures,
	})
	return ctrl.Run(ctx, ag)
}

// degrade decides whether an optional component may be skipped. Fatal
// errors stop startup; anything else is logged and the agent runs without
// the component.
func degrade(lg *slog.Logger, component string, err error) error {
	if xerrors.IsFatal(err) {
		return err
	}
	lg.Warn(component+" unavailable, continuing without it",
		slog.Bool("retryable", xerrors.RetryableError(err)),
		slog.Any("error", err))
	return nil
}

func openRecorder(ctx context.Context, lg *slog.Logger, cfg *config.Config, role config.Role) (audit.Recorder, error) {
	file, err := audit.NewFileRecorder(audit.FileConfig{
		Path:       cfg.Statistics.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	sinks := audit.Multi{file}

	if cfg.Statistics.MySQLDSN != "" {
		db, err := audit.NewMySQLRecorder(ctx, audit.MySQLConfig{
			DSN:             cfg.Statistics.MySQLDSN,
			Agent:           string(role),
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			if err := degrade(lg, "MySQL statistics sink", err); err != nil {
				_ = sinks.Close()
				return nil, err
			}
		} else {
			sinks = append(sinks, db)
		}
	}
	if cfg.Statistics.AMQPURL != "" {
		mq, err := audit.NewAMQPRecorder(audit.AMQPConfig{
			URL:      cfg.Statistics.AMQPURL,
			Exchange: cfg.Statistics.AMQPExchange,
			Agent:    string(role),
		})
		if err != nil {
			if err := degrade(lg, "RabbitMQ statistics sink", err); err != nil {
				_ = sinks.Close()
				return nil, err
			}
		} else {
			sinks = append(sinks, mq)
		}
	}
	return sinks, nil
}

func openStopSignal(ctx context.Context, lg *slog.Logger, cfg *config.Config) (runner.StopSignal, func(), error) {
	signals := runner.AnyOf{runner.FileMarker{Path: cfg.KillSwitch.File}}
	if cfg.KillSwitch.RedisAddr == "" {
		return signals, func() {}, nil
	}
	marker, err := runner.NewRedisMarker(ctx, runner.RedisMarkerConfig{
		Address:  cfg.KillSwitch.RedisAddr,
		Password: cfg.KillSwitch.RedisPassword,
		DB:       cfg.KillSwitch.RedisDB,
		Key:      cfg.KillSwitch.RedisKey,
	})
	if err != nil {
		// The file marker still works without Redis.
		if err := degrade(lg, "Redis kill switch", err); err != nil {
			return nil, nil, err
		}
		return signals, func() {}, nil
	}
	return append(signals, marker), func() { _ = marker.Close() }, nil
}

func buildAgent(cfg *config.Config, role config.Role, gw web3.Gateway, exec *executor.Executor, recorder audit.Recorder) (runner.Agent, time.Duration, error) {
	opts := []agent.Option{agent.WithLogger(logger.L()), agent.WithRecorder(recorder)}
	c := cfg.Contracts

	var oracle *contracts.Oracle
	var oracleSource market.OracleSource
	if c.Oracle != "" {
		oracle = contracts.NewOracle(common.HexToAddress(c.Oracle), gw)
		oracleSource = oracle
	}
	dex := contracts.NewDEX(common.HexToAddress(c.DEX), gw)
	reader := market.NewReader(market.ReaderConfig{FeedURL: cfg.Feed.URL, Timeout: cfg.Feed.Timeout}, oracleSource, dex)

	if role == config.RoleOracle {
		opts = append(opts, agent.WithLabel("Oracle bot"))
		return agent.NewPublisher(reader, oracle, exec, opts...), cfg.Agents.OracleInterval, nil
	}

	tokens := map[string]*contracts.Token{
		strategy.VolatileSymbol:  contracts.NewToken(strategy.VolatileSymbol, common.HexToAddress(c.MWETH), gw),
		contracts.PoolDUSD.Quote: contracts.NewToken(contracts.PoolDUSD.Quote, common.HexToAddress(c.DUSD), gw),
		contracts.PoolDUSC.Quote: contracts.NewToken(contracts.PoolDUSC.Quote, common.HexToAddress(c.DUSC), gw),
	}
	balances := make(map[string]agent.BalanceReader, len(tokens))
	for symbol, token := range tokens {
		balances[symbol] = token
	}
	wallet := agent.NewWallet(exec.Address(), balances)
	deps := executor.Contracts{Tokens: tokens, DEX: dex}

	switch role {
	case config.RoleRetailerDUSD, config.RoleRetailerDUSC:
		pool, label := contracts.PoolDUSD, "Retailer bot 1"
		if role == config.RoleRetailerDUSC {
			pool, label = contracts.PoolDUSC, "Retailer bot 2"
		}
		minSize, err := config.Units(cfg.Agents.RetailMinSize)
		if err != nil {
			return nil, 0, err
		}
		maxSize, err := config.Units(cfg.Agents.RetailMaxSize)
		if err != nil {
			return nil, 0, err
		}
		seed := cfg.Agents.RetailSeed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		retail := strategy.NewRetail(strategy.RetailConfig{Pool: pool, MinSize: minSize, MaxSize: maxSize}, strategy.NewRandomSize(seed))
		actions := executor.NewActions(exec, deps)
		opts = append(opts, agent.WithLabel(label))
		return agent.NewRetailer(string(role), retail, reader, wallet, actions, opts...), cfg.Agents.RetailerInterval, nil

	case config.RoleArbitrage:
		target, err := cfg.LiquidationTarget()
		if err != nil {
			return nil, 0, err
		}
		amounts := make(map[string]*big.Int)
		for name, value := range map[string]string{
			"cap":       cfg.Agents.ArbitrageCap,
			"threshold": cfg.Agents.LiquidationThreshold,
			"top_up":    cfg.Agents.LiquidationTopUp,
		} {
			v, err := config.Units(value)
			if err != nil {
				return nil, 0, err
			}
			amounts[name] = v
		}
		lending := contracts.NewLending(common.HexToAddress(c.Lending), gw)
		deps.Lending = lending
		opts = append(opts, agent.WithLabel("Profit bot 2"))
		return agent.NewArbitrageur(agent.ArbitrageurDeps{
			Target:      target,
			Liquidation: strategy.NewLiquidation(strategy.LiquidationConfig{Threshold: amounts["threshold"], TopUp: amounts["top_up"]}),
			Arbitrage:   strategy.NewArbitrage(strategy.ArbitrageConfig{ThresholdBps: cfg.Agents.ArbitrageThresholdBps, Cap: amounts["cap"]}),
			Lending:     lending,
			Prices:      reader,
			Wallet:      wallet,
			Actions:     executor.NewActions(exec, deps),
		}, opts...), cfg.Agents.ArbitrageInterval, nil
	}
	return nil, 0, fmt.Errorf("未知的智能体角色 %q", role)
}
