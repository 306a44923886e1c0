package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"EcoBot-Chain/internal/audit"
	"EcoBot-Chain/internal/executor"
	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/strategy"
	"EcoBot-Chain/internal/web3/contracts"
)

// PriceReader reads the on-chain oracle and pool quotes.
type PriceReader interface {
	OraclePrice(ctx context.Context) (market.Price, error)
	PoolPrice(ctx context.Context, pool contracts.Pool) (market.Price, error)
}

// Retailer is the noise trader of one pool.
type Retailer struct {
	base
	strategy *strategy.Retail
	prices   PriceReader
	wallet   *Wallet
	actions  ActionRunner
}

// NewRetailer constructs a retailer named name (e.g. "retailer-dusd").
func NewRetailer(name string, s *strategy.Retail, prices PriceReader, wallet *Wallet, actions ActionRunner, opts ...Option) *Retailer {
	return &Retailer{
		base:     newBase(name, opts),
		strategy: s,
		prices:   prices,
		wallet:   wallet,
		actions:  actions,
	}
}

// Start only announces the agent; the retailer has no seeding step.
func (r *Retailer) Start(context.Context) error {
	r.logger.Info(fmt.Sprintf("%s started (wallet: %s)", r.label, r.actions.Address().Hex()))
	return nil
}

// Cycle reads balances and prices, trades at most once, and on failure
// falls back once to the opposite side sized from freshly read balances.
func (r *Retailer) Cycle(ctx context.Context) error {
	pool := r.strategy.Pool()

	balances, err := r.wallet.Balances(ctx)
	if err != nil {
		return err
	}
	logBalances(r.logger, r.label, balances)

	oracle, err := r.prices.OraclePrice(ctx)
	if err != nil {
		return err
	}
	poolPrice, err := r.prices.PoolPrice(ctx, pool)
	if err != nil {
		return err
	}

	quote := balances.Of(pool.Quote)
	profit := new(big.Int).Add(quote, oracle.Quote(balances.MWETH))
	r.logger.Info(fmt.Sprintf("Profit: $%s, Oracle: $%s, Pool: %s",
		market.FormatUnits(profit, 2), oracle, poolPrice.Decimal().StringFixed(6)))

	action := r.strategy.Decide(strategy.RetailObservation{
		Oracle:          oracle,
		PoolPrice:       poolPrice,
		QuoteBalance:    quote,
		VolatileBalance: balances.MWETH,
	})
	if action.IsNoOp() {
		r.logger.Info("No trade this cycle")
		return nil
	}

	primaryErr := r.trade(ctx, action)
	if primaryErr == nil {
		return nil
	}

	fresh, err := r.wallet.Balances(ctx)
	if err != nil {
		return errors.Join(primaryErr, err)
	}
	fallback := r.strategy.Fallback(action, fresh.Of(pool.Quote), fresh.MWETH)
	if fallback.IsNoOp() {
		return primaryErr
	}
	r.logger.Warn("Trade failed, trying opposite side",
		slog.String("failed", action.String()),
		slog.String("fallback", fallback.String()))
	if err := r.trade(ctx, fallback); err != nil {
		return errors.Join(primaryErr, err)
	}
	return nil
}

func (r *Retailer) trade(ctx context.Context, action strategy.Action) error {
	r.logger.Info("Attempting trade", slog.String("action", action.String()))
	res, err := r.actions.Execute(ctx, action)
	if err != nil {
		r.logger.Error("Trade failed", slog.String("action", action.String()), slog.Any("error", err))
		return err
	}
	r.logger.Info("Trade succeeded", slog.String("action", action.String()), slog.String("tx", res.Last().Hex()))
	r.record(ctx, audit.EventAMMTransaction, tradeEvent(action, res))
	return nil
}

func tradeEvent(action strategy.Action, res executor.Result) map[string]any {
	return map[string]any{
		"type":      action.Kind.String(),
		"pool":      action.Pool.Name,
		"direction": action.AssetIn + "_to_" + counterAsset(action),
		"asset_in":  action.AssetIn,
		"amount":    market.FormatUnits(action.Amount, 6),
		"tx_hash":   res.Last().Hex(),
	}
}

func counterAsset(action strategy.Action) string {
	if action.Kind == strategy.KindBuy {
		return strategy.VolatileSymbol
	}
	return action.Pool.Quote
}
