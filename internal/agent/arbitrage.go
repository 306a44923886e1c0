package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/audit"
	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/strategy"
	"EcoBot-Chain/internal/web3/contracts"
)

// LiquidationChecker reports whether a borrower can be liquidated.
type LiquidationChecker interface {
	CanLiquidate(ctx context.Context, user common.Address) (bool, error)
}

// Arbitrageur exploits divergence between the two pools and liquidates one
// monitored borrower when its position becomes eligible.
type Arbitrageur struct {
	base
	target      common.Address
	liquidation *strategy.Liquidation
	arbitrage   *strategy.Arbitrage
	lending     LiquidationChecker
	prices      PriceReader
	wallet      *Wallet
	actions     ActionRunner
}

// ArbitrageurDeps groups the collaborators of the arbitrage agent.
type ArbitrageurDeps struct {
	Target      common.Address
	Liquidation *strategy.Liquidation
	Arbitrage   *strategy.Arbitrage
	Lending     LiquidationChecker
	Prices      PriceReader
	Wallet      *Wallet
	Actions     ActionRunner
}

// NewArbitrageur constructs the arbitrage and liquidation agent.
func NewArbitrageur(deps ArbitrageurDeps, opts ...Option) *Arbitrageur {
	return &Arbitrageur{
		base:        newBase("arbitrage", opts),
		target:      deps.Target,
		liquidation: deps.Liquidation,
		arbitrage:   deps.Arbitrage,
		lending:     deps.Lending,
		prices:      deps.Prices,
		wallet:      deps.Wallet,
		actions:     deps.Actions,
	}
}

// Start announces the wallet and the monitored borrower.
func (a *Arbitrageur) Start(context.Context) error {
	a.logger.Info(fmt.Sprintf("%s started (wallet: %s, monitoring: %s)",
		a.label, a.actions.Address().Hex(), a.target.Hex()))
	return nil
}

// Cycle logs the wallet, then runs the liquidation check and the arbitrage
// check. Each step is isolated: a failure or panic in one never skips the
// others.
func (a *Arbitrageur) Cycle(ctx context.Context) error {
	var snapshot *Balances
	balErr := isolate(ctx, func(ctx context.Context) error {
		b, err := a.wallet.Balances(ctx)
		if err != nil {
			return err
		}
		logBalances(a.logger, a.label, b)
		snapshot = &b
		return nil
	})
	if balErr != nil {
		a.logger.Error("Balance check failed", slog.Any("error", balErr))
	}
	liqErr := isolate(ctx, func(ctx context.Context) error { return a.checkLiquidation(ctx, snapshot) })
	if liqErr != nil {
		a.logger.Error("Liquidation check failed", slog.Any("error", liqErr))
	}
	arbErr := isolate(ctx, a.checkArbitrage)
	if arbErr != nil {
		a.logger.Error("Arbitrage check failed", slog.Any("error", arbErr))
	}
	return errors.Join(balErr, liqErr, arbErr)
}

// checkLiquidation sizes the top-up from known when the cycle already read
// the wallet, and reads it otherwise.
func (a *Arbitrageur) checkLiquidation(ctx context.Context, known *Balances) error {
	eligible, err := a.lending.CanLiquidate(ctx, a.target)
	if err != nil {
		return fmt.Errorf("查询清算资格失败: %w", err)
	}
	if !eligible {
		a.logger.Debug("Target not liquidatable", slog.String("target", a.target.Hex()))
		return nil
	}

	var balances Balances
	if known != nil {
		balances = *known
	} else if balances, err = a.wallet.Balances(ctx); err != nil {
		return err
	}
	a.logger.Info("Liquidation opportunity found", slog.String("target", a.target.Hex()))

	plan := a.liquidation.Plan(strategy.LiquidationObservation{
		Target:          a.target,
		Eligible:        eligible,
		DUSDBalance:     balances.DUSD,
		DUSCBalance:     balances.DUSC,
		VolatileBalance: balances.MWETH,
	})

	var errs []error
	for _, action := range plan {
		res, err := a.actions.Execute(ctx, action)
		if err != nil {
			// A failed top-up still leaves the liquidation worth attempting.
			errs = append(errs, fmt.Errorf("%s: %w", action.Kind, err))
			continue
		}
		switch action.Kind {
		case strategy.KindBorrow:
			a.logger.Info("Borrowed working balance", slog.String("action", action.String()))
			a.record(ctx, audit.EventLending, map[string]any{
				"type":        "borrow",
				"borrower":    a.actions.Address().Hex(),
				"collateral":  market.FormatUnits(action.Collateral, 6),
				"dusd_amount": market.FormatUnits(action.DebtDUSD, 2),
				"dusc_amount": market.FormatUnits(action.DebtDUSC, 2),
				"tx_hash":     res.Last().Hex(),
			})
		case strategy.KindLiquidate:
			a.logger.Info("Liquidation succeeded", slog.String("target", action.Target.Hex()), slog.String("tx", res.Last().Hex()))
			a.record(ctx, audit.EventLending, map[string]any{
				"type":       "liquidation",
				"target":     action.Target.Hex(),
				"liquidator": a.actions.Address().Hex(),
				"tx_hash":    res.Last().Hex(),
			})
		}
	}
	return errors.Join(errs...)
}

func (a *Arbitrageur) checkArbitrage(ctx context.Context) error {
	dusdPrice, err := a.prices.PoolPrice(ctx, contracts.PoolDUSD)
	if err != nil {
		return err
	}
	duscPrice, err := a.prices.PoolPrice(ctx, contracts.PoolDUSC)
	if err != nil {
		return err
	}

	route, ok := a.arbitrage.Route(
		strategy.PoolQuote{Pool: contracts.PoolDUSD, Price: dusdPrice},
		strategy.PoolQuote{Pool: contracts.PoolDUSC, Price: duscPrice},
	)
	if !ok {
		a.logger.Debug("No arbitrage opportunity",
			slog.String("dusd_pool", dusdPrice.Decimal().StringFixed(6)),
			slog.String("dusc_pool", duscPrice.Decimal().StringFixed(6)))
		return nil
	}

	balances, err := a.wallet.Balances(ctx)
	if err != nil {
		return err
	}
	amount := a.arbitrage.Size(balances.Of(route.From.Quote))
	if amount.Sign() <= 0 {
		a.logger.Info("Arbitrage opportunity unfunded", slog.String("route", route.Name()))
		return nil
	}
	a.logger.Info(fmt.Sprintf("Arbitrage opportunity: %s (dUSD pool %s, dUSC pool %s)",
		route.Name(), dusdPrice.Decimal().StringFixed(6), duscPrice.Decimal().StringFixed(6)))

	first, err := a.actions.Execute(ctx, strategy.Buy(route.From, amount))
	if err != nil {
		return fmt.Errorf("套利第一腿失败: %w", err)
	}

	// The second leg sells whatever volatile balance the first leg left us.
	fresh, err := a.wallet.Balances(ctx)
	if err != nil {
		return fmt.Errorf("套利第一腿后读取余额失败: %w", err)
	}
	leg2 := fresh.Of(strategy.VolatileSymbol)
	if leg2.Sign() <= 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "套利第一腿后没有可卖出的 "+strategy.VolatileSymbol)
	}
	second, err := a.actions.Execute(ctx, strategy.Sell(route.To, leg2))
	if err != nil {
		return fmt.Errorf("套利第二腿失败，中间资产留待下一周期: %w", err)
	}

	a.logger.Info("Arbitrage completed", slog.String("route", route.Name()), slog.String("tx", second.Last().Hex()))
	a.record(ctx, audit.EventAMMTransaction, map[string]any{
		"type":      "arbitrage",
		"direction": route.Name(),
		"amount":    market.FormatUnits(amount, 2),
		"tx_hash":   first.Last().Hex(),
		"tx_hash_2": second.Last().Hex(),
	})
	return nil
}

// isolate runs one check, converting a panic into an error.
func isolate(ctx context.Context, check func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return check(ctx)
}
