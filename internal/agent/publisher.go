package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"EcoBot-Chain/internal/audit"
	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/market"
	"EcoBot-Chain/internal/web3"
)

// PriceFeed supplies the off-chain reference price.
type PriceFeed interface {
	ReferencePrice(ctx context.Context) (market.Price, error)
}

// OracleWriter encodes an oracle price update.
type OracleWriter interface {
	SetPrice(price *big.Int) (web3.Call, error)
}

// Publisher is the only agent allowed to push reference prices into the
// oracle.
type Publisher struct {
	base
	feed      PriceFeed
	oracle    OracleWriter
	submitter Submitter
}

// NewPublisher constructs the price publisher.
func NewPublisher(feed PriceFeed, oracle OracleWriter, submitter Submitter, opts ...Option) *Publisher {
	return &Publisher{
		base:      newBase("oracle", opts),
		feed:      feed,
		oracle:    oracle,
		submitter: submitter,
	}
}

// Start logs the wallet and seeds the oracle with one immediate publish so
// that dependent agents never read an unset price.
func (p *Publisher) Start(ctx context.Context) error {
	p.logger.Info(fmt.Sprintf("%s started (wallet: %s)", p.label, p.submitter.Address().Hex()))
	return p.Cycle(ctx)
}

// Cycle publishes the current reference price. When the feed is unavailable
// nothing is submitted.
func (p *Publisher) Cycle(ctx context.Context) error {
	price, err := p.feed.ReferencePrice(ctx)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeFeedUnavailable) {
			p.logger.Warn("Reference price unavailable, skipping oracle update", slog.Any("error", err))
			return nil
		}
		return err
	}

	call, err := p.oracle.SetPrice(price.Rescale(market.OracleScale).Value)
	if err != nil {
		return err
	}
	hash, err := p.submitter.Transact(ctx, call)
	if err != nil {
		return fmt.Errorf("更新预言机价格失败: %w", err)
	}

	p.logger.Info(fmt.Sprintf("Updated oracle price: $%s", price), slog.String("tx", hash.Hex()))
	p.record(ctx, audit.EventOracleUpdate, map[string]any{
		"price":   price.Decimal().String(),
		"tx_hash": hash.Hex(),
	})
	return nil
}
