package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/web3/contracts"
)

// DefaultFeedURL is the public ETH/USDT ticker.
const DefaultFeedURL = "https://api.binance.com/api/v3/ticker/price?symbol=ETHUSDT"

// OracleSource reads the latest oracle answer.
type OracleSource interface {
	LatestAnswer(ctx context.Context) (*big.Int, error)
}

// PoolSource reads a pool quote.
type PoolSource interface {
	PoolPrice(ctx context.Context, pool contracts.Pool) (*big.Int, error)
}

// ReaderConfig configures the off-chain feed.
type ReaderConfig struct {
	FeedURL string
	Timeout time.Duration
}

// Reader pulls the reference price and the on-chain quotes. Every call is a
// point-in-time read; nothing is cached between calls.
type Reader struct {
	feedURL    string
	httpClient *http.Client
	oracle     OracleSource
	pools      PoolSource
}

// NewReader constructs a Reader. oracle and pools may be nil for agents that
// only need the subset of reads they use.
func NewReader(cfg ReaderConfig, oracle OracleSource, pools PoolSource) *Reader {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Reader{
		feedURL:    cfg.FeedURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		oracle:     oracle,
		pools:      pools,
	}
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// ReferencePrice fetches the external feed and converts it to the oracle
// convention (OracleScale). Any network or parse failure is FEED_UNAVAILABLE.
func (r *Reader) ReferencePrice(ctx context.Context) (Price, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, nil)
	if err != nil {
		return Price{}, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "构建行情请求失败")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Price{}, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "请求行情源失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Price{}, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "读取行情响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return Price{}, xerrors.New(xerrors.CodeFeedUnavailable,
			fmt.Sprintf("行情源返回状态码 %d", resp.StatusCode),
			xerrors.WithMetadata("status", resp.Status))
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return Price{}, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "解析行情响应失败")
	}
	value, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return Price{}, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "行情价格格式非法")
	}
	price := PriceFromDecimal(value, OracleScale)
	if price.Sign() <= 0 {
		return Price{}, xerrors.New(xerrors.CodeFeedUnavailable, "行情价格必须为正数")
	}
	return price, nil
}

// OraclePrice reads the on-chain oracle answer (OracleScale).
func (r *Reader) OraclePrice(ctx context.Context) (Price, error) {
	if r.oracle == nil {
		return Price{}, xerrors.New(xerrors.CodeConfigurationMissing, "未配置预言机合约")
	}
	answer, err := r.oracle.LatestAnswer(ctx)
	if err != nil {
		return Price{}, err
	}
	return NewPrice(answer, OracleScale), nil
}

// PoolPrice reads the quote asset per volatile asset in pool (LedgerScale).
func (r *Reader) PoolPrice(ctx context.Context, pool contracts.Pool) (Price, error) {
	if r.pools == nil {
		return Price{}, xerrors.New(xerrors.CodeConfigurationMissing, "未配置 DEX 合约")
	}
	quote, err := r.pools.PoolPrice(ctx, pool)
	if err != nil {
		return Price{}, err
	}
	return NewPrice(quote, LedgerScale), nil
}
