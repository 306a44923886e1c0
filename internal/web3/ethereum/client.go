package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/web3"
)

// Config describes how to construct an EVM compatible gateway.
type Config struct {
	RPCURL string
	// CallTimeout bounds every read-only RPC request; zero disables it.
	CallTimeout time.Duration
	// PollInterval is how often a pending receipt is polled for.
	PollInterval time.Duration
}

// backend mirrors the subset of ethclient used by the gateway.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements web3.Gateway for EVM compatible chains.
type Client struct {
	rpcClient    *gethrpc.Client
	eth          backend
	callTimeout  time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint. Connectivity is verified by
// fetching the chain id so a dead endpoint fails at startup.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeConfigurationMissing, "未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, "连接以太坊节点失败")
	}

	client := newClient(ethclient.NewClient(rpcClient), cfg)
	client.rpcClient = rpcClient
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func newClient(eth backend, cfg Config) *Client {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Client{eth: eth, callTimeout: cfg.CallTimeout, pollInterval: poll}
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID returns the chain id, cached after the first successful lookup.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, "获取链 ID 失败")
	}

	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// CallContract performs a view call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	out, err := c.eth.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyCallError(err, fmt.Sprintf("调用合约 %s 失败", to.Hex()))
	}
	return out, nil
}

// PendingNonce returns the next sequence number including pending transactions.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, "查询交易计数失败")
	}
	return nonce, nil
}

// SuggestGasPrice returns the network's current price per gas.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, "查询 gas 价格失败")
	}
	return price, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	if tx == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "交易不能为空")
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		if isTransportError(err) {
			return xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, "发送交易失败")
		}
		return xerrors.Wrap(xerrors.CodeSubmissionRejected, err, "节点拒绝交易")
	}
	return nil
}

// WaitForReceipt polls until the transaction is mined or ctx ends. An
// expired deadline is CONFIRMATION_TIMEOUT; a cancelled ctx is CANCELED.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) && ctx.Err() == nil {
			return nil, xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, "查询交易回执失败")
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, xerrors.Wrap(xerrors.CodeCanceled, ctx.Err(),
					fmt.Sprintf("等待交易 %s 确认时被取消", hash.Hex()))
			}
			return nil, xerrors.Wrap(xerrors.CodeConfirmationTimeout, ctx.Err(),
				fmt.Sprintf("等待交易 %s 确认超时", hash.Hex()))
		case <-ticker.C:
		}
	}
}

func (c *Client) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func classifyCallError(err error, message string) error {
	if isTransportError(err) {
		return xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, message)
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) || strings.Contains(strings.ToLower(err.Error()), "revert") {
		return xerrors.Wrap(xerrors.CodeCallReverted, err, message)
	}
	return xerrors.Wrap(xerrors.CodeLedgerUnreachable, err, message)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var httpErr gethrpc.HTTPError
	return errors.As(err, &httpErr) || strings.Contains(err.Error(), "connection refused")
}

var _ web3.Gateway = (*Client)(nil)
