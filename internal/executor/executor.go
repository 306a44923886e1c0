// Package executor submits ledger transactions for one agent identity.
//
// Every transaction is built with a freshly fetched pending nonce, a static
// gas ceiling taken from the call, and the network's current gas price; it is
// then signed, sent and awaited before the caller may issue the next
// dependent step. The executor never retries: a failed step is returned to
// the caller, and the next cycle recomputes from fresh state.
package executor

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"EcoBot-Chain/internal/audit"
	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/observability/metrics"
	"EcoBot-Chain/internal/web3"
)

// Transaction outcomes as written to records and metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeReverted = "reverted"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeFailed   = "failed"
)

// Signer is the agent identity.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Config controls submission.
type Config struct {
	Agent               string
	ConfirmationTimeout time.Duration
}

// Executor submits calls on behalf of a single signer.
type Executor struct {
	gw       web3.Gateway
	signer   Signer
	recorder audit.Recorder
	logger   *slog.Logger
	agent    string
	timeout  time.Duration

	newID func() string
	now   func() time.Time
}

// New constructs an Executor.
func New(gw web3.Gateway, signer Signer, recorder audit.Recorder, logger *slog.Logger, cfg Config) *Executor {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ConfirmationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{
		gw:       gw,
		signer:   signer,
		recorder: recorder,
		logger:   logger,
		agent:    cfg.Agent,
		timeout:  timeout,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Address returns the signer address.
func (e *Executor) Address() common.Address { return e.signer.Address() }

// Transact signs, submits and awaits a single call. A nil error means the
// transaction was mined with a successful status.
func (e *Executor) Transact(ctx context.Context, call web3.Call) (common.Hash, error) {
	submittedAt := e.now()

	signed, err := e.build(ctx, call)
	if err != nil {
		metrics.ObserveTransaction(e.agent, call.Method, OutcomeFailed, 0)
		e.logger.Error("Failed to prepare transaction", slog.String("call", call.String()), slog.Any("error", err))
		return common.Hash{}, err
	}
	hash := signed.Hash()

	if err := e.gw.SendTransaction(ctx, signed); err != nil {
		e.finish(ctx, call, hash, submittedAt, OutcomeRejected, 0, err)
		return hash, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	started := e.now()
	receipt, err := e.gw.WaitForReceipt(waitCtx, hash)
	waited := e.now().Sub(started)
	if err != nil {
		outcome := OutcomeFailed
		if xerrors.HasCode(err, xerrors.CodeConfirmationTimeout) {
			outcome = OutcomeTimeout
		}
		e.finish(ctx, call, hash, submittedAt, outcome, 0, err)
		return hash, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := xerrors.New(xerrors.CodeCallReverted, "交易执行失败: "+call.String(),
			xerrors.WithMetadata("tx_hash", hash.Hex()))
		e.finish(ctx, call, hash, submittedAt, OutcomeReverted, waited, err)
		return hash, err
	}

	e.finish(ctx, call, hash, submittedAt, OutcomeSuccess, waited, nil)
	return hash, nil
}

// Staged holds the hashes of an approval followed by its action.
type Staged struct {
	Approval common.Hash
	Action   common.Hash
}

// ApproveAndTransact submits the allowance grant, waits for it, and only
// then submits the action. The action is never issued when the approval
// step fails.
func (e *Executor) ApproveAndTransact(ctx context.Context, approval, action web3.Call) (Staged, error) {
	var staged Staged
	hash, err := e.Transact(ctx, approval)
	staged.Approval = hash
	if err != nil {
		return staged, err
	}
	staged.Action, err = e.Transact(ctx, action)
	return staged, err
}

func (e *Executor) build(ctx context.Context, call web3.Call) (*types.Transaction, error) {
	if call.GasLimit == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未设置 gas 上限: "+call.String())
	}
	chainID, err := e.gw.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := e.gw.PendingNonce(ctx, e.signer.Address())
	if err != nil {
		return nil, err
	}
	gasPrice, err := e.gw.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	to := call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      call.GasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := e.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSubmissionRejected, err, "交易签名失败")
	}
	return signed, nil
}

func (e *Executor) finish(ctx context.Context, call web3.Call, hash common.Hash, submittedAt time.Time, outcome string, waited time.Duration, cause error) {
	metrics.ObserveTransaction(e.agent, call.Method, outcome, waited)

	data := map[string]any{
		"id":           e.newID(),
		"submitted_at": submittedAt.UTC().Format(time.RFC3339Nano),
		"kind":         call.Method,
		"params":       call.Params(),
		"tx_hash":      hash.Hex(),
		"outcome":      outcome,
		"from":         e.signer.Address().Hex(),
	}
	if cycle := audit.CycleFrom(ctx); cycle != "" {
		data["cycle_id"] = cycle
	}
	if cause != nil {
		data["error"] = cause.Error()
		data["error_code"] = string(xerrors.CodeOf(cause))
		e.logger.Error("Transaction failed",
			slog.String("call", call.String()),
			slog.String("tx", hash.Hex()),
			slog.String("outcome", outcome),
			slog.Any("error", cause))
	} else {
		e.logger.Info("Transaction confirmed",
			slog.String("call", call.String()),
			slog.String("tx", hash.Hex()))
	}

	if err := e.recorder.Record(ctx, audit.Event{Type: audit.EventTransaction, Timestamp: submittedAt, Data: data}); err != nil {
		e.logger.Warn("Failed to record transaction", slog.String("tx", hash.Hex()), slog.Any("error", err))
	}
}
