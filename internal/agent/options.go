package agent

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"EcoBot-Chain/internal/audit"
	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/executor"
	"EcoBot-Chain/internal/strategy"
	"EcoBot-Chain/internal/web3"
)

// Submitter sends one transaction and waits for it. *executor.Executor
// satisfies it.
type Submitter interface {
	Address() common.Address
	Transact(ctx context.Context, call web3.Call) (common.Hash, error)
}

// ActionRunner carries out an intended action. *executor.Actions satisfies
// it.
type ActionRunner interface {
	Address() common.Address
	Execute(ctx context.Context, action strategy.Action) (executor.Result, error)
}

// Option configures an agent.
type Option func(*base)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRecorder sets where statistics events go.
func WithRecorder(recorder audit.Recorder) Option {
	return func(b *base) {
		if recorder != nil {
			b.recorder = recorder
		}
	}
}

// WithLabel sets the human readable name used in log lines.
func WithLabel(label string) Option {
	return func(b *base) {
		if label != "" {
			b.label = label
		}
	}
}

// base carries what every agent role shares.
type base struct {
	name     string
	label    string
	logger   *slog.Logger
	recorder audit.Recorder
}

func newBase(name string, opts []Option) base {
	b := base{name: name, label: name, logger: slog.Default(), recorder: audit.Nop{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	b.logger = b.logger.With(slog.String("agent", name))
	return b
}

// Name implements runner.Agent.
func (b *base) Name() string { return b.name }

// record writes a statistics event. A failing sink is logged and never
// fails the cycle.
func (b *base) record(ctx context.Context, eventType string, data map[string]any) {
	if err := b.recorder.Record(ctx, audit.NewEvent(eventType, data)); err != nil {
		b.logger.Warn("Failed to record statistics event",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}
}

func errMissing(what string) error {
	return xerrors.New(xerrors.CodeConfigurationMissing, "未配置"+what)
}
