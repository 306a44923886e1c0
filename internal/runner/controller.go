// Package runner drives an agent's read-decide-act loop at a fixed cadence
// until an external stop signal is observed.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"EcoBot-Chain/internal/audit"
	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/observability/alerting"
	"EcoBot-Chain/internal/observability/metrics"
)

// Agent is one role's cycle logic.
type Agent interface {
	Name() string
	// Start runs once before the first cycle. Its error is logged and does
	// not prevent the loop from starting.
	Start(ctx context.Context) error
	// Cycle performs one read-decide-act iteration.
	Cycle(ctx context.Context) error
}

// Config controls the loop.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
	// Alerts receives an event when a cycle fails with a critical error or
	// when AlertAfter cycles in a row have failed. Nil disables alerting.
	Alerts     alerting.Dispatcher
	AlertAfter int
}

// Controller runs a single agent. It is the one place where errors escaping
// a cycle are turned into a log line and a cycle boundary.
type Controller struct {
	stop       StopSignal
	interval   time.Duration
	logger     *slog.Logger
	alerts     alerting.Dispatcher
	alertAfter int
	newID      func() string
}

// NewController constructs a Controller. A nil stop signal never fires.
func NewController(stop StopSignal, cfg Config) *Controller {
	if stop == nil {
		stop = Never{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AlertAfter <= 0 {
		cfg.AlertAfter = 3
	}
	return &Controller{
		stop:       stop,
		interval:   cfg.Interval,
		logger:     cfg.Logger,
		alerts:     cfg.Alerts,
		alertAfter: cfg.AlertAfter,
		newID:      uuid.NewString,
	}
}

// Run blocks until the stop signal is observed at a cycle boundary (returns
// nil), ctx is cancelled (returns ctx.Err()), or a cycle fails with a fatal
// error such as missing configuration, which no later cycle can repair.
func (c *Controller) Run(ctx context.Context, agent Agent) error {
	name := agent.Name()
	if err := c.guard(ctx, name, "start", agent.Start); err != nil {
		c.logger.Error("Agent start step failed", slog.String("agent", name), slog.Any("error", err))
		if xerrors.IsFatal(err) {
			return err
		}
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info(fmt.Sprintf("%s stopped", name), slog.String("reason", "context"))
			return err
		}
		if c.stopRequested(ctx, name) {
			c.logger.Info(fmt.Sprintf("%s stopped", name), slog.String("reason", "kill switch"))
			return nil
		}

		id := c.newID()
		cycleCtx := audit.WithCycle(ctx, id)
		if err := c.guard(cycleCtx, name, id, agent.Cycle); err != nil {
			failures++
			c.logger.Error(fmt.Sprintf("Error in %s loop", name),
				slog.String("cycle", id),
				slog.Bool("retryable", xerrors.RetryableError(err)),
				slog.Any("error", err))
			c.alert(ctx, name, id, failures, err)
			if xerrors.IsFatal(err) {
				c.logger.Info(fmt.Sprintf("%s stopped", name), slog.String("reason", "fatal error"))
				return err
			}
		} else {
			failures = 0
		}

		if err := sleep(ctx, c.interval); err != nil {
			c.logger.Info(fmt.Sprintf("%s stopped", name), slog.String("reason", "context"))
			return err
		}
	}
}

// guard runs fn, converting a panic into an error and counting the outcome.
func (c *Controller) guard(ctx context.Context, name, id string, fn func(context.Context) error) (err error) {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			err = fmt.Errorf("cycle %s panic: %v", id, r)
			c.logger.Debug("cycle panic stack", slog.String("agent", name), slog.String("stack", string(debug.Stack())))
		}
		metrics.ObserveCycle(name, outcome)
	}()

	if err = fn(ctx); err != nil {
		outcome = "error"
	}
	return err
}

// alert notifies operators every time the consecutive failure count reaches
// a multiple of alertAfter, and immediately on classified critical errors.
// A critical error that is retryable (a node outage) alerts only on the first
// failure of a streak; one that is not retryable alerts on every failure.
func (c *Controller) alert(ctx context.Context, name, id string, failures int, err error) {
	if c.alerts == nil || !c.shouldAlert(failures, err) {
		return
	}
	if nerr := c.alerts.Notify(ctx, alerting.FromError(name, id, failures, err)); nerr != nil {
		c.logger.Warn("Failed to send alert", slog.String("agent", name), slog.Any("error", nerr))
	}
}

func (c *Controller) shouldAlert(failures int, err error) bool {
	if failures%c.alertAfter == 0 {
		return true
	}
	e, ok := xerrors.From(err)
	if !ok || e.Severity() != xerrors.SeverityCritical {
		return false
	}
	return failures == 1 || !e.Retryable()
}

func (c *Controller) stopRequested(ctx context.Context, name string) bool {
	stopped, err := c.stop.StopRequested(ctx)
	if err != nil {
		// An unreadable marker means keep running.
		c.logger.Warn("Kill switch check failed", slog.String("agent", name), slog.Any("error", err))
		return false
	}
	return stopped
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
