package ingestion

import (
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/pool"
	"LendingAggregator/internal/poolerr"
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Workflows is the part of the orchestrator commands are dispatched to.
type Workflows interface {
	Deposit(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	Borrow(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	RedeemUnderlying(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	Repay(ctx context.Context, req pool.Request) (*pool.Receipt, error)
}

// Dispatcher runs received commands one at a time, in arrival order.
//
// Every processed command is acknowledged, rejected ones included: the
// outcome is already visible through metrics, logs and outbound events, and
// workflows are never retried automatically. Malformed commands are
// terminated. Only commands interrupted by shutdown before any funds moved
// are redelivered; a partial delivery is acknowledged even then.
type Dispatcher struct {
	workflows Workflows
	input     <-chan RawCommand
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewDispatcher(workflows Workflows, input <-chan RawCommand, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		workflows: workflows,
		input:     input,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run processes commands until ctx is done or the input channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-d.input:
			if !ok {
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw RawCommand) {
	name, err := CommandFromSubject(raw.Subject)
	if err == nil {
		var cmd Command
		cmd, err = ParseCommand(raw, name)
		if err == nil {
			d.execute(ctx, raw, cmd)
			return
		}
	}

	d.metrics.CommandsReceived.WithLabelValues(commandLabel(name), "malformed").Inc()
	d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed command")
	call(raw.TermFunc)
}

func (d *Dispatcher) execute(ctx context.Context, raw RawCommand, cmd Command) {
	var run func(context.Context, pool.Request) (*pool.Receipt, error)
	switch cmd.Name {
	case CommandDeposit:
		run = d.workflows.Deposit
	case CommandBorrow:
		run = d.workflows.Borrow
	case CommandRedeem:
		run = d.workflows.RedeemUnderlying
	case CommandRepay:
		run = d.workflows.Repay
	}

	_, err := run(ctx, cmd.Request)
	_, partial := pool.IsPartialDelivery(err)
	switch {
	case err == nil:
		d.metrics.CommandsReceived.WithLabelValues(cmd.Name, "committed").Inc()
		call(raw.AckFunc)
	case partial:
		d.metrics.CommandsReceived.WithLabelValues(cmd.Name, "partial").Inc()
		d.logger.Error().
			Err(err).
			Str("command", cmd.Name).
			Str("request_key", cmd.Request.IdempotencyKey).
			Msg("command partially delivered")
		call(raw.AckFunc)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		d.metrics.CommandsReceived.WithLabelValues(cmd.Name, "interrupted").Inc()
		call(raw.NakFunc)
	default:
		d.metrics.CommandsReceived.WithLabelValues(cmd.Name, "rejected").Inc()
		d.logger.Info().
			Err(err).
			Str("command", cmd.Name).
			Str("code", poolerr.Code(err)).
			Str("request_key", cmd.Request.IdempotencyKey).
			Msg("command rejected")
		call(raw.AckFunc)
	}
}

func commandLabel(name string) string {
	switch name {
	case CommandDeposit, CommandBorrow, CommandRedeem, CommandRepay:
		return name
	}
	return "unknown"
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
