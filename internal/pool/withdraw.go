package pool

import (
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/ledger"
	"LendingAggregator/internal/poolerr"
	"context"
	"errors"
	"fmt"
)

// chunkSteps are a workflow's own steps around each waterfall chunk.
//
// prepare runs before the provider is asked for the chunk and undo reverses
// it when the provider refuses. commit records a delivered chunk in the
// ledger. undo and commit run after funds may have moved, so they get a
// context that is never cancelled.
type chunkSteps struct {
	prepare func(ctx context.Context, chunk int64) error
	undo    func(ctx context.Context, chunk int64) error
	commit  func(ctx context.Context, providerID string, chunk int64) (ledger.Entry, error)
}

// Borrow delivers amount to the user from the cheapest providers and
// records it as debt. The user's deposits are not reduced.
func (o *Orchestrator) Borrow(ctx context.Context, req Request) (*Receipt, error) {
	wf, done, err := o.begin(ctx, event.EventTypeBorrowed, req)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() { done(committed) }()

	r, err := o.activeReserve(ctx, wf.req.Asset)
	if err != nil {
		return nil, o.fail(wf, err)
	}
	if err := o.checkLiquidity(ctx, r, wf.req.Amount); err != nil {
		return nil, o.fail(wf, err)
	}
	if err := o.risk.AuthorizeBorrow(ctx, wf.req.UserID, wf.req.Asset, wf.req.Amount); err != nil {
		return nil, o.fail(wf, err)
	}

	legs, entries, err := o.waterfall(ctx, wf, chunkSteps{
		commit: func(ctx context.Context, providerID string, chunk int64) (ledger.Entry, error) {
			return o.store.CreditBorrow(ctx, o.mutation(wf, providerID, chunk))
		},
	})
	committed = len(legs) > 0
	if err != nil {
		return nil, err
	}
	return o.succeed(ctx, wf, legs, entries), nil
}

// RedeemUnderlying returns deposited funds to the user from the cheapest
// providers. Each chunk's derivative tokens are burned before the provider
// pays out and re-minted if it refuses; the deposit is debited once the
// chunk was delivered.
func (o *Orchestrator) RedeemUnderlying(ctx context.Context, req Request) (*Receipt, error) {
	wf, done, err := o.begin(ctx, event.EventTypeRedeemed, req)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() { done(committed) }()

	r, err := o.activeReserve(ctx, wf.req.Asset)
	if err != nil {
		return nil, o.fail(wf, err)
	}
	b, err := o.store.QueryUserBalance(ctx, wf.req.Asset, wf.req.UserID)
	if err != nil {
		return nil, o.fail(wf, err)
	}
	if wf.req.Amount > b.Deposited {
		return nil, o.fail(wf, fmt.Errorf("%w: redeem %d, deposited %d",
			poolerr.ErrInsufficientBalance, wf.req.Amount, b.Deposited))
	}
	if err := o.risk.AuthorizeWithdrawal(ctx, wf.req.UserID, wf.req.Asset, wf.req.Amount); err != nil {
		return nil, o.fail(wf, err)
	}
	if err := o.checkLiquidity(ctx, r, wf.req.Amount); err != nil {
		return nil, o.fail(wf, err)
	}

	legs, entries, err := o.waterfall(ctx, wf, chunkSteps{
		prepare: func(ctx context.Context, chunk int64) error {
			if err := o.issuer.Burn(ctx, r.TokenID, wf.req.UserID, chunk); err != nil {
				return fmt.Errorf("burn %s: %w", r.TokenID, err)
			}
			return nil
		},
		undo: func(ctx context.Context, chunk int64) error {
			if err := o.issuer.Mint(ctx, r.TokenID, wf.req.UserID, chunk); err != nil {
				return fmt.Errorf("re-mint %s: %w", r.TokenID, err)
			}
			return nil
		},
		commit: func(ctx context.Context, providerID string, chunk int64) (ledger.Entry, error) {
			return o.store.DebitWithdrawal(ctx, o.mutation(wf, providerID, chunk))
		},
	})
	committed = len(legs) > 0
	if err != nil {
		return nil, err
	}
	return o.succeed(ctx, wf, legs, entries), nil
}

// waterfall delivers the request amount cheapest provider first. Each
// chunk is committed right after the provider delivered it, on a context
// detached from the caller, so a failure or cancellation part way leaves
// the ledger matching exactly what was sent.
func (o *Orchestrator) waterfall(ctx context.Context, wf *workflow, steps chunkSteps) ([]Leg, []ledger.Entry, error) {
	var (
		legs      []Leg
		entries   []ledger.Entry
		remaining = wf.req.Amount
		settle    = context.WithoutCancel(ctx)
	)

	// Each iteration either finishes or exhausts one provider.
	maxIterations := len(o.registry.Providers(wf.req.Asset))

	for i := 0; remaining > 0; i++ {
		if err := ctx.Err(); err != nil {
			return legs, entries, o.stopWaterfall(ctx, wf, legs, entries, remaining, err)
		}
		if i >= maxIterations {
			err := fmt.Errorf("%w: %d of %s still owed after %d providers",
				poolerr.ErrInsufficientLiquidity, remaining, wf.req.Asset, maxIterations)
			return legs, entries, o.stopWaterfall(ctx, wf, legs, entries, remaining, err)
		}

		source, available, err := o.router.CheapestWithdrawSource(ctx, wf.req.Asset)
		if err != nil {
			return legs, entries, o.stopWaterfall(ctx, wf, legs, entries, remaining, err)
		}
		chunk := min(remaining, available)

		if steps.prepare != nil {
			if err := steps.prepare(ctx, chunk); err != nil {
				return legs, entries, o.stopWaterfall(ctx, wf, legs, entries, remaining, err)
			}
		}

		if err := source.Withdraw(ctx, wf.req.Asset, wf.req.UserID, chunk); err != nil {
			o.metrics.AdapterErrors.WithLabelValues(source.ID(), "withdraw").Inc()
			if steps.undo != nil {
				if undoErr := steps.undo(settle, chunk); undoErr != nil {
					wf.log.Error().
						Err(undoErr).
						AnErr("cause", err).
						Str("provider", source.ID()).
						Int64("chunk", chunk).
						Msg("chunk refused by provider and could not be restored")
					err = errors.Join(err, undoErr)
				}
			}
			return legs, entries, o.stopWaterfall(ctx, wf, legs, entries, remaining, err)
		}
		remaining -= chunk
		legs = append(legs, Leg{ProviderID: source.ID(), Amount: chunk})

		entry, err := steps.commit(settle, source.ID(), chunk)
		if err != nil {
			wf.log.Error().
				Err(err).
				Str("provider", source.ID()).
				Int64("chunk", chunk).
				Msg("chunk delivered but ledger commit failed")
			return legs, entries, o.stopWaterfall(ctx, wf, legs, entries, remaining, err)
		}
		entries = append(entries, entry)
	}

	o.metrics.WaterfallLegs.WithLabelValues(wf.kind.String()).Observe(float64(len(legs)))
	return legs, entries, nil
}

// stopWaterfall turns a failure into the workflow's error. Nothing delivered
// means a plain failure; otherwise a PartialDeliveryError.
func (o *Orchestrator) stopWaterfall(ctx context.Context, wf *workflow, legs []Leg, entries []ledger.Entry, remaining int64, cause error) error {
	if len(legs) == 0 {
		return o.fail(wf, cause)
	}
	ctx = context.WithoutCancel(ctx)

	delivered := wf.req.Amount - remaining
	kind := wf.kind.String()
	o.metrics.PartialDeliveries.WithLabelValues(kind, wf.req.Asset).Inc()
	o.metrics.WorkflowsRejected.WithLabelValues(kind, wf.req.Asset, poolerr.Code(cause)).Inc()
	o.refreshReserveGauges(ctx, wf.req.Asset)

	var lastSeq int64
	if len(entries) > 0 {
		lastSeq = entries[len(entries)-1].Sequence
	}
	o.events.Emit(ctx, &event.PartialDelivery{
		Workflow:     wf.kind,
		WorkflowName: kind,
		RequestKey:   wf.req.IdempotencyKey,
		UserID:       wf.req.UserID,
		Asset:        wf.req.Asset,
		Requested:    wf.req.Amount,
		Delivered:    delivered,
		Legs:         legs,
		Reason:       cause.Error(),
		LastSequence: lastSeq,
		Timestamp:    o.now(),
	})

	wf.log.Error().
		Err(cause).
		Int64("requested", wf.req.Amount).
		Int64("delivered", delivered).
		Int("legs", len(legs)).
		Msg("waterfall stopped after partial delivery")

	return &PartialDeliveryError{
		Requested: wf.req.Amount,
		Delivered: delivered,
		Remaining: remaining,
		Legs:      legs,
		Err:       cause,
	}
}

// IsPartialDelivery reports whether err is a PartialDeliveryError and returns it.
func IsPartialDelivery(err error) (*PartialDeliveryError, bool) {
	var pde *PartialDeliveryError
	if errors.As(err, &pde) {
		return pde, true
	}
	return nil, false
}
