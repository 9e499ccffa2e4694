package pool

import (
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/ledger"
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/provider"
	"context"
	"errors"
	"fmt"
)

// Deposit routes the user's funds to the provider with the best liquidity
// rate, mints derivative tokens and credits the ledger. The ledger changes
// only after the provider accepted the funds.
func (o *Orchestrator) Deposit(ctx context.Context, req Request) (*Receipt, error) {
	wf, done, err := o.begin(ctx, event.EventTypeDeposited, req)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() { done(committed) }()

	r, err := o.activeReserve(ctx, wf.req.Asset)
	if err != nil {
		return nil, o.fail(wf, err)
	}

	target, err := o.pullIntoProvider(ctx, wf)
	if err != nil {
		return nil, o.fail(wf, err)
	}

	// The provider holds the funds now: finish or compensate regardless of
	// the caller going away.
	settle := context.WithoutCancel(ctx)

	if err := o.issuer.Mint(settle, r.TokenID, wf.req.UserID, wf.req.Amount); err != nil {
		o.refund(settle, wf, target, err)
		return nil, o.fail(wf, fmt.Errorf("mint %s: %w", r.TokenID, err))
	}

	entry, err := o.store.CreditDeposit(settle, o.mutation(wf, target.ID(), wf.req.Amount))
	if err != nil {
		if burnErr := o.issuer.Burn(settle, r.TokenID, wf.req.UserID, wf.req.Amount); burnErr != nil {
			wf.log.Error().Err(burnErr).Str("token_id", r.TokenID).Msg("burn after failed ledger credit failed")
			err = errors.Join(err, burnErr)
		}
		o.refund(settle, wf, target, err)
		return nil, o.fail(wf, fmt.Errorf("credit deposit: %w", err))
	}
	committed = true

	legs := []Leg{{ProviderID: target.ID(), Amount: wf.req.Amount}}
	return o.succeed(ctx, wf, legs, []ledger.Entry{entry}), nil
}

// Repay returns borrowed funds to the provider with the best liquidity rate
// and reduces the user's debt.
func (o *Orchestrator) Repay(ctx context.Context, req Request) (*Receipt, error) {
	wf, done, err := o.begin(ctx, event.EventTypeRepaid, req)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() { done(committed) }()

	if _, err := o.activeReserve(ctx, wf.req.Asset); err != nil {
		return nil, o.fail(wf, err)
	}
	b, err := o.store.QueryUserBalance(ctx, wf.req.Asset, wf.req.UserID)
	if err != nil {
		return nil, o.fail(wf, err)
	}
	if wf.req.Amount > b.Borrowed {
		return nil, o.fail(wf, fmt.Errorf("%w: repayment %d exceeds debt %d",
			poolerr.ErrInvalidAmount, wf.req.Amount, b.Borrowed))
	}

	target, err := o.pullIntoProvider(ctx, wf)
	if err != nil {
		return nil, o.fail(wf, err)
	}

	settle := context.WithoutCancel(ctx)
	entry, err := o.store.DebitBorrow(settle, o.mutation(wf, target.ID(), wf.req.Amount))
	if err != nil {
		o.refund(settle, wf, target, err)
		return nil, o.fail(wf, fmt.Errorf("debit borrow: %w", err))
	}
	committed = true

	legs := []Leg{{ProviderID: target.ID(), Amount: wf.req.Amount}}
	return o.succeed(ctx, wf, legs, []ledger.Entry{entry}), nil
}

// pullIntoProvider moves the request amount from the user into custody and
// on into the best deposit target. A rejected provider deposit reverses the
// custody transfer.
func (o *Orchestrator) pullIntoProvider(ctx context.Context, wf *workflow) (provider.Adapter, error) {
	target, err := o.router.BestDepositTarget(ctx, wf.req.Asset)
	if err != nil {
		return nil, err
	}

	if err := o.vault.TransferIn(ctx, wf.req.Asset, wf.req.UserID, wf.req.Amount); err != nil {
		return nil, fmt.Errorf("transfer in: %w", err)
	}

	if err := target.Deposit(ctx, wf.req.Asset, wf.req.Amount); err != nil {
		o.metrics.AdapterErrors.WithLabelValues(target.ID(), "deposit").Inc()
		if revErr := o.vault.TransferOut(context.WithoutCancel(ctx), wf.req.Asset, wf.req.UserID, wf.req.Amount); revErr != nil {
			wf.log.Error().Err(revErr).Str("provider", target.ID()).Msg("custody reversal failed")
			err = errors.Join(err, revErr)
		}
		return nil, err
	}
	return target, nil
}

// refund withdraws funds a provider accepted for a workflow that could not
// commit and delivers them back to the user. ctx must not be cancellable.
func (o *Orchestrator) refund(ctx context.Context, wf *workflow, target provider.Adapter, cause error) {
	err := target.Withdraw(ctx, wf.req.Asset, wf.req.UserID, wf.req.Amount)
	if err != nil {
		o.metrics.AdapterErrors.WithLabelValues(target.ID(), "withdraw").Inc()
		wf.log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("provider", target.ID()).
			Int64("amount", wf.req.Amount).
			Msg("refund failed, funds remain at provider without ledger record")
		return
	}
	wf.log.Warn().AnErr("cause", cause).Str("provider", target.ID()).Msg("funds refunded to user")
}

func (o *Orchestrator) mutation(wf *workflow, providerID string, amount int64) ledger.Mutation {
	return ledger.Mutation{
		RequestKey: wf.req.IdempotencyKey,
		Asset:      wf.req.Asset,
		UserID:     wf.req.UserID,
		ProviderID: providerID,
		Amount:     amount,
	}
}
