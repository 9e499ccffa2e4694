// Package pool runs the deposit, borrow, redeem and repay workflows over the
// ledger, the provider router and the risk engine.
package pool

import (
	"LendingAggregator/internal/custody"
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/provider"
	"LendingAggregator/internal/risk"
	"LendingAggregator/internal/router"
	"LendingAggregator/internal/token"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Leg is the share of a workflow's amount moved through one provider.
type Leg = event.Leg

// Request is the input of every amount-moving workflow.
type Request struct {
	Asset          string
	UserID         uuid.UUID
	Amount         int64
	IdempotencyKey string // generated when empty
}

// Receipt describes a committed workflow.
type Receipt struct {
	RequestKey string
	Asset      string
	UserID     uuid.UUID
	Amount     int64
	Legs       []Leg
	Entries    []ledger.Entry
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store    ledger.Store
	Registry *provider.Registry
	Router   *router.Router
	Risk     *risk.Engine
	Issuer   token.Issuer
	Vault    custody.Vault
	Events   event.Sink
	Metrics  *observability.Metrics
	Logger   zerolog.Logger

	// DedupCapacity bounds the in-memory idempotency LRU.
	DedupCapacity int
}

// Orchestrator executes each workflow as one exclusive transaction per user
// and reserve. Steps within a workflow are sequential.
type Orchestrator struct {
	store    ledger.Store
	registry *provider.Registry
	router   *router.Router
	risk     *risk.Engine
	issuer   token.Issuer
	vault    custody.Vault
	events   event.Sink
	metrics  *observability.Metrics
	logger   zerolog.Logger

	locks       *keyedMutex
	idempotency *idempotencyChecker
	now         func() time.Time
}

func New(d Deps) *Orchestrator {
	if d.Events == nil {
		d.Events = event.Discard
	}
	if d.DedupCapacity <= 0 {
		d.DedupCapacity = 100_000
	}
	return &Orchestrator{
		store:       d.Store,
		registry:    d.Registry,
		router:      d.Router,
		risk:        d.Risk,
		issuer:      d.Issuer,
		vault:       d.Vault,
		events:      d.Events,
		metrics:     d.Metrics,
		logger:      d.Logger,
		locks:       newKeyedMutex(),
		idempotency: newIdempotencyChecker(d.DedupCapacity, d.Store, d.Metrics),
		now:         time.Now,
	}
}

// workflow carries the per-call state every step shares.
type workflow struct {
	kind  event.EventType
	req   Request
	start time.Time
	log   zerolog.Logger
}

// begin validates the request, claims its idempotency key and takes the
// workflow locks. The returned func must be called with whether any funds
// moved, which retires the key for good.
func (o *Orchestrator) begin(ctx context.Context, kind event.EventType, req Request) (*workflow, func(committed bool), error) {
	if err := ledger.ValidateAmount(req.Amount); err != nil {
		return nil, nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	wf := &workflow{
		kind:  kind,
		req:   req,
		start: time.Now(),
		log: o.logger.With().
			Str("workflow", kind.String()).
			Str("asset", req.Asset).
			Str("user_id", req.UserID.String()).
			Str("request_key", req.IdempotencyKey).
			Logger(),
	}

	if err := o.idempotency.Begin(ctx, kind.String(), req.IdempotencyKey); err != nil {
		return nil, nil, err
	}
	unlock, err := o.lockWorkflow(ctx, req.UserID.String(), req.Asset)
	if err != nil {
		o.idempotency.Finish(req.IdempotencyKey, false)
		return nil, nil, err
	}

	return wf, func(committed bool) {
		unlock()
		o.idempotency.Finish(req.IdempotencyKey, committed)
	}, nil
}

// activeReserve loads the reserve and requires it to be active.
func (o *Orchestrator) activeReserve(ctx context.Context, asset string) (ledger.Reserve, error) {
	r, err := o.store.QueryReserve(ctx, asset)
	if err != nil {
		return ledger.Reserve{}, err
	}
	if !r.Active {
		return ledger.Reserve{}, fmt.Errorf("%w: %s", poolerr.ErrReserveInactive, asset)
	}
	return r, nil
}

// checkLiquidity requires amount to fit both the providers' live liquidity
// and the ledger's available liquidity. No adapter is called on failure.
func (o *Orchestrator) checkLiquidity(ctx context.Context, r ledger.Reserve, amount int64) error {
	total, err := o.router.TotalAvailableLiquidity(ctx, r.Asset)
	if err != nil {
		return err
	}
	if amount > total {
		return fmt.Errorf("%w: requested %d %s, providers hold %d",
			poolerr.ErrInsufficientLiquidity, amount, r.Asset, total)
	}
	if amount > r.AvailableLiquidity {
		return fmt.Errorf("%w: requested %d %s, reserve has %d available",
			poolerr.ErrInsufficientLiquidity, amount, r.Asset, r.AvailableLiquidity)
	}
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, wf *workflow, legs []Leg, entries []ledger.Entry) *Receipt {
	ctx = context.WithoutCancel(ctx)
	kind := wf.kind.String()
	o.metrics.WorkflowsCompleted.WithLabelValues(kind, wf.req.Asset).Inc()
	o.metrics.WorkflowDuration.WithLabelValues(kind).Observe(time.Since(wf.start).Seconds())
	o.metrics.WorkflowAmount.WithLabelValues(kind, wf.req.Asset).
		Add(fpmath.ToDecimal(wf.req.Amount, fpmath.AmountConfig).InexactFloat64())
	o.refreshReserveGauges(ctx, wf.req.Asset)

	var lastSeq int64
	if len(entries) > 0 {
		lastSeq = entries[len(entries)-1].Sequence
	}
	o.events.Emit(ctx, &event.WorkflowCompleted{
		Kind:         wf.kind,
		RequestKey:   wf.req.IdempotencyKey,
		UserID:       wf.req.UserID,
		Asset:        wf.req.Asset,
		Amount:       wf.req.Amount,
		Legs:         legs,
		LastSequence: lastSeq,
		Timestamp:    o.now(),
	})

	wf.log.Info().
		Int64("amount", wf.req.Amount).
		Int("legs", len(legs)).
		Int64("sequence", lastSeq).
		Dur("duration", time.Since(wf.start)).
		Msg("workflow committed")

	return &Receipt{
		RequestKey: wf.req.IdempotencyKey,
		Asset:      wf.req.Asset,
		UserID:     wf.req.UserID,
		Amount:     wf.req.Amount,
		Legs:       legs,
		Entries:    entries,
	}
}

func (o *Orchestrator) fail(wf *workflow, err error) error {
	o.metrics.WorkflowsRejected.WithLabelValues(wf.kind.String(), wf.req.Asset, poolerr.Code(err)).Inc()
	wf.log.Warn().Err(err).Int64("amount", wf.req.Amount).Str("code", poolerr.Code(err)).Msg("workflow rejected")
	return err
}

func (o *Orchestrator) refreshReserveGauges(ctx context.Context, asset string) {
	r, err := o.store.QueryReserve(ctx, asset)
	if err != nil {
		return
	}
	o.metrics.ReserveTotalLiquidity.WithLabelValues(asset).
		Set(fpmath.ToDecimal(r.TotalLiquidity, fpmath.AmountConfig).InexactFloat64())
	o.metrics.ReserveAvailableLiquidity.WithLabelValues(asset).
		Set(fpmath.ToDecimal(r.AvailableLiquidity, fpmath.AmountConfig).InexactFloat64())
}
