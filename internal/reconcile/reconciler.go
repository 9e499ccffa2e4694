// Package reconcile watches the gap between what providers report and what
// the ledger believes is available. It only reports; it never corrects.
package reconcile

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/poolerr"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReserveLister lists the ledger's reserves.
type ReserveLister interface {
	ListReserves(ctx context.Context) ([]ledger.Reserve, error)
}

// LiquiditySource sums provider liquidity for an asset.
type LiquiditySource interface {
	TotalAvailableLiquidity(ctx context.Context, asset string) (int64, error)
}

// Gap is one reserve's reconciliation result. Amounts are fixed-point.
type Gap struct {
	Asset             string
	ProviderLiquidity int64
	LedgerAvailable   int64
}

// Delta is provider liquidity minus ledger available liquidity.
func (g Gap) Delta() int64 { return g.ProviderLiquidity - g.LedgerAvailable }

// Reconciler compares Σ provider liquidity with the ledger per reserve.
type Reconciler struct {
	reserves  ReserveLister
	liquidity LiquiditySource
	tolerance int64
	timeout   time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewReconciler creates a reconciler. Gaps with |delta| <= tolerance are
// not logged but still exported.
func NewReconciler(reserves ReserveLister, liquidity LiquiditySource, tolerance int64,
	metrics *observability.Metrics, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		reserves:  reserves,
		liquidity: liquidity,
		tolerance: tolerance,
		timeout:   30 * time.Second,
		metrics:   metrics,
		logger:    logger,
	}
}

func (r *Reconciler) Name() string { return "reconcile-liquidity" }

// Run reconciles every reserve once. A reserve without providers is
// skipped. Any other provider failure fails the run after every reserve
// has been tried.
func (r *Reconciler) Run(ctx context.Context) ([]Gap, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reserves, err := r.reserves.ListReserves(ctx)
	if err != nil {
		r.metrics.ReconciliationRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list reserves: %w", err)
	}

	var (
		gaps []Gap
		errs []error
	)
	for _, res := range reserves {
		total, err := r.liquidity.TotalAvailableLiquidity(ctx, res.Asset)
		if errors.Is(err, poolerr.ErrNoProviderAvailable) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Asset, err))
			continue
		}

		g := Gap{Asset: res.Asset, ProviderLiquidity: total, LedgerAvailable: res.AvailableLiquidity}
		gaps = append(gaps, g)
		r.metrics.ReconciliationGap.WithLabelValues(res.Asset).
			Set(fpmath.ToDecimal(g.Delta(), fpmath.AmountConfig).InexactFloat64())

		if abs(g.Delta()) > r.tolerance {
			r.logger.Warn().
				Str("asset", g.Asset).
				Int64("provider_liquidity", g.ProviderLiquidity).
				Int64("ledger_available", g.LedgerAvailable).
				Int64("delta", g.Delta()).
				Msg("liquidity drift between providers and ledger")
		}
	}

	if len(errs) > 0 {
		r.metrics.ReconciliationRuns.WithLabelValues("error").Inc()
		return gaps, errors.Join(errs...)
	}
	r.metrics.ReconciliationRuns.WithLabelValues("ok").Inc()
	return gaps, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
