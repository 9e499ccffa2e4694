// Package router picks providers for each workflow from fresh rate quotes.
package router

import (
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/provider"
	"context"
	"errors"
	"fmt"
	"time"
)

// Quote is one provider's rates for an asset at the moment of a routing
// decision. Quotes are never cached.
type Quote struct {
	Provider provider.Adapter
	provider.Rates
}

// ProviderID returns the quoted provider's id.
func (q Quote) ProviderID() string { return q.Provider.ID() }

type Router struct {
	registry *provider.Registry
	metrics  *observability.Metrics
}

func New(registry *provider.Registry, metrics *observability.Metrics) *Router {
	return &Router{registry: registry, metrics: metrics}
}

// Quotes queries every registered provider of asset in registration order.
// Any failing provider fails the whole snapshot.
func (r *Router) Quotes(ctx context.Context, asset string) ([]Quote, error) {
	providers := r.registry.Providers(asset)
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: %s", poolerr.ErrNoProviderAvailable, asset)
	}

	start := time.Now()
	quotes := make([]Quote, 0, len(providers))
	for _, p := range providers {
		rates, err := p.ReserveRates(ctx, asset)
		if err != nil {
			r.metrics.AdapterErrors.WithLabelValues(p.ID(), "rates").Inc()
			if !errors.Is(err, poolerr.ErrAdapterFailure) {
				err = provider.Wrap(p.ID(), "rates", asset, err)
			}
			return nil, err
		}
		quotes = append(quotes, Quote{Provider: p, Rates: rates})
	}
	r.metrics.QuoteLatency.WithLabelValues(asset).Observe(time.Since(start).Seconds())
	return quotes, nil
}

// BestDepositTarget returns the provider with the strictly highest liquidity
// rate. Ties go to the earliest registered provider.
func (r *Router) BestDepositTarget(ctx context.Context, asset string) (provider.Adapter, error) {
	quotes, err := r.Quotes(ctx, asset)
	if err != nil {
		return nil, err
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.LiquidityRate > best.LiquidityRate {
			best = q
		}
	}
	return best.Provider, nil
}

// CheapestWithdrawSource returns the non-empty provider with the lowest
// liquidity rate and its available liquidity, both from the same quote.
// Ties go to the earliest registered provider.
func (r *Router) CheapestWithdrawSource(ctx context.Context, asset string) (provider.Adapter, int64, error) {
	quotes, err := r.Quotes(ctx, asset)
	if err != nil {
		return nil, 0, err
	}

	var (
		best  Quote
		found bool
	)
	for _, q := range quotes {
		if q.AvailableLiquidity <= 0 {
			continue
		}
		if !found || q.LiquidityRate < best.LiquidityRate {
			best = q
			found = true
		}
	}
	if !found {
		return nil, 0, fmt.Errorf("%w: every provider of %s is empty", poolerr.ErrInsufficientLiquidity, asset)
	}
	return best.Provider, best.AvailableLiquidity, nil
}

// BestRates returns the highest deposit rate and the lowest borrow rate
// across providers. Used for display and quoting only.
func (r *Router) BestRates(ctx context.Context, asset string) (depositRate, borrowRate int64, err error) {
	quotes, err := r.Quotes(ctx, asset)
	if err != nil {
		return 0, 0, err
	}

	depositRate = quotes[0].LiquidityRate
	borrowRate = quotes[0].BorrowRate
	for _, q := range quotes[1:] {
		if q.LiquidityRate > depositRate {
			depositRate = q.LiquidityRate
		}
		if q.BorrowRate < borrowRate {
			borrowRate = q.BorrowRate
		}
	}
	return depositRate, borrowRate, nil
}

// TotalAvailableLiquidity sums available liquidity across providers.
func (r *Router) TotalAvailableLiquidity(ctx context.Context, asset string) (int64, error) {
	quotes, err := r.Quotes(ctx, asset)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, q := range quotes {
		total += q.AvailableLiquidity
	}
	return total, nil
}
