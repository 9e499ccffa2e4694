// Package provider abstracts the external lending pools liquidity is
// aggregated from. Each pool family implements Adapter; the Registry keeps
// the ordered set of adapters backing every reserve.
package provider

import (
	"LendingAggregator/internal/poolerr"
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Rates is a point-in-time quote of one reserve at one provider.
// Rates use math.RateConfig, liquidity uses math.AmountConfig.
type Rates struct {
	LiquidityRate      int64
	BorrowRate         int64
	AvailableLiquidity int64
}

// Adapter is the uniform capability set of an external lending pool.
type Adapter interface {
	ID() string

	// Deposit moves amount of asset from the aggregator's custody into the pool.
	Deposit(ctx context.Context, asset string, amount int64) error

	// Withdraw moves amount of asset out of the pool and delivers it to
	// recipient. It fails rather than delivering less than amount.
	Withdraw(ctx context.Context, asset string, recipient uuid.UUID, amount int64) error

	// Reserves lists the assets the pool supports.
	Reserves(ctx context.Context) ([]string, error)

	// ReserveRates reads the current rates and liquidity of asset.
	ReserveRates(ctx context.Context, asset string) (Rates, error)
}

// Error carries the provider and operation of a failed adapter call.
// It always matches poolerr.ErrAdapterFailure.
type Error struct {
	Provider string
	Op       string
	Asset    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s %s: %v", e.Provider, e.Op, e.Asset, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{poolerr.ErrAdapterFailure, e.Err}
}

// Wrap returns nil for a nil err and an *Error otherwise.
func Wrap(providerID, op, asset string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: providerID, Op: op, Asset: asset, Err: err}
}
