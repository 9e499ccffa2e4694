// Package risk computes collateral ceilings from ledger balances and prices.
package risk

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/poolerr"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PriceFeed returns the price of one whole unit of asset in the common unit
// of account, scaled by math.PriceConfig. Errors match poolerr.ErrPriceUnavailable.
type PriceFeed interface {
	Price(ctx context.Context, asset string) (int64, error)
}

// AccountSummary is a user's position across every reserve, in the common
// unit of account (math.ValueConfig).
type AccountSummary struct {
	CollateralValue int64 // sum of deposit value weighted by loan-to-value
	DebtValue       int64
	MaxBorrowValue  int64 // max(0, collateral - debt)
}

// Engine is read-only: it never mutates the ledger.
type Engine struct {
	store  ledger.Store
	prices PriceFeed
}

func NewEngine(store ledger.Store, prices PriceFeed) *Engine {
	return &Engine{store: store, prices: prices}
}

// Account computes the user's collateral, debt and borrowing headroom.
// Collateral rounds down and debt rounds up.
func (e *Engine) Account(ctx context.Context, userID uuid.UUID) (AccountSummary, error) {
	balances, reserves, err := e.load(ctx, userID)
	if err != nil {
		return AccountSummary{}, err
	}

	var s AccountSummary
	for _, b := range balances {
		if b.IsZero() {
			continue
		}
		price, err := e.price(ctx, b.Asset)
		if err != nil {
			return AccountSummary{}, err
		}

		collateral, err := collateralValue(b.Deposited, price, reserves[b.Asset].LoanToValue, fpmath.RoundDown)
		if err != nil {
			return AccountSummary{}, fmt.Errorf("collateral value of %s: %w", b.Asset, err)
		}
		debt, err := fpmath.ComputeValue(b.Borrowed, price, fpmath.RoundUp)
		if err != nil {
			return AccountSummary{}, fmt.Errorf("debt value of %s: %w", b.Asset, err)
		}
		if s.CollateralValue, err = fpmath.AddChecked(s.CollateralValue, collateral); err != nil {
			return AccountSummary{}, fmt.Errorf("total collateral value: %w", err)
		}
		if s.DebtValue, err = fpmath.AddChecked(s.DebtValue, debt); err != nil {
			return AccountSummary{}, fmt.Errorf("total debt value: %w", err)
		}
	}

	if s.CollateralValue > s.DebtValue {
		s.MaxBorrowValue = s.CollateralValue - s.DebtValue
	}
	return s, nil
}

// CollateralValue is the user's deposits valued at current prices and
// weighted by each reserve's loan-to-value.
func (e *Engine) CollateralValue(ctx context.Context, userID uuid.UUID) (int64, error) {
	s, err := e.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.CollateralValue, nil
}

// DebtValue is the user's outstanding borrows valued at current prices.
func (e *Engine) DebtValue(ctx context.Context, userID uuid.UUID) (int64, error) {
	s, err := e.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.DebtValue, nil
}

// MaxBorrowValue returns how much more value the user may borrow.
func (e *Engine) MaxBorrowValue(ctx context.Context, userID uuid.UUID) (int64, error) {
	s, err := e.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.MaxBorrowValue, nil
}

// AuthorizeBorrow accepts a borrow only if its value is strictly below the
// user's MaxBorrowValue. The requested amount is valued rounding up.
func (e *Engine) AuthorizeBorrow(ctx context.Context, userID uuid.UUID, asset string, amount int64) error {
	maxValue, err := e.MaxBorrowValue(ctx, userID)
	if err != nil {
		return err
	}
	price, err := e.price(ctx, asset)
	if err != nil {
		return err
	}
	value, err := fpmath.ComputeValue(amount, price, fpmath.RoundUp)
	if err != nil {
		return fmt.Errorf("%w: borrow value of %d %s: %v", poolerr.ErrInsufficientCollateral, amount, asset, err)
	}

	if value >= maxValue {
		return fmt.Errorf("%w: borrow value %s, ceiling %s",
			poolerr.ErrInsufficientCollateral,
			fpmath.ToDecimal(value, fpmath.ValueConfig),
			fpmath.ToDecimal(maxValue, fpmath.ValueConfig))
	}
	return nil
}

// AuthorizeWithdrawal rejects a redemption that would leave the user's debt
// above the collateral that remains. Users without debt are always allowed.
func (e *Engine) AuthorizeWithdrawal(ctx context.Context, userID uuid.UUID, asset string, amount int64) error {
	balances, reserves, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	hasDebt := false
	for _, b := range balances {
		if b.Borrowed > 0 {
			hasDebt = true
			break
		}
	}
	if !hasDebt {
		return nil
	}

	s, err := e.Account(ctx, userID)
	if err != nil {
		return err
	}
	price, err := e.price(ctx, asset)
	if err != nil {
		return err
	}
	removed, err := collateralValue(amount, price, reserves[asset].LoanToValue, fpmath.RoundUp)
	if err != nil {
		return fmt.Errorf("%w: collateral value of %d %s: %v", poolerr.ErrInsufficientCollateral, amount, asset, err)
	}

	remaining := s.CollateralValue - removed
	if s.DebtValue > remaining {
		return fmt.Errorf("%w: debt %s would exceed remaining collateral %s",
			poolerr.ErrInsufficientCollateral,
			fpmath.ToDecimal(s.DebtValue, fpmath.ValueConfig),
			fpmath.ToDecimal(remaining, fpmath.ValueConfig))
	}
	return nil
}

func (e *Engine) load(ctx context.Context, userID uuid.UUID) ([]ledger.UserBalance, map[string]ledger.Reserve, error) {
	balances, err := e.store.ListUserBalances(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list balances of %s: %w", userID, err)
	}
	list, err := e.store.ListReserves(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list reserves: %w", err)
	}
	reserves := make(map[string]ledger.Reserve, len(list))
	for _, r := range list {
		reserves[r.Asset] = r
	}
	return balances, reserves, nil
}

func (e *Engine) price(ctx context.Context, asset string) (int64, error) {
	price, err := e.prices.Price(ctx, asset)
	if err != nil {
		if errors.Is(err, poolerr.ErrPriceUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %v", poolerr.ErrPriceUnavailable, asset, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s: non-positive price %d", poolerr.ErrPriceUnavailable, asset, price)
	}
	return price, nil
}

func collateralValue(amount, price, ltv int64, mode fpmath.RoundingMode) (int64, error) {
	value, err := fpmath.ComputeValue(amount, price, mode)
	if err != nil {
		return 0, err
	}
	return fpmath.ApplyFraction(value, ltv, mode)
}
