package pool

import (
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/ledger"
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/risk"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReserveInfo is the public view of a reserve.
type ReserveInfo struct {
	Asset                string
	Symbol               string
	TotalLiquidity       int64
	AvailableLiquidity   int64
	LoanToValue          int64
	LiquidationThreshold int64
	LiquidationBonus     int64
	BestDepositRate      int64
	BestBorrowRate       int64
	TokenID              string
	Active               bool
	Providers            []string
	UpdatedAt            time.Time
}

// UserAccount is a user's balances across reserves and their risk summary.
type UserAccount struct {
	UserID   uuid.UUID
	Balances []ledger.UserBalance
	risk.AccountSummary
}

// GetReserveInfo returns the reserve with freshly quoted best rates. A
// reserve without providers reports zero rates.
func (o *Orchestrator) GetReserveInfo(ctx context.Context, asset string) (ReserveInfo, error) {
	r, err := o.store.QueryReserve(ctx, asset)
	if err != nil {
		return ReserveInfo{}, err
	}

	depositRate, borrowRate, err := o.router.BestRates(ctx, asset)
	if err != nil && !errors.Is(err, poolerr.ErrNoProviderAvailable) {
		return ReserveInfo{}, err
	}

	providers := o.registry.Providers(asset)
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID())
	}

	return ReserveInfo{
		Asset:                r.Asset,
		Symbol:               r.Symbol,
		TotalLiquidity:       r.TotalLiquidity,
		AvailableLiquidity:   r.AvailableLiquidity,
		LoanToValue:          r.LoanToValue,
		LiquidationThreshold: r.LiquidationThreshold,
		LiquidationBonus:     r.LiquidationBonus,
		BestDepositRate:      depositRate,
		BestBorrowRate:       borrowRate,
		TokenID:              r.TokenID,
		Active:               r.Active,
		Providers:            ids,
		UpdatedAt:            r.UpdatedAt,
	}, nil
}

// ListReserves returns every reserve, ordered by asset.
func (o *Orchestrator) ListReserves(ctx context.Context) ([]ReserveInfo, error) {
	reserves, err := o.store.ListReserves(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ReserveInfo, 0, len(reserves))
	for _, r := range reserves {
		info, err := o.GetReserveInfo(ctx, r.Asset)
		if err != nil {
			return nil, fmt.Errorf("reserve %s: %w", r.Asset, err)
		}
		out = append(out, info)
	}
	return out, nil
}

// GetUserBalance returns the user's balance in one reserve. Users that never
// touched the reserve get a zero balance.
func (o *Orchestrator) GetUserBalance(ctx context.Context, asset string, userID uuid.UUID) (ledger.UserBalance, error) {
	return o.store.QueryUserBalance(ctx, asset, userID)
}

// GetUserAccount returns every balance of the user with its risk summary.
func (o *Orchestrator) GetUserAccount(ctx context.Context, userID uuid.UUID) (UserAccount, error) {
	balances, err := o.store.ListUserBalances(ctx, userID)
	if err != nil {
		return UserAccount{}, err
	}
	summary, err := o.risk.Account(ctx, userID)
	if err != nil {
		return UserAccount{}, err
	}
	return UserAccount{UserID: userID, Balances: balances, AccountSummary: summary}, nil
}

// CreateReserve registers a reserve after validating its risk parameters.
func (o *Orchestrator) CreateReserve(ctx context.Context, r ledger.Reserve) error {
	if err := risk.ValidateReserveParams(r); err != nil {
		return fmt.Errorf("invalid risk params for %s: %w", r.Asset, err)
	}
	unlock, err := o.locks.Lock(ctx, "reserve:"+r.Asset)
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.store.CreateReserve(ctx, r); err != nil {
		return err
	}
	o.refreshReserveGauges(ctx, r.Asset)
	o.logger.Info().Str("asset", r.Asset).Str("token_id", r.TokenID).Bool("active", r.Active).Msg("reserve created")
	return nil
}

// SetReserveActive toggles whether the reserve accepts workflows. It waits
// for any running workflow on the reserve.
func (o *Orchestrator) SetReserveActive(ctx context.Context, asset string, active bool) error {
	unlock, err := o.locks.Lock(ctx, "reserve:"+asset)
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.store.SetReserveActive(ctx, asset, active); err != nil {
		return err
	}
	o.events.Emit(ctx, &event.ReserveStatusChanged{
		RequestKey: uuid.NewString(),
		Asset:      asset,
		Active:     active,
		Timestamp:  o.now(),
	})
	o.logger.Info().Str("asset", asset).Bool("active", active).Msg("reserve status changed")
	return nil
}
