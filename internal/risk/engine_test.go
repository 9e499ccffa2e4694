package risk_test

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/pricefeed"
	"LendingAggregator/internal/risk"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usd      = int64(100_000_000) // $1 at price scale
	oneToken = int64(1_000_000)
)

var user = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

func mustEngine(t *testing.T) (*risk.Engine, *ledger.MemoryStore, *pricefeed.StaticFeed) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	require.NoError(t, store.CreateReserve(ctx, ledger.Reserve{
		Asset: "USDC", TokenID: "aggUSDC", Active: true,
		LoanToValue: 750_000, LiquidationThreshold: 800_000,
	}))
	require.NoError(t, store.CreateReserve(ctx, ledger.Reserve{
		Asset: "WETH", TokenID: "aggWETH", Active: true,
		LoanToValue: 500_000, LiquidationThreshold: 600_000,
	}))
	prices := pricefeed.NewStaticFeed(map[string]int64{"USDC": usd, "WETH": 2000 * usd})
	return risk.NewEngine(store, prices), store, prices
}

func deposit(t *testing.T, s *ledger.MemoryStore, asset string, amount int64) {
	t.Helper()
	_, err := s.CreditDeposit(context.Background(), ledger.Mutation{Asset: asset, UserID: user, Amount: amount})
	require.NoError(t, err)
}

func borrow(t *testing.T, s *ledger.MemoryStore, asset string, amount int64) {
	t.Helper()
	_, err := s.CreditBorrow(context.Background(), ledger.Mutation{Asset: asset, UserID: user, Amount: amount})
	require.NoError(t, err)
}

func TestMaxBorrowValue_WeightsByLoanToValue(t *testing.T) {
	engine, store, _ := mustEngine(t)
	deposit(t, store, "USDC", 1_000*oneToken)
	deposit(t, store, "WETH", 1*oneToken)

	got, err := engine.MaxBorrowValue(context.Background(), user)
	require.NoError(t, err)
	// 1000 * 0.75 + 2000 * 0.5
	assert.Equal(t, 1_750*usd, got)
}

func TestCollateralAndDebtValue_Rounding(t *testing.T) {
	ctx := context.Background()
	engine, store, prices := mustEngine(t)
	prices.Set("WETH", usd+1)
	deposit(t, store, "USDC", 1_000*oneToken)
	deposit(t, store, "WETH", 1)
	borrow(t, store, "WETH", 1)

	collateral, err := engine.CollateralValue(ctx, user)
	require.NoError(t, err)
	// 1 micro WETH is worth 100.000001 value units; half of it rounds down to 50.
	assert.Equal(t, 750*usd+50, collateral)

	debt, err := engine.DebtValue(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(101), debt)
}

func TestAccount_TotalOverflowIsAnError(t *testing.T) {
	engine, store, prices := mustEngine(t)
	prices.Set("USDC", 80_000*usd)
	prices.Set("WETH", 80_000*usd)
	// Each position is worth 8e18 value units and fits on its own.
	deposit(t, store, "USDC", 1_000_000*oneToken)
	deposit(t, store, "WETH", 1_000_000*oneToken)

	_, err := engine.CollateralValue(context.Background(), user)
	assert.ErrorIs(t, err, fpmath.ErrOverflow)
}

func TestMaxBorrowValue_SubtractsDebt(t *testing.T) {
	engine, store, _ := mustEngine(t)
	deposit(t, store, "USDC", 1_000*oneToken)
	borrow(t, store, "USDC", 100*oneToken)

	s, err := engine.Account(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 750*usd, s.CollateralValue)
	assert.Equal(t, 100*usd, s.DebtValue)
	assert.Equal(t, 650*usd, s.MaxBorrowValue)
}

func TestMaxBorrowValue_NoBalances(t *testing.T) {
	engine, _, _ := mustEngine(t)

	got, err := engine.MaxBorrowValue(context.Background(), user)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMaxBorrowValue_PriceUnavailable(t *testing.T) {
	engine, store, prices := mustEngine(t)
	deposit(t, store, "WETH", oneToken)
	prices.Delete("WETH")

	_, err := engine.MaxBorrowValue(context.Background(), user)
	assert.ErrorIs(t, err, poolerr.ErrPriceUnavailable)
}

func TestAuthorizeBorrow_StrictCeiling(t *testing.T) {
	engine, store, _ := mustEngine(t)
	deposit(t, store, "USDC", 1_000*oneToken)
	ctx := context.Background()

	// Exactly at the ceiling of 750.
	err := engine.AuthorizeBorrow(ctx, user, "USDC", 750*oneToken)
	assert.ErrorIs(t, err, poolerr.ErrInsufficientCollateral)

	err = engine.AuthorizeBorrow(ctx, user, "USDC", 750*oneToken-1)
	assert.NoError(t, err)

	err = engine.AuthorizeBorrow(ctx, user, "USDC", 751*oneToken)
	assert.ErrorIs(t, err, poolerr.ErrInsufficientCollateral)
}

func TestAuthorizeBorrow_CrossAsset(t *testing.T) {
	engine, store, _ := mustEngine(t)
	deposit(t, store, "USDC", 3_000*oneToken)
	ctx := context.Background()

	// Ceiling 2250 USD; 1.125 WETH is exactly 2250 USD.
	assert.ErrorIs(t, engine.AuthorizeBorrow(ctx, user, "WETH", 1_125_000), poolerr.ErrInsufficientCollateral)
	assert.NoError(t, engine.AuthorizeBorrow(ctx, user, "WETH", 1_124_999))
}

func TestAuthorizeBorrow_BorrowAssetPriceMissing(t *testing.T) {
	engine, store, prices := mustEngine(t)
	deposit(t, store, "USDC", 1_000*oneToken)
	prices.Delete("WETH")

	err := engine.AuthorizeBorrow(context.Background(), user, "WETH", 1)
	assert.ErrorIs(t, err, poolerr.ErrPriceUnavailable)
}

func TestAuthorizeWithdrawal(t *testing.T) {
	engine, store, _ := mustEngine(t)
	ctx := context.Background()
	deposit(t, store, "USDC", 1_000*oneToken)

	// No debt: anything goes.
	assert.NoError(t, engine.AuthorizeWithdrawal(ctx, user, "USDC", 1_000*oneToken))

	borrow(t, store, "USDC", 300*oneToken)
	// Collateral 750, debt 300: removing 600 USDC removes 450 of collateral.
	assert.NoError(t, engine.AuthorizeWithdrawal(ctx, user, "USDC", 600*oneToken))
	// Removing 601 would leave 299.25 of collateral against 300 of debt.
	assert.ErrorIs(t, engine.AuthorizeWithdrawal(ctx, user, "USDC", 601*oneToken), poolerr.ErrInsufficientCollateral)
}

func TestValidateReserveParams(t *testing.T) {
	tests := []struct {
		name    string
		r       ledger.Reserve
		wantErr bool
	}{
		{"valid", ledger.Reserve{LoanToValue: 750_000, LiquidationThreshold: 800_000, LiquidationBonus: 50_000}, false},
		{"ltv equals threshold", ledger.Reserve{LoanToValue: 800_000, LiquidationThreshold: 800_000}, false},
		{"zero ltv", ledger.Reserve{LoanToValue: 0, LiquidationThreshold: 800_000}, true},
		{"threshold below ltv", ledger.Reserve{LoanToValue: 800_000, LiquidationThreshold: 700_000}, true},
		{"threshold at one", ledger.Reserve{LoanToValue: 800_000, LiquidationThreshold: 1_000_000}, true},
		{"negative bonus", ledger.Reserve{LoanToValue: 1, LiquidationThreshold: 2, LiquidationBonus: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := risk.ValidateReserveParams(tt.r)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
