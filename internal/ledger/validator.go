package ledger

import (
	"LendingAggregator/internal/poolerr"
	"fmt"
)

// ValidateAmount checks a mutation amount is strictly positive.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", poolerr.ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateReserve checks 0 <= available <= total.
func ValidateReserve(r Reserve) error {
	if r.TotalLiquidity < 0 {
		return fmt.Errorf("%w: reserve %s total liquidity %d is negative",
			poolerr.ErrLedgerInvariant, r.Asset, r.TotalLiquidity)
	}
	if r.AvailableLiquidity < 0 {
		return fmt.Errorf("%w: reserve %s available liquidity %d is negative",
			poolerr.ErrLedgerInvariant, r.Asset, r.AvailableLiquidity)
	}
	if r.AvailableLiquidity > r.TotalLiquidity {
		return fmt.Errorf("%w: reserve %s available %d exceeds total %d",
			poolerr.ErrLedgerInvariant, r.Asset, r.AvailableLiquidity, r.TotalLiquidity)
	}
	return nil
}

// ValidateUserBalance checks deposited >= 0 and borrowed >= 0.
func ValidateUserBalance(b UserBalance) error {
	if b.Deposited < 0 {
		return fmt.Errorf("%w: user %s has negative deposit in %s: %d",
			poolerr.ErrLedgerInvariant, b.UserID, b.Asset, b.Deposited)
	}
	if b.Borrowed < 0 {
		return fmt.Errorf("%w: user %s has negative debt in %s: %d",
			poolerr.ErrLedgerInvariant, b.UserID, b.Asset, b.Borrowed)
	}
	return nil
}

// ValidateNewReserve checks a reserve registration.
func ValidateNewReserve(r Reserve) error {
	if r.Asset == "" {
		return fmt.Errorf("reserve asset is required")
	}
	if r.TokenID == "" {
		return fmt.Errorf("reserve %s: token id is required", r.Asset)
	}
	return ValidateReserve(r)
}

func insufficientBalance(b UserBalance, amount int64) error {
	return fmt.Errorf("%w: user %s has %d deposited in %s, need %d",
		poolerr.ErrInsufficientBalance, b.UserID, b.Deposited, b.Asset, amount)
}
