package risk

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"fmt"
)

// ValidateReserveParams checks that risk parameters are within valid ranges:
// 0 < ltv <= liquidation_threshold < 1_000_000, liquidation_bonus >= 0.
func ValidateReserveParams(r ledger.Reserve) error {
	if r.LoanToValue <= 0 {
		return fmt.Errorf("loan_to_value must be > 0, got %d", r.LoanToValue)
	}
	if r.LiquidationThreshold < r.LoanToValue {
		return fmt.Errorf("liquidation_threshold (%d) must be >= loan_to_value (%d)",
			r.LiquidationThreshold, r.LoanToValue)
	}
	if r.LiquidationThreshold >= fpmath.FractionScale {
		return fmt.Errorf("liquidation_threshold must be < %d, got %d", fpmath.FractionScale, r.LiquidationThreshold)
	}
	if r.LiquidationBonus < 0 {
		return fmt.Errorf("liquidation_bonus must be >= 0, got %d", r.LiquidationBonus)
	}
	return nil
}
