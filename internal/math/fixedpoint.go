// internal/math/fixedpoint.go
package math

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001 of an asset unit
	PriceConfig  = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // common unit per whole asset unit
	ValueConfig  = PriceConfig                                             // values share the price scale
	RateConfig   = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // annual rate, 3% = 3_000_000
)

// FractionScale is the scale of LTV, liquidation threshold and bonus (750_000 = 75%).
const FractionScale int64 = 1_000_000

var ErrOverflow = errors.New("fixed-point overflow")

var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator with the given rounding, using 128-bit
// intermediates so the product never overflows.
func MulDiv(a, b, denominator int64, mode RoundingMode) (int64, error) {
	if denominator <= 0 {
		return 0, fmt.Errorf("mul div: non-positive denominator %d", denominator)
	}

	product := getInt128()
	defer putInt128(product)
	product.Mul(big.NewInt(a), big.NewInt(b))

	return divide(product, denominator, mode)
}

func divide(numerator *big.Int, denominator int64, mode RoundingMode) (int64, error) {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()
	defer putInt128(quotient)
	defer putInt128(remainder)

	// Euclidean division: remainder is always >= 0, quotient is the floor.
	quotient.DivMod(numerator, denom, remainder)

	switch mode {
	case RoundUp:
		if remainder.Sign() != 0 {
			quotient.Add(quotient, big.NewInt(1))
		}
	case RoundHalfEven:
		twice := getInt128()
		defer putInt128(twice)
		twice.Lsh(remainder, 1)
		cmp := twice.Cmp(denom)
		if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	if !quotient.IsInt64() {
		return 0, ErrOverflow
	}
	return quotient.Int64(), nil
}

// ComputeValue converts an asset amount into the common unit of account:
// value = amount * price / AmountConfig.Scale (value carries the price scale).
func ComputeValue(amount, price int64, mode RoundingMode) (int64, error) {
	return MulDiv(amount, price, AmountConfig.Scale, mode)
}

// ApplyFraction returns value * fraction / FractionScale.
func ApplyFraction(value, fraction int64, mode RoundingMode) (int64, error) {
	return MulDiv(value, fraction, FractionScale, mode)
}

// AddChecked returns a + b, or ErrOverflow when the sum leaves int64.
func AddChecked(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// ToDecimal renders a fixed-point integer as a decimal for display and wire formats.
func ToDecimal(v int64, cfg DecimalConfig) decimal.Decimal {
	return decimal.New(v, -int32(cfg.DecimalPrecision))
}

// FromDecimal converts a decimal into fixed-point, rejecting values with more
// precision than cfg allows or that do not fit in int64.
func FromDecimal(d decimal.Decimal, cfg DecimalConfig) (int64, error) {
	shifted := d.Shift(int32(cfg.DecimalPrecision))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%s exceeds %d decimal places", d.String(), cfg.DecimalPrecision)
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return bi.Int64(), nil
}

// ParseDecimal parses a decimal string (e.g. "0.035") into fixed-point.
func ParseDecimal(s string, cfg DecimalConfig) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return FromDecimal(d, cfg)
}

// FractionFromDecimal converts a ratio such as 0.75 into FractionScale units.
func FractionFromDecimal(d decimal.Decimal) (int64, error) {
	return FromDecimal(d, DecimalConfig{DecimalPrecision: 6, Scale: FractionScale})
}

// FractionToDecimal renders a FractionScale value (750_000 -> 0.75).
func FractionToDecimal(v int64) decimal.Decimal {
	return decimal.New(v, -6)
}
