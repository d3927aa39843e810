package math

import (
	"math/big"
)

// DecimalConfig defines fixed-point precision for a value class.
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// PriceConfig is the canonical price convention: every oracle quote is
	// normalized to 8 decimals at ingestion, matching the common feed scale.
	PriceConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000}

	// AmountConfig is the smallest-unit convention for monetary amounts.
	// Amounts are opaque smallest units of their asset; no rescaling is done.
	AmountConfig = DecimalConfig{DecimalPrecision: 0, Scale: 1}
)

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// pow10 returns 10^n as big.Int for n in [0, 38].
func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// NormalizePrice converts a raw feed value carrying its own decimal count to
// the canonical 1e8 price scale. Upscaling is exact; downscaling uses
// banker's rounding via int128 intermediates to avoid overflow.
func NormalizePrice(rawValue int64, decimals int32) int64 {
	if decimals == int32(PriceConfig.DecimalPrecision) {
		return rawValue
	}

	if decimals < int32(PriceConfig.DecimalPrecision) {
		factor := pow10(int32(PriceConfig.DecimalPrecision) - decimals)
		scaled := new(big.Int).Mul(big.NewInt(rawValue), factor)
		return clampInt64(scaled)
	}

	divisor := pow10(decimals - int32(PriceConfig.DecimalPrecision))
	return DivideInt128(big.NewInt(rawValue), divisor, RoundHalfEven)
}

// MultiplyInt128 performs a * b using a wide intermediate to prevent overflow.
func MultiplyInt128(a, b int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
}

// DivideInt128 performs numerator / denominator with the given rounding mode.
func DivideInt128(numerator *big.Int, denominator *big.Int, mode RoundingMode) int64 {
	quotient := new(big.Int)
	remainder := new(big.Int)
	quotient.QuoRem(numerator, denominator, remainder)

	result := quotient.Int64()
	if remainder.Sign() == 0 {
		return result
	}

	switch mode {
	case RoundHalfEven:
		// Compare 2*|remainder| against |denominator|.
		doubled := new(big.Int).Abs(remainder)
		doubled.Lsh(doubled, 1)
		absDenom := new(big.Int).Abs(denominator)
		cmp := doubled.Cmp(absDenom)
		if cmp > 0 || (cmp == 0 && result%2 != 0) {
			if (numerator.Sign() < 0) != (denominator.Sign() < 0) {
				result--
			} else {
				result++
			}
		}
	case RoundUp:
		if (numerator.Sign() < 0) != (denominator.Sign() < 0) {
			result--
		} else {
			result++
		}
	case RoundDown:
		// Truncation already applied by QuoRem.
	}

	return result
}

func clampInt64(v *big.Int) int64 {
	if v.IsInt64() {
		return v.Int64()
	}
	if v.Sign() > 0 {
		return int64(^uint64(0) >> 1) // MaxInt64
	}
	return -int64(^uint64(0)>>1) - 1 // MinInt64
}
