package math_test

import (
	stdmath "math"
	"math/big"
	"testing"

	"CoverLedger/internal/math"
)

func TestNormalizePrice_SameScalePassesThrough(t *testing.T) {
	if got := math.NormalizePrice(2_550_000_000, 8); got != 2_550_000_000 {
		t.Errorf("got %d, want 2_550_000_000", got)
	}
}

func TestNormalizePrice_Upscales(t *testing.T) {
	// 25.50 at 2 decimals -> 1e8 scale
	if got := math.NormalizePrice(2550, 2); got != 2_550_000_000 {
		t.Errorf("got %d, want 2_550_000_000", got)
	}
}

func TestNormalizePrice_Downscales(t *testing.T) {
	// 25.5 at 15 decimals -> 1e8 scale
	if got := math.NormalizePrice(25_500_000_000_000_000, 15); got != 2_550_000_000 {
		t.Errorf("got %d, want 2_550_000_000", got)
	}
}

func TestNormalizePrice_BankersRounding(t *testing.T) {
	// Downscale by one decimal so the dropped digit decides the rounding.
	cases := []struct {
		raw  int64
		want int64
	}{
		{15, 2}, // 1.5 rounds to even 2
		{25, 2}, // 2.5 rounds to even 2
		{35, 4}, // 3.5 rounds to even 4
		{14, 1}, // below half truncates
		{16, 2}, // above half rounds up
	}
	for _, c := range cases {
		if got := math.NormalizePrice(c.raw, 9); got != c.want {
			t.Errorf("NormalizePrice(%d, 9): got %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestNormalizePrice_UpscaleOverflowClamps(t *testing.T) {
	got := math.NormalizePrice(stdmath.MaxInt64, 0)
	if got != stdmath.MaxInt64 {
		t.Errorf("got %d, want MaxInt64 clamp", got)
	}
}

func TestMultiplyInt128_NoOverflow(t *testing.T) {
	product := math.MultiplyInt128(stdmath.MaxInt64, 2)

	expected := new(big.Int).Lsh(big.NewInt(stdmath.MaxInt64), 1)
	if product.Cmp(expected) != 0 {
		t.Errorf("got %s, want %s", product, expected)
	}
}

func TestDivideInt128_RoundingModes(t *testing.T) {
	num := big.NewInt(7)
	den := big.NewInt(2)

	if got := math.DivideInt128(num, den, math.RoundDown); got != 3 {
		t.Errorf("RoundDown: got %d, want 3", got)
	}
	if got := math.DivideInt128(num, den, math.RoundUp); got != 4 {
		t.Errorf("RoundUp: got %d, want 4", got)
	}
	if got := math.DivideInt128(num, den, math.RoundHalfEven); got != 4 {
		t.Errorf("RoundHalfEven: got %d, want 4", got)
	}
	if got := math.DivideInt128(big.NewInt(5), den, math.RoundHalfEven); got != 2 {
		t.Errorf("RoundHalfEven 5/2: got %d, want 2", got)
	}
}

func TestDivideInt128_NegativeNumerator(t *testing.T) {
	num := big.NewInt(-7)
	den := big.NewInt(2)

	if got := math.DivideInt128(num, den, math.RoundDown); got != -3 {
		t.Errorf("RoundDown: got %d, want -3", got)
	}
	if got := math.DivideInt128(num, den, math.RoundUp); got != -4 {
		t.Errorf("RoundUp: got %d, want -4", got)
	}
	if got := math.DivideInt128(num, den, math.RoundHalfEven); got != -4 {
		t.Errorf("RoundHalfEven: got %d, want -4", got)
	}
}

func TestExactDivisionIgnoresMode(t *testing.T) {
	num := big.NewInt(10)
	den := big.NewInt(2)
	for _, mode := range []math.RoundingMode{math.RoundDown, math.RoundUp, math.RoundHalfEven} {
		if got := math.DivideInt128(num, den, mode); got != 5 {
			t.Errorf("mode %d: got %d, want 5", mode, got)
		}
	}
}
