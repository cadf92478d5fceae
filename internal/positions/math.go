// Package positions implements the pure concentrated-liquidity math used by
// the position fetcher (PF) and emission engine (EE), per spec.md §4.7 and
// §4.8: tick-to-sqrt-price conversion, active-position classification, and
// current token amounts.
package positions

import "math"

// SqrtPrice converts a tick to its sqrt-price, s = 1.0001^(tick/2).
func SqrtPrice(tick int) float64 {
	return math.Pow(1.0001, float64(tick)/2)
}

// IsActive reports whether the current tick t lies strictly inside
// (tickLower, tickUpper), both bounds excluded, and the position carries
// liquidity, per spec.md
// §3's Position lifecycle and §4.7's inactive-position filter.
func IsActive(tickLower, tickUpper, currentTick int, liquidity float64) bool {
	if liquidity <= 0 {
		return false
	}
	return tickLower < currentTick && currentTick < tickUpper
}

// TokenAmounts computes the current token0/token1 amounts held by a
// position of liquidity L spanning [tickLower, tickUpper) at currentTick,
// per spec.md §4.7.
func TokenAmounts(liquidity float64, tickLower, tickUpper, currentTick int) (amount0, amount1 float64) {
	sLower := SqrtPrice(tickLower)
	sUpper := SqrtPrice(tickUpper)
	sCurrent := SqrtPrice(currentTick)

	switch {
	case currentTick < tickLower:
		amount0 = liquidity * (sUpper - sLower) / (sUpper * sLower)
		amount1 = 0
	case currentTick >= tickUpper:
		amount0 = 0
		amount1 = liquidity * (sUpper - sLower)
	default:
		amount0 = liquidity * (sUpper - sCurrent) / (sUpper * sCurrent)
		amount1 = liquidity * (sCurrent - sLower)
	}
	return amount0, amount1
}

// ScaleForDisplay scales a raw token amount by 10^-decimals, for
// presentation only (spec.md §4.7).
func ScaleForDisplay(amount float64, decimals int) float64 {
	return amount / math.Pow10(decimals)
}
