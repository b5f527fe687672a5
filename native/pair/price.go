package pair

import (
	"fmt"

	"github.com/holiman/uint256"
)

// PriceAt extrapolates the base price linearly (simple interest) over the
// time elapsed since lastUpdated:
//
//	price = basePrice * (1e18 ± |drift| * elapsed) / 1e18
//
// The result is never clamped. A negative drift that would take the factor
// below zero is an arithmetic fault, and a factor of exactly zero yields a
// zero price that the converters reject.
func PriceAt(lastUpdated, timestamp uint64, driftPerSecond int64, basePrice *uint256.Int) (*uint256.Int, error) {
	if timestamp < lastUpdated {
		return nil, fmt.Errorf("%w: %d < %d", ErrClockSkew, timestamp, lastUpdated)
	}
	elapsed := uint256.NewInt(timestamp - lastUpdated)
	rate := uint256.NewInt(absInt64(driftPerSecond))
	delta, overflow := new(uint256.Int).MulOverflow(rate, elapsed)
	if overflow {
		return nil, fmt.Errorf("%w: drift %d over %s seconds", ErrArithmetic, driftPerSecond, elapsed.Dec())
	}

	var (
		factor *uint256.Int
		err    error
	)
	if driftPerSecond >= 0 {
		factor, err = add(Scale, delta)
	} else {
		factor, err = sub(Scale, delta)
	}
	if err != nil {
		return nil, err
	}
	return mulDiv(orZero(basePrice), factor, Scale)
}

// PerSecondDrift converts an annualized drift rate into the stored
// per-second rate, truncating toward zero.
func PerSecondDrift(annualDrift int64) int64 {
	return annualDrift / SecondsPerYear
}

// AdjustPrice converts a human price (token0 per token1, 1e18 scaled) into
// the raw-unit base price used by the converters.
func AdjustPrice(price *uint256.Int, decimals0, decimals1 uint8) (*uint256.Int, error) {
	return mulDiv(orZero(price), pow10(decimals0), pow10(decimals1))
}
