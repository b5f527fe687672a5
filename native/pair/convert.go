package pair

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// The converters below work on raw token units with a 1e18 scaled price P,
// where one raw token1 unit exchanges for P/1e18 raw token0 units. Fees are
// charged in the token being purchased. Fees and amounts the pair receives
// round up, amounts the pair pays out round down.

// errFeeAboveOutput marks an exact-in conversion whose rounded fee exceeds
// the gross output. It is reported as an arithmetic underflow.
var errFeeAboveOutput = errors.New("pair: fee exceeds gross output")

func netOfFee(gross, fee *uint256.Int) (*uint256.Int, error) {
	if fee.Gt(gross) {
		return nil, fmt.Errorf("%w: %w: fee %s, gross %s", ErrArithmetic, errFeeAboveOutput, fee.Dec(), gross.Dec())
	}
	return new(uint256.Int).Sub(gross, fee), nil
}

func checkConversionInputs(amount, price *uint256.Int, feeRate uint64) error {
	if amount == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidAmounts)
	}
	if price == nil || price.IsZero() {
		return ErrDivisionByZero
	}
	if feeRate > MaxFeeRate {
		return fmt.Errorf("%w: %d", ErrFeeOutOfRange, feeRate)
	}
	return nil
}

// AmountInForExactOut0 returns the token0 input required to receive exactly
// amount1Out of token1, and the token1 fee included in it.
func AmountInForExactOut0(amount1Out, price *uint256.Int, feeRate1 uint64) (amount0In, fee1 *uint256.Int, err error) {
	if err := checkConversionInputs(amount1Out, price, feeRate1); err != nil {
		return nil, nil, err
	}
	fee1, err = mulDivUp(amount1Out, uint256.NewInt(feeRate1), Scale)
	if err != nil {
		return nil, nil, err
	}
	gross, err := add(amount1Out, fee1)
	if err != nil {
		return nil, nil, err
	}
	amount0In, err = mulDivUp(gross, price, Scale)
	if err != nil {
		return nil, nil, err
	}
	return amount0In, fee1, nil
}

// AmountInForExactOut1 returns the token1 input required to receive exactly
// amount0Out of token0, and the token0 fee included in it.
func AmountInForExactOut1(amount0Out, price *uint256.Int, feeRate0 uint64) (amount1In, fee0 *uint256.Int, err error) {
	if err := checkConversionInputs(amount0Out, price, feeRate0); err != nil {
		return nil, nil, err
	}
	fee0, err = mulDivUp(amount0Out, uint256.NewInt(feeRate0), Scale)
	if err != nil {
		return nil, nil, err
	}
	gross, err := add(amount0Out, fee0)
	if err != nil {
		return nil, nil, err
	}
	amount1In, err = mulDivUp(gross, Scale, price)
	if err != nil {
		return nil, nil, err
	}
	return amount1In, fee0, nil
}

// AmountOutForExactIn0 returns the token0 paid out for exactly amount1In of
// token1, net of the token0 fee, and that fee.
func AmountOutForExactIn0(amount1In, price *uint256.Int, feeRate0 uint64) (amount0Out, fee0 *uint256.Int, err error) {
	if err := checkConversionInputs(amount1In, price, feeRate0); err != nil {
		return nil, nil, err
	}
	gross, err := mulDiv(amount1In, price, Scale)
	if err != nil {
		return nil, nil, err
	}
	// ceil(amount1In * P * fee / 1e36); amount1In*P may exceed 256 bits, so
	// the exact product is formed from the floored gross and its remainder.
	fee0, err = feeOnProduct(amount1In, price, Scale, feeRate0)
	if err != nil {
		return nil, nil, err
	}
	amount0Out, err = netOfFee(gross, fee0)
	if err != nil {
		return nil, nil, err
	}
	return amount0Out, fee0, nil
}

// AmountOutForExactIn1 returns the token1 paid out for exactly amount0In of
// token0, net of the token1 fee, and that fee.
func AmountOutForExactIn1(amount0In, price *uint256.Int, feeRate1 uint64) (amount1Out, fee1 *uint256.Int, err error) {
	if err := checkConversionInputs(amount0In, price, feeRate1); err != nil {
		return nil, nil, err
	}
	gross, err := mulDiv(amount0In, Scale, price)
	if err != nil {
		return nil, nil, err
	}
	// ceil(amount0In * 1e18 * fee / (P * 1e18)) == ceil(amount0In * fee / P)
	fee1, err = mulDivUp(amount0In, uint256.NewInt(feeRate1), price)
	if err != nil {
		return nil, nil, err
	}
	amount1Out, err = netOfFee(gross, fee1)
	if err != nil {
		return nil, nil, err
	}
	return amount1Out, fee1, nil
}

// feeOnProduct returns ceil(a*b*feeRate / (d*1e18)) without requiring a*b to
// fit in 256 bits. With a*b = q*d + r:
//
//	a*b*fee/(d*1e18) = (q*fee + r*fee/d) / 1e18
//
// and the ceiling is taken over the exact rational value.
func feeOnProduct(a, b, d *uint256.Int, feeRate uint64) (*uint256.Int, error) {
	fee := uint256.NewInt(feeRate)
	q, err := mulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	r := new(uint256.Int).MulMod(a, b, d)

	// numerator over denominator d*1e18: q*fee*d + r*fee
	qf, overflow := new(uint256.Int).MulOverflow(q, fee)
	if overflow {
		return nil, fmt.Errorf("%w: fee product", ErrArithmetic)
	}
	// r*fee < d*1e18, so r*fee/d contributes floor(r*fee/d) plus a fractional
	// part that only matters for the ceiling.
	rf, err := mulDiv(r, fee, d)
	if err != nil {
		return nil, err
	}
	fracNonZero := !new(uint256.Int).MulMod(r, fee, d).IsZero()

	whole, err := add(qf, rf)
	if err != nil {
		return nil, err
	}
	result := new(uint256.Int).Div(whole, Scale)
	if fracNonZero || !new(uint256.Int).Mod(whole, Scale).IsZero() {
		return add(result, uint256.NewInt(1))
	}
	return result, nil
}
