package pair

import (
	"fmt"

	"github.com/holiman/uint256"
)

// mulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s*%s/%s", ErrArithmetic, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

// mulDivUp returns ceil(x*y/d).
func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := mulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	return add(z, uint256.NewInt(1))
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s+%s", ErrArithmetic, x.Dec(), y.Dec())
	}
	return z, nil
}

func sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s-%s", ErrArithmetic, x.Dec(), y.Dec())
	}
	return z, nil
}

// narrow checks that v fits an unsigned counter of the given width.
func narrow(v *uint256.Int, bits int, what string) (*uint256.Int, error) {
	if v.BitLen() > bits {
		return nil, fmt.Errorf("%w: %s %s exceeds %d bits", ErrOverflow, what, v.Dec(), bits)
	}
	return v, nil
}

func pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

func absInt64(v int64) uint64 {
	if v >= 0 {
		return uint64(v)
	}
	return uint64(-(v + 1)) + 1
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
