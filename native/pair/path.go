package pair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ValidatePath checks that path is [tokenIn, tokenOut] over the pair's two
// tokens and reports whether the input is token0.
func ValidatePath(path []common.Address, token0, token1 common.Address) (zeroForOne bool, err error) {
	if len(path) != 2 {
		return false, fmt.Errorf("%w: length %d", ErrInvalidPath, len(path))
	}
	switch {
	case path[0] == token0 && path[1] == token1:
		return true, nil
	case path[0] == token1 && path[1] == token0:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidPath, path[0].Hex(), path[1].Hex())
}
