package pair

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// QuoteExactIn previews SwapExactTokensForTokens at the current price.
func (e *Engine) QuoteExactIn(amountIn *uint256.Int, path []common.Address) (*Quote, error) {
	st, err := e.State()
	if err != nil {
		return nil, err
	}
	return e.quoteExactIn(st, amountIn, path, e.timestamp())
}

// QuoteExactOut previews SwapTokensForExactTokens at the current price.
func (e *Engine) QuoteExactOut(amountOut *uint256.Int, path []common.Address) (*Quote, error) {
	st, err := e.State()
	if err != nil {
		return nil, err
	}
	return e.quoteExactOut(st, amountOut, path, e.timestamp())
}

func (e *Engine) quoteExactIn(st *SwapState, amountIn *uint256.Int, path []common.Address, now uint64) (*Quote, error) {
	zeroForOne, err := ValidatePath(path, st.Token0, st.Token1)
	if err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, fmt.Errorf("%w: zero input", ErrInvalidAmounts)
	}
	price, err := PriceAt(st.LastPriceUpdate, now, st.DriftRate, st.BasePrice)
	if err != nil {
		return nil, err
	}
	var amountOut, fee *uint256.Int
	if zeroForOne {
		amountOut, fee, err = AmountOutForExactIn1(amountIn, price, st.PurchaseFee1)
	} else {
		amountOut, fee, err = AmountOutForExactIn0(amountIn, price, st.PurchaseFee0)
	}
	if errors.Is(err, errFeeAboveOutput) || (err == nil && amountOut.IsZero()) {
		return nil, fmt.Errorf("%w: input %s buys nothing after fees", ErrInsufficientOutput, amountIn.Dec())
	}
	if err != nil {
		return nil, err
	}
	return &Quote{
		TokenIn:   path[0],
		TokenOut:  path[1],
		AmountIn:  amountIn.Clone(),
		AmountOut: amountOut,
		Fee:       fee,
		Price:     price,
	}, nil
}

func (e *Engine) quoteExactOut(st *SwapState, amountOut *uint256.Int, path []common.Address, now uint64) (*Quote, error) {
	zeroForOne, err := ValidatePath(path, st.Token0, st.Token1)
	if err != nil {
		return nil, err
	}
	if amountOut == nil || amountOut.IsZero() {
		return nil, fmt.Errorf("%w: zero output", ErrInvalidAmounts)
	}
	price, err := PriceAt(st.LastPriceUpdate, now, st.DriftRate, st.BasePrice)
	if err != nil {
		return nil, err
	}
	var amountIn, fee *uint256.Int
	if zeroForOne {
		amountIn, fee, err = AmountInForExactOut0(amountOut, price, st.PurchaseFee1)
	} else {
		amountIn, fee, err = AmountInForExactOut1(amountOut, price, st.PurchaseFee0)
	}
	if err != nil {
		return nil, err
	}
	return &Quote{
		TokenIn:   path[0],
		TokenOut:  path[1],
		AmountIn:  amountIn,
		AmountOut: amountOut.Clone(),
		Fee:       fee,
		Price:     price,
	}, nil
}

func checkDeadline(now, deadline uint64) error {
	if now > deadline {
		return fmt.Errorf("%w: now %d, deadline %d", ErrExpired, now, deadline)
	}
	return nil
}

// SwapExactTokensForTokens sells exactly amountIn of path[0] for at least
// amountOutMin of path[1]. The input is pulled from caller before the core
// swap runs, so no settlement callback is involved. It returns
// [amountIn, amountOut].
func (e *Engine) SwapExactTokensForTokens(caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([2]*uint256.Int, error) {
	var amounts [2]*uint256.Int
	if e == nil {
		return amounts, ErrNilState
	}
	now := e.timestamp()
	if err := checkDeadline(now, deadline); err != nil {
		return amounts, err
	}
	direction := directionUnknown
	err := e.guarded(func() error {
		_, st, err := e.load()
		if err != nil {
			return err
		}
		if zeroForOne, err := ValidatePath(path, st.Token0, st.Token1); err == nil {
			direction = swapDirection(zeroForOne)
		}
		quote, err := e.quoteExactIn(st, amountIn, path, now)
		if err != nil {
			return err
		}
		if quote.AmountOut.Lt(orZero(amountOutMin)) {
			return fmt.Errorf("%w: %s < %s", ErrInsufficientOutput, quote.AmountOut.Dec(), orZero(amountOutMin).Dec())
		}
		amounts = [2]*uint256.Int{quote.AmountIn, quote.AmountOut}
		return e.routeSwap(caller, st, quote, to, now)
	})
	e.observeSwap(direction, err)
	if err != nil {
		return [2]*uint256.Int{}, err
	}
	return amounts, nil
}

// SwapTokensForExactTokens buys exactly amountOut of path[1] for at most
// amountInMax of path[0]. It returns [amountIn, amountOut].
func (e *Engine) SwapTokensForExactTokens(caller common.Address, amountOut, amountInMax *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([2]*uint256.Int, error) {
	var amounts [2]*uint256.Int
	if e == nil {
		return amounts, ErrNilState
	}
	now := e.timestamp()
	if err := checkDeadline(now, deadline); err != nil {
		return amounts, err
	}
	direction := directionUnknown
	err := e.guarded(func() error {
		_, st, err := e.load()
		if err != nil {
			return err
		}
		if zeroForOne, err := ValidatePath(path, st.Token0, st.Token1); err == nil {
			direction = swapDirection(zeroForOne)
		}
		quote, err := e.quoteExactOut(st, amountOut, path, now)
		if err != nil {
			return err
		}
		if amountInMax == nil || quote.AmountIn.Gt(amountInMax) {
			return fmt.Errorf("%w: %s > %s", ErrExcessiveInput, quote.AmountIn.Dec(), orZero(amountInMax).Dec())
		}
		amounts = [2]*uint256.Int{quote.AmountIn, quote.AmountOut}
		return e.routeSwap(caller, st, quote, to, now)
	})
	e.observeSwap(direction, err)
	if err != nil {
		return [2]*uint256.Int{}, err
	}
	return amounts, nil
}

// routeSwap funds the pair from caller and runs the core swap without a
// callback.
func (e *Engine) routeSwap(caller common.Address, st *SwapState, quote *Quote, to common.Address, now uint64) error {
	if err := e.state.Transfer(quote.TokenIn, caller, e.address, quote.AmountIn); err != nil {
		return fmt.Errorf("pair: transfer input: %w", err)
	}
	out0, out1 := new(uint256.Int), new(uint256.Int)
	if quote.TokenOut == st.Token0 {
		out0 = quote.AmountOut
	} else {
		out1 = quote.AmountOut
	}
	_, err := e.swap(caller, out0, out1, to, nil, now)
	return err
}
