package pair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"oraclepair/core/events"
)

// Sync rewrites both reserves from the live balances net of accrued fees.
// Tokens sent to the pair outside a swap become reserves; fees stay untouched.
func (e *Engine) Sync() (*SwapState, error) {
	var out *SwapState
	err := e.guarded(func() error {
		_, st, err := e.load()
		if err != nil {
			return err
		}
		if err := e.sync(st); err != nil {
			return err
		}
		out = st.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) sync(st *SwapState) error {
	balance0, balance1, err := e.balances(st)
	if err != nil {
		return err
	}
	reserve0, err := sub(balance0, st.FeesAccumulated0)
	if err != nil {
		return fmt.Errorf("%w: token0 balance %s, fees %s", ErrAccounting, balance0.Dec(), st.FeesAccumulated0.Dec())
	}
	reserve1, err := sub(balance1, st.FeesAccumulated1)
	if err != nil {
		return fmt.Errorf("%w: token1 balance %s, fees %s", ErrAccounting, balance1.Dec(), st.FeesAccumulated1.Dec())
	}
	if _, err := narrow(reserve0, ReserveBits, "reserve0"); err != nil {
		return err
	}
	if _, err := narrow(reserve1, ReserveBits, "reserve1"); err != nil {
		return err
	}
	st.Reserve0, st.Reserve1 = reserve0, reserve1
	if err := putSwapState(e.state, e.address, st); err != nil {
		return err
	}
	e.emit(events.PairSync{Pair: e.address, Reserve0: reserve0.Clone(), Reserve1: reserve1.Clone()})
	metrics := e.metrics
	e.state.OnCommit(func() { metrics.ObserveReserves(reserve0, reserve1) })
	return nil
}

// WithdrawTokens sends amount of token to the configured token receiver. Only
// the balance not owed as fees can leave this way.
func (e *Engine) WithdrawTokens(caller, token common.Address, amount *uint256.Int) error {
	return e.guarded(func() error {
		if err := e.authorize(RoleTreasurer, caller); err != nil {
			return err
		}
		cfg, st, err := e.load()
		if err != nil {
			return err
		}
		fees := st.Fees(token)
		if fees == nil {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
		}
		if cfg.TokenReceiver == (common.Address{}) {
			return fmt.Errorf("%w: token receiver unset", ErrInvalidAddress)
		}
		balance, err := e.state.BalanceOf(token, e.address)
		if err != nil {
			return err
		}
		available, err := sub(balance, fees)
		if err != nil {
			return fmt.Errorf("%w: balance %s, fees %s", ErrAccounting, balance.Dec(), fees.Dec())
		}
		amount = orZero(amount)
		if amount.Gt(available) {
			return fmt.Errorf("%w: %s > %s", ErrExceedsAvailable, amount.Dec(), available.Dec())
		}
		if err := e.state.Transfer(token, e.address, cfg.TokenReceiver, amount); err != nil {
			return fmt.Errorf("pair: transfer withdrawal: %w", err)
		}
		if err := e.sync(st); err != nil {
			return err
		}
		e.emit(events.PairWithdrawal{
			Pair:   e.address,
			Caller: caller,
			Token:  token,
			To:     cfg.TokenReceiver,
			Amount: amount.Clone(),
		})
		return nil
	})
}

// WithdrawFees sends accrued fees in token to the configured fee receiver and
// reduces the fee counter accordingly.
func (e *Engine) WithdrawFees(caller, token common.Address, amount *uint256.Int) error {
	return e.guarded(func() error {
		if err := e.authorize(RoleTreasurer, caller); err != nil {
			return err
		}
		cfg, st, err := e.load()
		if err != nil {
			return err
		}
		fees := st.Fees(token)
		if fees == nil {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
		}
		if cfg.FeeReceiver == (common.Address{}) {
			return fmt.Errorf("%w: fee receiver unset", ErrInvalidAddress)
		}
		amount = orZero(amount)
		if amount.Gt(fees) {
			return fmt.Errorf("%w: %s > %s", ErrExceedsFees, amount.Dec(), fees.Dec())
		}
		remaining := new(uint256.Int).Sub(fees, amount)
		if token == st.Token0 {
			st.FeesAccumulated0 = remaining
		} else {
			st.FeesAccumulated1 = remaining
		}
		if err := e.state.Transfer(token, e.address, cfg.FeeReceiver, amount); err != nil {
			return fmt.Errorf("pair: transfer fees: %w", err)
		}
		if err := e.sync(st); err != nil {
			return err
		}
		e.emit(events.PairWithdrawal{
			Pair:   e.address,
			Caller: caller,
			Token:  token,
			To:     cfg.FeeReceiver,
			Amount: amount.Clone(),
			Fees:   true,
		})
		return nil
	})
}
