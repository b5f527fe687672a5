package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	balancePrefix = []byte("balance:")

	// ErrInsufficientBalance is returned when a transfer exceeds the sender's
	// balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = errors.New("ledger: balance overflow")
)

func balanceKey(token, owner common.Address) []byte {
	buf := make([]byte, len(balancePrefix)+common.AddressLength+1+common.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], token.Bytes())
	buf[len(balancePrefix)+common.AddressLength] = ':'
	copy(buf[len(balancePrefix)+common.AddressLength+1:], owner.Bytes())
	return ethcrypto.Keccak256(buf)
}

// BalanceOf returns the balance owner holds of token. Missing entries read as
// zero.
func (m *Manager) BalanceOf(token, owner common.Address) (*uint256.Int, error) {
	data, err := m.get(balanceKey(token, owner))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return new(uint256.Int), nil
	}
	stored := new(big.Int)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("ledger: decode balance: %w", err)
	}
	balance, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return balance, nil
}

func (m *Manager) setBalance(token, owner common.Address, amount *uint256.Int) error {
	key := balanceKey(token, owner)
	if amount.IsZero() {
		return m.del(key)
	}
	encoded, err := rlp.EncodeToBytes(amount.ToBig())
	if err != nil {
		return err
	}
	return m.put(key, encoded)
}

// Transfer moves amount of token from one owner to another with exact balance
// semantics: the receiver is credited exactly what the sender is debited.
func (m *Manager) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return m.Atomic(func() error {
		fromBalance, err := m.BalanceOf(token, from)
		if err != nil {
			return err
		}
		if fromBalance.Lt(amount) {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), amount.Dec())
		}
		if err := m.setBalance(token, from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		toBalance, err := m.BalanceOf(token, to)
		if err != nil {
			return err
		}
		credited, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
		if overflow {
			return ErrBalanceOverflow
		}
		return m.setBalance(token, to, credited)
	})
}

// Mint credits amount of token to owner out of thin air. It exists for
// genesis funding and tests; the pair never calls it.
func (m *Manager) Mint(token, owner common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return m.Atomic(func() error {
		balance, err := m.BalanceOf(token, owner)
		if err != nil {
			return err
		}
		credited, overflow := new(uint256.Int).AddOverflow(balance, amount)
		if overflow {
			return ErrBalanceOverflow
		}
		return m.setBalance(token, owner, credited)
	})
}
