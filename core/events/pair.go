package events

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"oraclepair/core/types"
)

const (
	// TypePairInitialized is emitted once when the pair records are created.
	TypePairInitialized = "pair.initialized"
	// TypePairSwap is emitted for every executed swap.
	TypePairSwap = "pair.swap"
	// TypePairFee is emitted when a swap accrues purchase fees.
	TypePairFee = "pair.fee"
	// TypePairSync is emitted whenever reserves are written.
	TypePairSync = "pair.sync"
	// TypePairPaused and TypePairUnpaused track the pause flag.
	TypePairPaused   = "pair.paused"
	TypePairUnpaused = "pair.unpaused"
	// TypePairConfig is emitted by administrative setters.
	TypePairConfig = "pair.config"
	// TypePairPrice is emitted when the oracle price is configured.
	TypePairPrice = "pair.price"
	// TypePairWithdrawal is emitted for token and fee withdrawals.
	TypePairWithdrawal = "pair.withdrawal"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// PairInitialized records the immutable identity of a pair.
type PairInitialized struct {
	Pair      common.Address
	Token0    common.Address
	Token1    common.Address
	Decimals0 uint8
	Decimals1 uint8
}

func (PairInitialized) EventType() string { return TypePairInitialized }

func (e PairInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypePairInitialized,
		Attributes: map[string]string{
			"pair":      e.Pair.Hex(),
			"token0":    e.Token0.Hex(),
			"token1":    e.Token1.Hex(),
			"decimals0": strconv.FormatUint(uint64(e.Decimals0), 10),
			"decimals1": strconv.FormatUint(uint64(e.Decimals1), 10),
		},
	}
}

// PairSwap captures the amounts moved by a swap.
type PairSwap struct {
	Pair       common.Address
	Sender     common.Address
	To         common.Address
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
	Price      *uint256.Int
	Timestamp  uint64
	Flash      bool
}

func (PairSwap) EventType() string { return TypePairSwap }

func (e PairSwap) Event() *types.Event {
	return &types.Event{
		Type: TypePairSwap,
		Attributes: map[string]string{
			"pair":       e.Pair.Hex(),
			"sender":     e.Sender.Hex(),
			"to":         e.To.Hex(),
			"amount0In":  amountString(e.Amount0In),
			"amount1In":  amountString(e.Amount1In),
			"amount0Out": amountString(e.Amount0Out),
			"amount1Out": amountString(e.Amount1Out),
			"price":      amountString(e.Price),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
			"flash":      strconv.FormatBool(e.Flash),
		},
	}
}

// PairFee reports the fee charged by one swap and the running totals.
type PairFee struct {
	Pair   common.Address
	Fee0   *uint256.Int
	Fee1   *uint256.Int
	Total0 *uint256.Int
	Total1 *uint256.Int
}

func (PairFee) EventType() string { return TypePairFee }

func (e PairFee) Event() *types.Event {
	return &types.Event{
		Type: TypePairFee,
		Attributes: map[string]string{
			"pair":   e.Pair.Hex(),
			"fee0":   amountString(e.Fee0),
			"fee1":   amountString(e.Fee1),
			"total0": amountString(e.Total0),
			"total1": amountString(e.Total1),
		},
	}
}

// PairSync reports freshly written reserves.
type PairSync struct {
	Pair     common.Address
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

func (PairSync) EventType() string { return TypePairSync }

func (e PairSync) Event() *types.Event {
	return &types.Event{
		Type: TypePairSync,
		Attributes: map[string]string{
			"pair":     e.Pair.Hex(),
			"reserve0": amountString(e.Reserve0),
			"reserve1": amountString(e.Reserve1),
		},
	}
}

// PairPauseToggled reports a change of the pause flag.
type PairPauseToggled struct {
	Pair   common.Address
	Caller common.Address
	Paused bool
}

func (e PairPauseToggled) EventType() string {
	if e.Paused {
		return TypePairPaused
	}
	return TypePairUnpaused
}

func (e PairPauseToggled) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"pair":   e.Pair.Hex(),
			"caller": e.Caller.Hex(),
		},
	}
}

// PairConfigUpdated reports an administrative change. Values carries the new
// settings keyed by field name.
type PairConfigUpdated struct {
	Pair    common.Address
	Caller  common.Address
	Setting string
	Values  map[string]string
}

func (PairConfigUpdated) EventType() string { return TypePairConfig }

func (e PairConfigUpdated) Event() *types.Event {
	attrs := map[string]string{
		"pair":    e.Pair.Hex(),
		"caller":  e.Caller.Hex(),
		"setting": strings.TrimSpace(e.Setting),
	}
	for key, value := range e.Values {
		if _, reserved := attrs[key]; reserved {
			continue
		}
		attrs[key] = value
	}
	return &types.Event{Type: TypePairConfig, Attributes: attrs}
}

// PairPriceConfigured reports a new oracle reference point.
type PairPriceConfigured struct {
	Pair         common.Address
	Caller       common.Address
	Price        *uint256.Int
	BasePrice    *uint256.Int
	AnnualDrift  int64
	DriftPerSec  int64
	UpdatedAtSec uint64
}

func (PairPriceConfigured) EventType() string { return TypePairPrice }

func (e PairPriceConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypePairPrice,
		Attributes: map[string]string{
			"pair":        e.Pair.Hex(),
			"caller":      e.Caller.Hex(),
			"price":       amountString(e.Price),
			"basePrice":   amountString(e.BasePrice),
			"annualDrift": strconv.FormatInt(e.AnnualDrift, 10),
			"driftPerSec": strconv.FormatInt(e.DriftPerSec, 10),
			"updatedAt":   strconv.FormatUint(e.UpdatedAtSec, 10),
		},
	}
}

// PairWithdrawal reports tokens or fees leaving the pair.
type PairWithdrawal struct {
	Pair   common.Address
	Caller common.Address
	Token  common.Address
	To     common.Address
	Amount *uint256.Int
	Fees   bool
}

func (PairWithdrawal) EventType() string { return TypePairWithdrawal }

func (e PairWithdrawal) Event() *types.Event {
	kind := "tokens"
	if e.Fees {
		kind = "fees"
	}
	return &types.Event{
		Type: TypePairWithdrawal,
		Attributes: map[string]string{
			"pair":   e.Pair.Hex(),
			"caller": e.Caller.Hex(),
			"token":  e.Token.Hex(),
			"to":     e.To.Hex(),
			"amount": amountString(e.Amount),
			"kind":   kind,
		},
	}
}
