package pair

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const moduleName = "pair"

const (
	// SecondsPerYear converts annualized drift rates into per-second rates.
	SecondsPerYear = 31_536_000

	// Width limits of the persisted counters. Values are held in 256-bit
	// integers and narrowed explicitly before they are stored.
	ReserveBits        = 112
	FeeAccumulatorBits = 112
	TimestampBits      = 40

	// MaxDecimals bounds token precision so 10^decimals stays far below the
	// 256-bit ceiling during price adjustment.
	MaxDecimals = 36
)

var (
	// Scale is the fixed-point unit shared by prices and fee rates (1e18).
	Scale = uint256.NewInt(1_000_000_000_000_000_000)

	scaleSquared = new(uint256.Int).Mul(Scale, Scale)
)

// MaxFeeRate is a fee of 100%.
const MaxFeeRate uint64 = 1_000_000_000_000_000_000

// Config holds the slow-moving, administrator controlled settings of a pair.
type Config struct {
	MinPurchaseFee0 uint64
	MaxPurchaseFee0 uint64
	MinPurchaseFee1 uint64
	MaxPurchaseFee1 uint64

	TokenReceiver common.Address
	FeeReceiver   common.Address

	// Bounds for the configured (human, 1e18 scaled) price.
	MinBasePrice *uint256.Int
	MaxBasePrice *uint256.Int
	// Bounds for the annualized drift rate (1e18 scaled, signed).
	MinDriftRate int64
	MaxDriftRate int64

	Decimals0 uint8
	Decimals1 uint8
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.MinBasePrice = cloneOrZero(c.MinBasePrice)
	clone.MaxBasePrice = cloneOrZero(c.MaxBasePrice)
	return &clone
}

// SwapState is the hot record mutated by every swap.
type SwapState struct {
	Paused bool

	Token0 common.Address
	Token1 common.Address

	// Reserves exclude accrued fees.
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int

	PurchaseFee0 uint64
	PurchaseFee1 uint64

	LastPriceUpdate uint64
	// DriftRate is the signed per-second drift, 1e18 scaled.
	DriftRate int64
	// BasePrice is the number of raw token0 units per raw token1 unit at
	// LastPriceUpdate, 1e18 scaled.
	BasePrice *uint256.Int

	FeesAccumulated0 *uint256.Int
	FeesAccumulated1 *uint256.Int
}

// IsPaused lets the state act as a pause view for the module guard.
func (s *SwapState) IsPaused(module string) bool {
	return s != nil && module == moduleName && s.Paused
}

// Clone returns a deep copy of the swap state.
func (s *SwapState) Clone() *SwapState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Reserve0 = cloneOrZero(s.Reserve0)
	clone.Reserve1 = cloneOrZero(s.Reserve1)
	clone.BasePrice = cloneOrZero(s.BasePrice)
	clone.FeesAccumulated0 = cloneOrZero(s.FeesAccumulated0)
	clone.FeesAccumulated1 = cloneOrZero(s.FeesAccumulated1)
	return &clone
}

// Reserve returns the reserve held for token, or nil if the token is not
// part of the pair.
func (s *SwapState) Reserve(token common.Address) *uint256.Int {
	switch token {
	case s.Token0:
		return s.Reserve0
	case s.Token1:
		return s.Reserve1
	}
	return nil
}

// Fees returns the fees accrued in token, or nil if the token is not part of
// the pair.
func (s *SwapState) Fees(token common.Address) *uint256.Int {
	switch token {
	case s.Token0:
		return s.FeesAccumulated0
	case s.Token1:
		return s.FeesAccumulated1
	}
	return nil
}

// SwapResult describes a committed swap.
type SwapResult struct {
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
	Fee0       *uint256.Int
	Fee1       *uint256.Int
	Price      *uint256.Int
	Timestamp  uint64
}

// Quote is the off-chain preview of a route.
type Quote struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	// Fee is denominated in the token being purchased.
	Fee   *uint256.Int
	Price *uint256.Int
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
