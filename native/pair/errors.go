package pair

import (
	"errors"

	nativecommon "oraclepair/native/common"
)

var (
	// Authorization.
	ErrUnauthorized = errors.New("pair: caller lacks required role")

	// Input validation.
	ErrInvalidAmounts   = errors.New("pair: exactly one output amount must be non-zero")
	ErrInvalidPath      = errors.New("pair: path must be a permutation of the pair tokens")
	ErrExpired          = errors.New("pair: deadline expired")
	ErrInvalidAddress   = errors.New("pair: invalid address")
	ErrInvalidDecimals  = errors.New("pair: token decimals out of range")
	ErrIdenticalTokens  = errors.New("pair: tokens must differ")
	ErrInvalidRecipient = errors.New("pair: recipient cannot be the pair or one of its tokens")

	// Bounds.
	ErrBoundsInverted = errors.New("pair: minimum exceeds maximum")
	ErrOutOfBounds    = errors.New("pair: value outside configured bounds")
	ErrFeeOutOfRange  = errors.New("pair: fee rate exceeds 100%")

	// Economic invariants.
	ErrInsufficientLiquidity = errors.New("pair: insufficient liquidity")
	ErrInsufficientInput     = errors.New("pair: insufficient input amount")
	ErrInsufficientOutput    = errors.New("pair: output below minimum")
	ErrExcessiveInput        = errors.New("pair: input above maximum")

	// Accounting.
	ErrExceedsAvailable = errors.New("pair: amount exceeds unencumbered balance")
	ErrExceedsFees      = errors.New("pair: amount exceeds accrued fees")
	ErrUnknownToken     = errors.New("pair: token is not part of the pair")
	ErrAccounting       = errors.New("pair: balance below accrued fees")

	// Arithmetic faults.
	ErrArithmetic     = errors.New("pair: arithmetic overflow or underflow")
	ErrOverflow       = errors.New("pair: value does not fit counter width")
	ErrDivisionByZero = errors.New("pair: division by zero price")
	ErrClockSkew      = errors.New("pair: timestamp precedes last price update")

	// Lifecycle and execution state.
	ErrPaused             = nativecommon.ErrModulePaused
	ErrReentrant          = nativecommon.ErrReentrant
	ErrNotInitialized     = errors.New("pair: not initialised")
	ErrAlreadyInitialized = errors.New("pair: already initialised")
	ErrNoCallee           = errors.New("pair: recipient cannot receive settlement callback")
	ErrNilState           = errors.New("pair: state not configured")
)

// Kind groups errors by the failure taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindBounds
	KindEconomic
	KindAccounting
	KindArithmetic
	KindReentrancy
	KindPaused
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindBounds:
		return "bounds"
	case KindEconomic:
		return "economic"
	case KindAccounting:
		return "accounting"
	case KindArithmetic:
		return "arithmetic"
	case KindReentrancy:
		return "reentrancy"
	case KindPaused:
		return "paused"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindAuthorization, []error{ErrUnauthorized}},
	{KindValidation, []error{ErrInvalidAmounts, ErrInvalidPath, ErrExpired, ErrInvalidAddress, ErrInvalidDecimals, ErrIdenticalTokens, ErrInvalidRecipient}},
	{KindBounds, []error{ErrBoundsInverted, ErrOutOfBounds, ErrFeeOutOfRange}},
	{KindEconomic, []error{ErrInsufficientLiquidity, ErrInsufficientInput, ErrInsufficientOutput, ErrExcessiveInput}},
	{KindAccounting, []error{ErrExceedsAvailable, ErrExceedsFees, ErrUnknownToken, ErrAccounting}},
	{KindArithmetic, []error{ErrArithmetic, ErrOverflow, ErrDivisionByZero, ErrClockSkew}},
	{KindReentrancy, []error{ErrReentrant}},
	{KindPaused, []error{ErrPaused}},
	{KindState, []error{ErrNotInitialized, ErrAlreadyInitialized, ErrNoCallee, ErrNilState}},
}

// KindOf classifies err. Wrapped errors are unwrapped with errors.Is.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, group := range kinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindUnknown
}
