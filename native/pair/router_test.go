package pair

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"oraclepair/core/events"
	"oraclepair/core/state"
)

func forward() []common.Address { return []common.Address{token0, token1} }

func backward() []common.Address { return []common.Address{token1, token0} }

func TestSwapExactTokensForTokens(t *testing.T) {
	f := newFixture(t)
	f.fund(token0, swapper, 10_000)

	quote, err := f.engine.QuoteExactIn(u(1001), forward())
	require.NoError(t, err)
	require.Equal(t, uint64(999), quote.AmountOut.Uint64())
	require.Equal(t, uint64(2), quote.Fee.Uint64())

	amounts, err := f.engine.SwapExactTokensForTokens(swapper, u(1001), u(999), forward(), trader, testNow)
	require.NoError(t, err)
	require.Equal(t, uint64(1001), amounts[0].Uint64())
	require.Equal(t, uint64(999), amounts[1].Uint64())
	require.Equal(t, uint64(8_999), f.balance(token0, swapper))
	require.Equal(t, uint64(999), f.balance(token1, trader))
	f.requireInvariant(true)
	require.Len(t, f.recorder.OfType(events.TypePairSwap), 1)
}

func TestSwapTokensForExactTokens(t *testing.T) {
	f := newFixture(t)
	f.fund(token0, swapper, 10_000)

	amounts, err := f.engine.SwapTokensForExactTokens(swapper, u(1000), u(1001), forward(), trader, testNow+60)
	require.NoError(t, err)
	require.Equal(t, uint64(1001), amounts[0].Uint64())
	require.Equal(t, uint64(1000), amounts[1].Uint64())
	require.Equal(t, uint64(1000), f.balance(token1, trader))
	require.Equal(t, uint64(8_999), f.balance(token0, swapper))
	f.requireInvariant(true)
}

func TestRouteReverseDirection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.ConfigureOraclePrice(oracle, e18(2), 0))
	f.fund(token1, swapper, 10_000)

	amounts, err := f.engine.SwapExactTokensForTokens(swapper, u(1000), u(1), backward(), trader, testNow)
	require.NoError(t, err)
	// gross 2000 token0, fee ceil(2) = 2
	require.Equal(t, uint64(1998), amounts[1].Uint64())
	require.Equal(t, uint64(1998), f.balance(token0, trader))

	st := f.swapState()
	require.Equal(t, uint64(2), st.FeesAccumulated0.Uint64())
	require.Equal(t, uint64(1_001_000), st.Reserve1.Uint64())
	f.requireInvariant(true)
}

func TestRouteDeadline(t *testing.T) {
	f := newFixture(t)
	f.fund(token0, swapper, 10_000)

	_, err := f.engine.SwapExactTokensForTokens(swapper, u(1001), u(0), forward(), trader, testNow-1)
	require.ErrorIs(t, err, ErrExpired)
	_, err = f.engine.SwapTokensForExactTokens(swapper, u(1000), u(2000), forward(), trader, testNow-1)
	require.ErrorIs(t, err, ErrExpired)
	require.Zero(t, f.state.transfers)

	// The deadline second itself is still valid.
	_, err = f.engine.SwapTokensForExactTokens(swapper, u(1000), u(2000), forward(), trader, testNow)
	require.NoError(t, err)
}

func TestRouteSlippage(t *testing.T) {
	f := newFixture(t)
	f.fund(token0, swapper, 10_000)

	_, err := f.engine.SwapExactTokensForTokens(swapper, u(1001), u(1000), forward(), trader, testNow)
	require.ErrorIs(t, err, ErrInsufficientOutput)
	require.Equal(t, KindEconomic, KindOf(err))

	_, err = f.engine.SwapTokensForExactTokens(swapper, u(1000), u(1000), forward(), trader, testNow)
	require.ErrorIs(t, err, ErrExcessiveInput)

	require.Zero(t, f.state.transfers)
	require.Equal(t, uint64(10_000), f.balance(token0, swapper))
}

func TestRouteValidation(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000000099")
	paths := [][]common.Address{
		nil,
		{token0},
		{token0, token0},
		{token0, other},
		{token0, token1, token0},
	}
	for _, path := range paths {
		_, err := f.engine.SwapExactTokensForTokens(swapper, u(10), u(0), path, trader, testNow)
		require.ErrorIs(t, err, ErrInvalidPath)
		_, err = f.engine.QuoteExactOut(u(10), path)
		require.ErrorIs(t, err, ErrInvalidPath)
	}

	_, err := f.engine.SwapExactTokensForTokens(swapper, u(0), u(0), forward(), trader, testNow)
	require.ErrorIs(t, err, ErrInvalidAmounts)
	_, err = f.engine.SwapTokensForExactTokens(swapper, nil, u(10), forward(), trader, testNow)
	require.ErrorIs(t, err, ErrInvalidAmounts)
	require.Zero(t, f.state.transfers)
}

func TestRouteCallerWithoutFunds(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SwapExactTokensForTokens(swapper, u(1001), u(0), forward(), trader, testNow)
	require.ErrorIs(t, err, state.ErrInsufficientBalance)
	require.Equal(t, uint64(0), f.balance(token1, trader))
	require.Empty(t, f.recorder.Events())
}

func TestRouteRequiresSwapper(t *testing.T) {
	f := newFixture(t)
	f.fund(token0, stranger, 10_000)
	_, err := f.engine.SwapExactTokensForTokens(stranger, u(1001), u(0), forward(), trader, testNow)
	require.ErrorIs(t, err, ErrUnauthorized)
	// The pulled input is returned with the rollback.
	require.Equal(t, uint64(10_000), f.balance(token0, stranger))
}

func TestRouteFeeConsumesOutput(t *testing.T) {
	params := defaultParams()
	params.MaxPurchaseFee1 = MaxFeeRate
	params.PurchaseFee1 = MaxFeeRate
	f := newFixtureWith(t, params, 1_000_000)
	f.fund(token0, swapper, 10_000)

	// The whole gross output goes to the fee.
	_, err := f.engine.QuoteExactIn(u(1000), forward())
	require.ErrorIs(t, err, ErrInsufficientOutput)
	require.Equal(t, KindEconomic, KindOf(err))

	// The rounded fee exceeds a gross output that floors to zero.
	require.NoError(t, f.engine.ConfigureOraclePrice(oracle, e18(3), 0))
	_, err = f.engine.QuoteExactIn(u(1), forward())
	require.ErrorIs(t, err, ErrInsufficientOutput)
	require.NotErrorIs(t, err, ErrArithmetic)

	_, err = f.engine.SwapExactTokensForTokens(swapper, u(1), u(0), forward(), trader, testNow)
	require.ErrorIs(t, err, ErrInsufficientOutput)
	require.Zero(t, f.state.transfers)
	require.Equal(t, uint64(10_000), f.balance(token0, swapper))
}

func TestRouteMetricsDirection(t *testing.T) {
	f := newFixture(t)
	metrics := &metricsRecorder{}
	f.engine.SetMetrics(metrics)
	f.fund(token1, swapper, 10_000)

	_, err := f.engine.SwapExactTokensForTokens(swapper, u(1000), u(1000), backward(), trader, testNow)
	require.ErrorIs(t, err, ErrInsufficientOutput)
	_, err = f.engine.SwapTokensForExactTokens(swapper, u(100), u(1000), backward(), trader, testNow)
	require.NoError(t, err)
	_, err = f.engine.SwapExactTokensForTokens(swapper, u(10), u(0), []common.Address{token1, token1}, trader, testNow)
	require.ErrorIs(t, err, ErrInvalidPath)

	require.Equal(t, 1, metrics.swaps["1to0/economic"])
	require.Equal(t, 1, metrics.swaps["1to0/ok"])
	require.Equal(t, 1, metrics.swaps["unknown/validation"])
	require.Zero(t, metrics.swaps["0to1/economic"])
}

func TestValidatePath(t *testing.T) {
	zeroForOne, err := ValidatePath(forward(), token0, token1)
	require.NoError(t, err)
	require.True(t, zeroForOne)

	zeroForOne, err = ValidatePath(backward(), token0, token1)
	require.NoError(t, err)
	require.False(t, zeroForOne)
}
