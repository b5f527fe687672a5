package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"oraclepair/core/events"
)

func TestPairMetrics(t *testing.T) {
	pairAddr := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	m := Pair(pairAddr)
	label := "0x00000000000000000000000000000000000000a1"

	m.ObserveSwap("0to1", "ok")
	m.ObserveSwap("0to1", "ok")
	m.ObserveFee(token, uint256.NewInt(7))
	m.ObserveFee(token, uint256.NewInt(0))
	m.ObserveReserves(uint256.NewInt(10), uint256.NewInt(20))
	m.ObservePrice(new(uint256.Int).Mul(uint256.NewInt(3), uint256.NewInt(1e18)))

	reg := pairMetrics()
	require.Equal(t, 2.0, testutil.ToFloat64(reg.swaps.WithLabelValues(label, "0to1", "ok")))
	require.Equal(t, 7.0, testutil.ToFloat64(reg.fees.WithLabelValues(label, "0x00000000000000000000000000000000000000b2")))
	require.Equal(t, 20.0, testutil.ToFloat64(reg.reserves.WithLabelValues(label, "1")))
	require.Equal(t, 3.0, testutil.ToFloat64(reg.price.WithLabelValues(label)))

	var nilMetrics *PairMetrics
	nilMetrics.ObserveSwap("0to1", "ok")
}

func TestHTTPMetrics(t *testing.T) {
	m := HTTP()
	m.Observe("/v1/pairs/{pair}/swap", "POST", 200, time.Millisecond)
	m.Observe("/v1/pairs/{pair}/swap", "POST", 409, time.Millisecond)
	m.RecordThrottle("rate_limit")

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/pairs/{pair}/swap", "POST", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/v1/pairs/{pair}/swap", "POST", "409")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.throttles.WithLabelValues("rate_limit")))
}

func TestEventMetrics(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues(events.TypePairSync))
	events.Fanout{m}.Emit(events.PairSync{})
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues(events.TypePairSync)))
}

func TestBigToFloat(t *testing.T) {
	require.Zero(t, bigToFloat(nil))
	require.Equal(t, 1e30, bigToFloat(new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)))
	require.Zero(t, uintToFloat(nil))
}
