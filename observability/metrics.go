package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oraclepair"

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type pairRegistry struct {
	swaps    *prometheus.CounterVec
	fees     *prometheus.CounterVec
	reserves *prometheus.GaugeVec
	price    *prometheus.GaugeVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	pairMetricsOnce sync.Once
	pairMetricsReg  *pairRegistry
)

// HTTP returns the lazily-initialised registry used by the daemon's
// request middleware.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method, and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by rate limits or quotas.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of a request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "quota_volume".
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func pairMetrics() *pairRegistry {
	pairMetricsOnce.Do(func() {
		pairMetricsReg = &pairRegistry{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pair",
				Name:      "swaps_total",
				Help:      "Swaps attempted segmented by direction and outcome.",
			}, []string{"pair", "direction", "outcome"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pair",
				Name:      "fees_total",
				Help:      "Purchase fees accrued in raw token units.",
			}, []string{"pair", "token"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pair",
				Name:      "reserve",
				Help:      "Recorded reserve in raw token units.",
			}, []string{"pair", "index"}),
			price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pair",
				Name:      "price",
				Help:      "Oracle price seen by the last swap or price update, in raw token0 units per raw token1 unit.",
			}, []string{"pair"}),
		}
		prometheus.MustRegister(
			pairMetricsReg.swaps,
			pairMetricsReg.fees,
			pairMetricsReg.reserves,
			pairMetricsReg.price,
		)
	})
	return pairMetricsReg
}

// PairMetrics records engine observations for one pair. It satisfies the
// engine's Metrics hook.
type PairMetrics struct {
	pair string
	reg  *pairRegistry
}

// Pair returns the metrics view labelled with the supplied pair address.
func Pair(pair common.Address) *PairMetrics {
	return &PairMetrics{pair: strings.ToLower(pair.Hex()), reg: pairMetrics()}
}

// ObserveSwap counts one swap attempt.
func (m *PairMetrics) ObserveSwap(direction, outcome string) {
	if m == nil {
		return
	}
	m.reg.swaps.WithLabelValues(m.pair, direction, outcome).Inc()
}

// ObserveFee adds an accrued fee to the per-token counter.
func (m *PairMetrics) ObserveFee(token common.Address, amount *uint256.Int) {
	if m == nil || amount == nil || amount.IsZero() {
		return
	}
	m.reg.fees.WithLabelValues(m.pair, strings.ToLower(token.Hex())).Add(uintToFloat(amount))
}

// ObserveReserves sets both reserve gauges.
func (m *PairMetrics) ObserveReserves(reserve0, reserve1 *uint256.Int) {
	if m == nil {
		return
	}
	m.reg.reserves.WithLabelValues(m.pair, "0").Set(uintToFloat(reserve0))
	m.reg.reserves.WithLabelValues(m.pair, "1").Set(uintToFloat(reserve1))
}

// ObservePrice sets the price gauge, scaled down from fixed point.
func (m *PairMetrics) ObservePrice(price *uint256.Int) {
	if m == nil {
		return
	}
	m.reg.price.WithLabelValues(m.pair).Set(uintToFloat(price) / 1e18)
}

func uintToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	return bigToFloat(value.ToBig())
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
