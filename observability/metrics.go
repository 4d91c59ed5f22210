package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cookieJarMetricsOnce sync.Once
	cookieJarRegistry    *CookieJarMetrics
)

// CookieJarMetrics wraps collectors tracking allowance engine health.
type CookieJarMetrics struct {
	claims       *prometheus.CounterVec
	claimedTotal prometheus.Counter
	pruned       prometheus.Counter
	claimLatency prometheus.Histogram
	poolBalance  prometheus.Gauge
	pauseEngaged prometheus.Gauge
	deposits     prometheus.Counter
}

// CookieJar exposes the lazily-initialised metrics registry for the jar.
func CookieJar() *CookieJarMetrics {
	cookieJarMetricsOnce.Do(func() {
		cookieJarRegistry = &CookieJarMetrics{
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "claims_total",
				Help:      "Claim attempts segmented by outcome.",
			}, []string{"outcome"}),
			claimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "claimed_cookies_total",
				Help:      "Cookies paid out by successful claims.",
			}),
			pruned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "pruned_claims_total",
				Help:      "Claim records dropped after ageing out of the allowance window.",
			}),
			claimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "claim_duration_seconds",
				Help:      "Latency distribution for claim processing.",
				Buckets:   prometheus.DefBuckets,
			}),
			poolBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "pool_balance_units",
				Help:      "Last observed pool balance in underlying token units.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "pause_engaged",
				Help:      "Indicates whether the claim pause guard is active (1) or not (0).",
			}),
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "cookiejar",
				Name:      "deposits_total",
				Help:      "Count of successful pool deposits.",
			}),
		}
		prometheus.MustRegister(
			cookieJarRegistry.claims,
			cookieJarRegistry.claimedTotal,
			cookieJarRegistry.pruned,
			cookieJarRegistry.claimLatency,
			cookieJarRegistry.poolBalance,
			cookieJarRegistry.pauseEngaged,
			cookieJarRegistry.deposits,
		)
	})
	return cookieJarRegistry
}

// ObserveClaim records the outcome of a claim attempt. Only successful claims
// add to the claimed cookie counter.
func (m *CookieJarMetrics) ObserveClaim(outcome string, cookies uint64, d time.Duration) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unspecified"
	}
	m.claims.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.claimedTotal.Add(float64(cookies))
	}
	m.claimLatency.Observe(d.Seconds())
}

// AddPruned increments the pruned record counter.
func (m *CookieJarMetrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

// SetPoolBalance records the pool balance gauge.
func (m *CookieJarMetrics) SetPoolBalance(units *big.Int) {
	if m == nil {
		return
	}
	m.poolBalance.Set(bigToFloat(units))
}

// RecordDeposit increments the deposit counter.
func (m *CookieJarMetrics) RecordDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

// SetPause toggles the pause_engaged gauge.
func (m *CookieJarMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}
