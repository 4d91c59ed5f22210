package observability

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCookieJarMetricsCountClaims(t *testing.T) {
	m := CookieJar()
	require.Same(t, m, CookieJar())

	beforeSuccess := testutil.ToFloat64(m.claims.WithLabelValues("success"))
	beforeCookies := testutil.ToFloat64(m.claimedTotal)
	beforeRejected := testutil.ToFloat64(m.claims.WithLabelValues("allowance_exceeded"))

	m.ObserveClaim("success", 3, 10*time.Millisecond)
	m.ObserveClaim("allowance_exceeded", 5, time.Millisecond)

	require.Equal(t, beforeSuccess+1, testutil.ToFloat64(m.claims.WithLabelValues("success")))
	require.Equal(t, beforeCookies+3, testutil.ToFloat64(m.claimedTotal))
	require.Equal(t, beforeRejected+1, testutil.ToFloat64(m.claims.WithLabelValues("allowance_exceeded")))

	m.SetPoolBalance(big.NewInt(42))
	require.Equal(t, float64(42), testutil.ToFloat64(m.poolBalance))
	m.SetPause(true)
	require.Equal(t, float64(1), testutil.ToFloat64(m.pauseEngaged))
	m.SetPause(false)
	require.Equal(t, float64(0), testutil.ToFloat64(m.pauseEngaged))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *CookieJarMetrics
	m.ObserveClaim("success", 1, time.Second)
	m.AddPruned(2)
	m.SetPoolBalance(big.NewInt(1))
	m.RecordDeposit()
	m.SetPause(true)
}

func TestBigToFloatSaturates(t *testing.T) {
	require.Equal(t, float64(0), bigToFloat(nil))
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	require.Equal(t, math.MaxFloat64, bigToFloat(huge))
}

func TestEventMetrics(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("unknown"))
	m.RecordEvent("  ")
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues("unknown")))
}
