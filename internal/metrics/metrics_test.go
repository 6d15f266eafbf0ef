package metrics_test

import (
	"testing"
	"time"

	"github.com/myrjola/fraudalert/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveStore("fallback", "lookup", metrics.ResultOK, time.Now())
	m.ObserveStore("fallback", "lookup", metrics.ResultNotFound, time.Now())
	m.ObserveStore("fallback", "lookup", metrics.ResultOK, time.Now())
	require.InDelta(t, 2, testutil.ToFloat64(m.StoreOperations.WithLabelValues("fallback", "lookup", "ok")), 0)

	m.SelectBackend("primary")
	m.SelectBackend("fallback")
	require.InDelta(t, 1, testutil.ToFloat64(m.BackendSelected.WithLabelValues("fallback")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.BackendSelected), "only the latest backend is reported")

	m.IncrementSessionStarted()
	m.IncrementOutcome("confirmed_safe")
	m.IncrementProtocolRejected("resolve")
	require.InDelta(t, 1, testutil.ToFloat64(m.SessionsStarted), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.SessionOutcomes.WithLabelValues("confirmed_safe")), 0)

	require.Panics(t, func() { metrics.New(reg) }, "collectors register once per registry")
}
