package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics instruments backend calls made by the settlement aggregator.
type SettlementMetrics struct {
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	fanOut   prometheus.Histogram
	sessions prometheus.Gauge
}

// NewSettlementMetrics registers the settlement collectors against registerer.
func NewSettlementMetrics(registerer prometheus.Registerer) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_backend_calls_total",
		Help: "Settlement backend calls by granularity and outcome.",
	}, []string{"granularity", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_backend_call_duration_seconds",
		Help:    "Settlement backend call latency by granularity.",
		Buckets: prometheus.DefBuckets,
	}, []string{"granularity"})
	fanOut := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_daily_fanout_days",
		Help:    "Number of per-day calls issued by one multi-day daily fetch.",
		Buckets: []float64{2, 7, 14, 31, 62, 93, 366},
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_dashboard_sessions",
		Help: "Open dashboard sessions.",
	})
	registerer.MustRegister(calls, latency, fanOut, sessions)
	return &SettlementMetrics{calls: calls, latency: latency, fanOut: fanOut, sessions: sessions}
}

// ObserveCall records one backend call.
func (m *SettlementMetrics) ObserveCall(granularity string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.calls.WithLabelValues(granularity, outcome).Inc()
	m.latency.WithLabelValues(granularity).Observe(elapsed.Seconds())
}

// ObserveFanOut records the width of a daily fan-out.
func (m *SettlementMetrics) ObserveFanOut(days int) {
	if m == nil || days <= 0 {
		return
	}
	m.fanOut.Observe(float64(days))
}

// SetSessions publishes the number of open dashboard sessions.
func (m *SettlementMetrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
