package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsClient holds the Prometheus collectors for sessions, sweeps and cloud calls.
// Each client owns its registry so that several can coexist in one process.
type MetricsClient struct {
	registry *prometheus.Registry

	SessionsStarted   *prometheus.CounterVec
	SessionsEnded     *prometheus.CounterVec
	CreditsBilled     *prometheus.CounterVec
	SweepRuns         *prometheus.CounterVec
	SweepOutcomes     *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
	CloudCalls        *prometheus.CounterVec
	CloudCallDuration *prometheus.HistogramVec
}

func NewMetricsClient() *MetricsClient {
	m := &MetricsClient{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vm_sessions_started_total",
				Help: "Session start attempts by outcome",
			},
			[]string{"vm_type", "outcome"},
		),
		SessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vm_sessions_ended_total",
				Help: "Sessions that reached a terminal status",
			},
			[]string{"vm_type", "status"},
		),
		CreditsBilled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vm_session_credits_billed_total",
				Help: "Credits billed for completed sessions",
			},
			[]string{"vm_type"},
		),
		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vm_sweep_runs_total",
				Help: "Background sweep executions",
			},
			[]string{"sweep"},
		),
		SweepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vm_sweep_items_total",
				Help: "Items processed by background sweeps by outcome",
			},
			[]string{"sweep", "outcome"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vm_sweep_duration_seconds",
				Help:    "Background sweep duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"sweep"},
		),
		CloudCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vm_cloud_calls_total",
				Help: "Cloud provider calls by operation and result",
			},
			[]string{"provider", "operation", "result"},
		),
		CloudCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vm_cloud_call_duration_seconds",
				Help:    "Cloud provider call latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsStarted,
		m.SessionsEnded,
		m.CreditsBilled,
		m.SweepRuns,
		m.SweepOutcomes,
		m.SweepDuration,
		m.CloudCalls,
		m.CloudCallDuration,
	)
	return m
}

func (m *MetricsClient) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *MetricsClient) Registry() *prometheus.Registry {
	return m.registry
}

// The helpers below are nil-safe so that components can run without metrics.

func (m *MetricsClient) ObserveSessionStart(vmType, outcome string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(vmType, outcome).Inc()
}

func (m *MetricsClient) ObserveSessionEnd(vmType, status string, credits float64) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(vmType, status).Inc()
	if credits > 0 {
		m.CreditsBilled.WithLabelValues(vmType).Add(credits)
	}
}

func (m *MetricsClient) ObserveSweep(sweep string, started time.Time, outcomes map[string]int) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(sweep).Inc()
	m.SweepDuration.WithLabelValues(sweep).Observe(time.Since(started).Seconds())
	for outcome, n := range outcomes {
		if n > 0 {
			m.SweepOutcomes.WithLabelValues(sweep, outcome).Add(float64(n))
		}
	}
}

func (m *MetricsClient) ObserveCloudCall(provider, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CloudCalls.WithLabelValues(provider, operation, result).Inc()
	m.CloudCallDuration.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}
