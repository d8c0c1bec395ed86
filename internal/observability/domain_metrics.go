package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_chat_requests_total",
			Help: "Total number of answered chat requests by result kind.",
		},
		[]string{"result"},
	)
	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_generation_duration_seconds",
			Help:    "Latency of code generation calls by provider and status.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "status"},
	)
	sandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_sandbox_executions_total",
			Help: "Total number of sandboxed program executions by outcome.",
		},
		[]string{"outcome"},
	)
	sandboxExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_sandbox_execution_duration_seconds",
			Help:    "Wall clock duration of sandboxed executions, including worker startup.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
	)
	sandboxInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabletalk_sandbox_inflight",
			Help: "Current number of running sandbox workers.",
		},
	)
	contractViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_contract_violations_total",
			Help: "Generated programs whose output broke the answer contract, by kind.",
		},
		[]string{"kind"},
	)
	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabletalk_dataset_rows",
			Help: "Row count of the loaded dataset snapshot.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		generationDurationSeconds,
		sandboxExecutionsTotal,
		sandboxExecutionDurationSeconds,
		sandboxInflight,
		contractViolationsTotal,
		datasetRows,
	)
}

func ObserveChatResult(kind string) {
	chatRequestsTotal.WithLabelValues(kind).Inc()
}

func ObserveGeneration(provider string, ok bool, elapsed time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	generationDurationSeconds.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

func ObserveSandboxExecution(outcome string, elapsed time.Duration) {
	sandboxExecutionsTotal.WithLabelValues(outcome).Inc()
	sandboxExecutionDurationSeconds.Observe(elapsed.Seconds())
}

// TrackSandboxInflight increments the in-flight gauge and returns its release.
func TrackSandboxInflight() func() {
	sandboxInflight.Inc()
	return sandboxInflight.Dec
}

func IncrementContractViolation(kind string) {
	contractViolationsTotal.WithLabelValues(kind).Inc()
}

func SetDatasetRows(rows int64) {
	if rows < 0 {
		rows = 0
	}
	datasetRows.Set(float64(rows))
}
