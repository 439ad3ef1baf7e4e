package batch

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for submit results.
const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	submitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchbridge_submits_total",
			Help: "Total number of SubmitJob calls.",
		},
		[]string{"result"},
	)

	describeCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchbridge_describe_calls_total",
			Help: "Total number of DescribeJobs calls issued, after batching.",
		},
	)
)

func init() {
	prometheus.MustRegister(submitsTotal)
	prometheus.MustRegister(describeCalls)

	// Pre-initialize label combinations so they appear in /metrics with
	// value 0 from startup, rather than only after first observation.
	submitsTotal.WithLabelValues(resultOK)
	submitsTotal.WithLabelValues(resultError)
}
