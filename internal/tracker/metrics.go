package tracker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seqfabric/batchbridge/internal/model"
)

var (
	trackedJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchbridge_tracked_jobs",
			Help: "Number of remote jobs currently tracked to a terminal state.",
		},
	)

	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchbridge_job_outcomes_total",
			Help: "Total number of terminal job outcomes reported to the engine.",
		},
		[]string{"verdict"},
	)

	submitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchbridge_submit_retries_total",
			Help: "Total number of failed submit attempts that were retried with backoff.",
		},
	)

	pollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batchbridge_poll_cycle_seconds",
			Help:    "Duration of one poll cycle over all tracked jobs, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(trackedJobs)
	prometheus.MustRegister(outcomesTotal)
	prometheus.MustRegister(submitRetries)
	prometheus.MustRegister(pollCycleDuration)

	// Pre-initialize counter label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	for _, v := range []model.Verdict{model.VerdictSucceeded, model.VerdictFailed, model.VerdictCancelled} {
		outcomesTotal.WithLabelValues(string(v))
	}
}
