package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatched = "unmatched"

// The status surface is three read-only GET endpoints scraped by humans
// and monitors; a request counter per route is all it needs. Latency and
// throughput of the run itself are covered by the tracker metrics.
var statusRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batchbridge_status_requests_total",
		Help: "Requests served by the status HTTP endpoints.",
	},
	[]string{"path", "status"},
)

func init() {
	prometheus.MustRegister(statusRequestsTotal)
}

// metricsMiddleware counts requests by chi route pattern (not the raw
// path) to avoid unbounded cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		statusRequestsTotal.WithLabelValues(routePattern(r), strconv.Itoa(status)).Inc()
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
