package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfolio"

// Result labels shared by all collectors.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

type collectors struct {
	tagOperations   *prometheus.CounterVec
	tagLatency      *prometheus.HistogramVec
	assignments     *prometheus.CounterVec
	reconcileRuns   *prometheus.CounterVec
	reconcileTime   *prometheus.HistogramVec
	pendingObserved *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	panics          prometheus.Counter
}

var singleton = sync.OnceValue(func() *collectors {
	return &collectors{
		tagOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_operations_total",
			Help:      "Total number of calls made against the external tagging API.",
		}, []string{"operation", "result"}),
		tagLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tag_operation_latency_seconds",
			Help:      "Latency distribution for external tagging API calls.",
			Buckets: []float64{
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}, []string{"operation"}),
		assignments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_outcomes_total",
			Help:      "Per-property outcomes of bulk assignment operations.",
		}, []string{"operation", "outcome"}),
		reconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Total number of scheduled reconciliation runs.",
		}, []string{"job", "result"}),
		reconcileTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of scheduled reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		pendingObserved: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assignments_needing_sync",
			Help:      "Assignments found pending or failed at the start of the last sync run.",
		}, []string{"job"}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests by route and status class.",
		}, []string{"method", "route", "status"}),
		httpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		panics: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_panics_total",
			Help:      "Handler panics recovered by the API.",
		}),
	}
})

// ObserveTagOperation records one external tag call.
func ObserveTagOperation(operation string, err error, elapsed time.Duration) {
	m := singleton()
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.tagOperations.WithLabelValues(operation, result).Inc()
	m.tagLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddAssignmentOutcome adds n outcomes for an assignment operation.
func AddAssignmentOutcome(operation, outcome string, n int) {
	if n <= 0 {
		return
	}
	singleton().assignments.WithLabelValues(operation, outcome).Add(float64(n))
}

// ObserveReconcileRun records a completed scheduler run.
func ObserveReconcileRun(job string, err error, elapsed time.Duration) {
	m := singleton()
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.reconcileRuns.WithLabelValues(job, result).Inc()
	m.reconcileTime.WithLabelValues(job).Observe(elapsed.Seconds())
}

// SkipReconcileRun records a run that did not start because another instance held the lock.
func SkipReconcileRun(job string) {
	singleton().reconcileRuns.WithLabelValues(job, ResultSkipped).Inc()
}

// SetNeedingSync publishes the backlog seen by a sync run.
func SetNeedingSync(job string, n int) {
	singleton().pendingObserved.WithLabelValues(job).Set(float64(n))
}

// ObserveHTTPRequest records one API request. route is the matched route
// template so path IDs do not explode label cardinality; unmatched requests
// should pass "unmatched".
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m := singleton()
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncPanics counts a recovered handler panic.
func IncPanics() {
	singleton().panics.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
