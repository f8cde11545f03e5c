// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expensehub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expensehub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	expensesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expensehub_expenses_ingested_total",
		Help: "Expenses persisted, by ingest source and expense type",
	}, []string{"source", "type"})

	mobileBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expensehub_mobile_batches_total",
		Help: "Mobile upload batches, by batch mode and result",
	}, []string{"mode", "result"})

	billSequences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expensehub_bill_sequences_reserved_total",
		Help: "Bill sequence reservations, by backend and result",
	}, []string{"backend", "result"})

	exportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expensehub_export_rows_total",
		Help: "Rows written by spreadsheet exports, by sink",
	}, []string{"sink"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expensehub_rate_limited_requests_total",
		Help: "Requests rejected by the per-client rate limiter",
	})

	suspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expensehub_suspicious_requests_total",
		Help: "Requests matching a known probe or scanner pattern",
	})
)

// ObserveHTTPRequest records one handled request. route is the matched mux
// pattern so path parameters do not explode cardinality.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func ObserveExpense(source, expenseType string) {
	expensesIngested.WithLabelValues(source, expenseType).Inc()
}

func ObserveMobileBatch(mode, result string) {
	mobileBatches.WithLabelValues(mode, result).Inc()
}

func ObserveBillSequence(backend, result string) {
	billSequences.WithLabelValues(backend, result).Inc()
}

func ObserveExportRows(sink string, n int) {
	exportRows.WithLabelValues(sink).Add(float64(n))
}

func ObserveRateLimited() {
	rateLimited.Inc()
}

func ObserveSuspiciousRequest() {
	suspiciousRequests.Inc()
}
