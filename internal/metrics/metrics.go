// Package metrics provides Prometheus metrics collection for the preview gate.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "preview"
	subsystem = "gate"
)

// Version is reported by the info gauge.
var Version = "dev"

var (
	// Global metrics - used by the application
	// Using atomic.Pointer for lock-free initialization checks on hot path metrics.
	requestsTotal      atomic.Pointer[prometheus.CounterVec]
	requestDuration    atomic.Pointer[prometheus.HistogramVec]
	decisionsTotal     atomic.Pointer[prometheus.CounterVec]
	reapsTotal         atomic.Pointer[prometheus.CounterVec]
	grantsIssuedTotal  atomic.Pointer[prometheus.CounterVec]
	grantsDeletedTotal atomic.Pointer[prometheus.CounterVec]
	storageErrorsTotal atomic.Pointer[prometheus.CounterVec]
)

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// Init initializes all Prometheus metrics and registers them with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := newCounterVec("requests_total",
		"Total number of HTTP requests handled by the gate", "method", "path", "status")

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	decisionsTotalVec := newCounterVec("decisions_total",
		"Gate decisions by reason (public, granted, bypass, token_required, wrong_resource, error)", "reason")

	reapsTotalVec := newCounterVec("reaped_grants_total",
		"Expired grants removed on access, by result", "result")

	grantsIssuedVec := newCounterVec("grants_issued_total",
		"Grants created through the admin surface, by scope", "scope")

	grantsDeletedVec := newCounterVec("grants_deleted_total",
		"Grants revoked through the admin surface")

	storageErrorsVec := newCounterVec("storage_errors_total",
		"Grant store failures by operation", "op")

	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "info",
			Help:      "Gate version and build information",
		},
		[]string{"version"},
	)

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"requestsTotal", requestsTotalVec},
		{"requestDuration", requestDurationVec},
		{"decisionsTotal", decisionsTotalVec},
		{"reapsTotal", reapsTotalVec},
		{"grantsIssuedTotal", grantsIssuedVec},
		{"grantsDeletedTotal", grantsDeletedVec},
		{"storageErrorsTotal", storageErrorsVec},
		{"infoGauge", infoGaugeVec},
	}
	for _, c := range collectors {
		if err := reg.Register(c.c); err != nil {
			return fmt.Errorf("failed to register %s: %w", c.name, err)
		}
	}
	infoGaugeVec.WithLabelValues(Version).Set(1)

	// Store metrics in atomics for lock-free access in record functions
	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	decisionsTotal.Store(decisionsTotalVec)
	reapsTotal.Store(reapsTotalVec)
	grantsIssuedTotal.Store(grantsIssuedVec)
	grantsDeletedTotal.Store(grantsDeletedVec)
	storageErrorsTotal.Store(storageErrorsVec)

	return nil
}

// RecordRequest increments the requests counter for the given method, path, and status code.
// The path should be a route pattern, not the raw request path.
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordDecision counts a gate decision.
func RecordDecision(reason string) {
	if counter := decisionsTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordReap counts a lazy removal of an expired grant. result is "ok" or "failed".
func RecordReap(result string) {
	if counter := reapsTotal.Load(); counter != nil {
		counter.WithLabelValues(result).Inc()
	}
}

// RecordGrantIssued counts a created grant by scope kind.
func RecordGrantIssued(scope string) {
	if counter := grantsIssuedTotal.Load(); counter != nil {
		counter.WithLabelValues(scope).Inc()
	}
}

// RecordGrantDeleted counts a revoked grant.
func RecordGrantDeleted() {
	if counter := grantsDeletedTotal.Load(); counter != nil {
		counter.WithLabelValues().Inc()
	}
}

// RecordStorageError counts a failed store operation ("load" or "save").
func RecordStorageError(op string) {
	if counter := storageErrorsTotal.Load(); counter != nil {
		counter.WithLabelValues(op).Inc()
	}
}

// Handler returns an HTTP handler for Prometheus metrics in text format.
// This handler should be registered at /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics handler serving the given gatherer.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// This is useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	HandlerFor(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}
