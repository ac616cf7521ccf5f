// Package metrics exposes Prometheus instrumentation for the proof registry
// host and its HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics groups every collector the service publishes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	EventsEmitted     *prometheus.CounterVec
	ProofsTotal       prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proofchain_operations_total",
			Help: "Mutating registry calls by operation and result code",
		}, []string{"operation", "result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proofchain_operation_duration_seconds",
			Help:    "Duration of mutating registry calls including commit",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proofchain_events_emitted_total",
			Help: "Events released to the sink after commit",
		}, []string{"event", "result"}),
		ProofsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proofchain_proofs_total",
			Help: "Global proof counter as of the last committed call",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proofchain_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proofchain_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: latencyBuckets,
		}, []string{"route", "method"}),
		gatherer: g,
	}
}

// ObserveOperation records one mutating call. result is "ok" or an error code.
func (m *Metrics) ObserveOperation(operation, result string, start time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveEvent records the delivery outcome of one event.
func (m *Metrics) ObserveEvent(name string, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.EventsEmitted.WithLabelValues(name, result).Inc()
}

// SetProofsTotal publishes the global proof counter.
func (m *Metrics) SetProofsTotal(n uint64) {
	if m == nil {
		return
	}
	m.ProofsTotal.Set(float64(n))
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
