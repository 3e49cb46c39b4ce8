// Package telemetry implements the narrow, stable observability surface
// (component J): counters, histograms, an in-flight gauge, and structured
// log correlation. Backed by the real prometheus/client_golang registry
// instead of the teacher gateway's hand-rolled Prometheus text-exposition
// writer in observability/metrics.go.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recorder is the pipeline's telemetry surface.
type Recorder struct {
	registry *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	AuthzDecisionsTotal  *prometheus.CounterVec
	ValidationFailures   *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	RequestSize          *prometheus.HistogramVec
	ResponseSize         *prometheus.HistogramVec
	InFlightRequests     prometheus.Gauge

	Logger zerolog.Logger
}

// New registers every named metric named in §4.J against a fresh registry.
func New(logger zerolog.Logger) *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archimedes_requests_total", Help: "Total requests processed by the pipeline.",
		}, []string{"operation", "status"}),
		AuthzDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archimedes_authz_decisions_total", Help: "Authorization decisions by result.",
		}, []string{"result"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archimedes_validation_failures_total", Help: "Validation failures by direction and reason.",
		}, []string{"direction", "reason"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "archimedes_request_duration_seconds", Help: "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		RequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "archimedes_request_size_bytes", Help: "Request body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"operation"}),
		ResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "archimedes_response_size_bytes", Help: "Response body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"operation"}),
		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archimedes_in_flight_requests", Help: "Requests currently being processed.",
		}),
		Logger: logger.With().Str("component", "telemetry").Logger(),
	}

	reg.MustRegister(r.RequestsTotal, r.AuthzDecisionsTotal, r.ValidationFailures,
		r.RequestDuration, r.RequestSize, r.ResponseSize, r.InFlightRequests)
	return r
}

// Handler exposes the Prometheus text-exposition endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// LogRequest emits the one structured record per request required by §4.J.
func (r *Recorder) LogRequest(requestID, traceID, operationID, status string, durationMs float64) {
	r.Logger.Info().
		Str("request_id", requestID).
		Str("trace_id", traceID).
		Str("operation_id", operationID).
		Str("status", status).
		Float64("duration_ms", durationMs).
		Msg("request")
}
