package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace = "simple_image_predict"

	metricsNameRequests      = "requests_total"
	metricsNameLatency       = "request_latency_seconds"
	metricsNameStageFailures = "stage_failures_total"

	metricLabelCode  = "code"
	metricLabelStage = "stage"
)

// MetricsMonitoring is an interface for monitoring metrics.
type MetricsMonitoring interface {
	ObserveRequest(code int, latency time.Duration)
	ObserveStageFailure(stage string)
}

// MetricsMonitor holds and updates Prometheus metrics.
type MetricsMonitor struct {
	requestsCounterVec      *prometheus.CounterVec
	latencyHistVec          *prometheus.HistogramVec
	stageFailuresCounterVec *prometheus.CounterVec
}

// latencyBuckets are the buckets for the latencies from 50ms to 2 minutes.
var latencyBuckets = []float64{
	.05, .1, .2, .5, 1, 2, 5, 10, 30, 60, 120,
}

// NewMetricsMonitor returns a new MetricsMonitor registered with reg.
func NewMetricsMonitor(reg prometheus.Registerer) *MetricsMonitor {
	m := &MetricsMonitor{
		requestsCounterVec: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      metricsNameRequests,
				Help:      "Number of /predict responses by status code.",
			},
			[]string{metricLabelCode},
		),
		latencyHistVec: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      metricsNameLatency,
				Help:      "Latency of /predict requests by status code.",
				Buckets:   latencyBuckets,
			},
			[]string{metricLabelCode},
		),
		stageFailuresCounterVec: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      metricsNameStageFailures,
				Help:      "Number of failed prediction stages.",
			},
			[]string{metricLabelStage},
		),
	}

	reg.MustRegister(
		m.requestsCounterVec,
		m.latencyHistVec,
		m.stageFailuresCounterVec,
	)
	return m
}

// ObserveRequest records a finished request.
func (m *MetricsMonitor) ObserveRequest(code int, latency time.Duration) {
	c := strconv.Itoa(code)
	m.requestsCounterVec.WithLabelValues(c).Inc()
	m.latencyHistVec.WithLabelValues(c).Observe(latency.Seconds())
}

// ObserveStageFailure records a request that failed in the given stage.
func (m *MetricsMonitor) ObserveStageFailure(stage string) {
	m.stageFailuresCounterVec.WithLabelValues(stage).Inc()
}
