// Package metrics exposes Prometheus collectors for the pipeline service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineItemsTotal         *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	rendersTotal               *prometheus.CounterVec
	pipelineItemSeconds        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_items_total",
				Help: "Total number of pipeline items processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_extractions_total",
				Help: "Total number of extractions, labeled by result.",
			},
			[]string{"result"},
		)

		rendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_renders_total",
				Help: "Total number of render attempts, labeled by result.",
			},
			[]string{"result"},
		)

		pipelineItemSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_item_duration_seconds",
				Help:    "Histogram of end-to-end per-item processing latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem increments the item counter for the given outcome and records
// its processing time.
func ObserveItem(outcome string, duration time.Duration) {
	pipelineItemsTotal.WithLabelValues(outcome).Inc()
	pipelineItemSeconds.Observe(duration.Seconds())
}

// ObserveExtraction increments the extraction counter for the given result,
// "ok" or a failure reason.
func ObserveExtraction(result string) {
	extractionsTotal.WithLabelValues(result).Inc()
}

// ObserveRender increments the render counter for the given result.
func ObserveRender(result string) {
	rendersTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
