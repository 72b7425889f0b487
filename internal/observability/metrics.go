// Package observability holds this service's Prometheus metrics and
// logger construction: one struct of collectors, a constructor that
// registers them against the default registry, and a test constructor
// that leaves them unregistered so concurrent tests never collide on
// metric names.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector this service exposes.
type Metrics struct {
	RowsRead    prometheus.Counter
	RowsWritten prometheus.Counter
	RowsSkipped prometheus.Counter

	ChunksGeocoded   prometheus.Counter
	ChunkRetries     *prometheus.CounterVec // labels: reason={rate_limit,geocoder_error}
	ChunkProcessTime prometheus.Histogram

	GeocodeRequests    *prometheus.CounterVec   // labels: geocoder, outcome={success,error}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: geocoder

	CacheLookups *prometheus.CounterVec // labels: result={hit,miss,corrupt}

	RateLimiterWaitSeconds prometheus.Histogram

	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers every collector with the default
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsRead, m.RowsWritten, m.RowsSkipped,
		m.ChunksGeocoded, m.ChunkRetries, m.ChunkProcessTime,
		m.GeocodeRequests, m.GeocodeAPIDuration,
		m.CacheLookups,
		m.RateLimiterWaitSeconds,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting builds Metrics without registering them, avoiding
// "duplicate metrics collector registration" panics when many tests in
// the same process construct their own Metrics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsRead:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "geocode_csv", Name: "rows_read_total", Help: "Input rows read."}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "geocode_csv", Name: "rows_written_total", Help: "Output rows written."}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "geocode_csv", Name: "rows_skipped_total", Help: "Rows skipped for having an invalid address."}),

		ChunksGeocoded: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "geocode_csv", Name: "chunks_geocoded_total", Help: "Chunks that completed geocoding."}),
		ChunkRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocode_csv", Name: "chunk_retries_total", Help: "Chunk geocode retries by reason.",
		}, []string{"reason"}),
		ChunkProcessTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geocode_csv", Name: "chunk_process_seconds", Help: "Time to geocode one chunk, including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocode_csv", Name: "geocode_requests_total", Help: "Requests to an external geocoder by outcome.",
		}, []string{"geocoder", "outcome"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geocode_csv", Name: "geocode_api_duration_seconds", Help: "External geocoder request duration.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"geocoder"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocode_csv", Name: "cache_lookups_total", Help: "Cache lookups by result.",
		}, []string{"result"}),

		RateLimiterWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geocode_csv", Name: "rate_limiter_wait_seconds", Help: "Time spent waiting on the outbound rate limiter.",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "geocode_csv", Name: "pipeline_running", Help: "1 while the pipeline is active."}),
	}
}
