// Package metrics defines Prometheus metrics for the graph cache service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storygraph_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygraph_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygraph_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	// CacheLookups counts reads per namespace (chapter, manifest, summary)
	// and result (hit, mirror_hit, miss, expired, corrupt, backend).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygraph_cache_lookups_total",
			Help: "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	EventFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygraph_event_fetches_total",
			Help: "Upstream event fetches by result",
		},
		[]string{"result"},
	)

	ChapterBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygraph_chapter_builds_total",
			Help: "Chapter cache builds by outcome",
		},
		[]string{"outcome"},
	)

	ChapterBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storygraph_chapter_build_duration_seconds",
			Help:    "Time to discover and build one chapter cache",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	WarmQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storygraph_warm_queue_depth",
			Help: "Current book warm queue depth",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		CacheLookups, EventFetches,
		ChapterBuilds, ChapterBuildDuration,
		WarmQueueDepth,
	)
}
