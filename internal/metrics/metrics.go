package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "histview_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Dataset Metrics
	DatasetRowsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "histview_dataset_rows_loaded",
			Help: "Number of raw rows in the current snapshot",
		},
		[]string{"source"},
	)

	DatasetMalformedRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "histview_dataset_malformed_rows",
			Help: "Number of rows in the current snapshot with unparseable timestamps",
		},
		[]string{"source"},
	)

	DatasetLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "histview_dataset_load_duration_seconds",
			Help:    "Time to materialize and normalize the raw snapshot",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"source"},
	)

	// Query Metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_queries_total",
			Help: "Total number of analytics queries",
		},
		[]string{"query", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "histview_query_duration_seconds",
			Help:    "Analytics query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// Export Metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_exports_total",
			Help: "Total number of CSV exports",
		},
		[]string{"export", "status"},
	)

	ExportBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_export_bytes_total",
			Help: "Total bytes of CSV exported",
		},
		[]string{"export"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_storage_operations_total",
			Help: "Total number of export-store operations",
		},
		[]string{"operation", "status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histview_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordDatasetLoad records a snapshot materialization
func RecordDatasetLoad(source string, rows, malformed int, duration float64) {
	DatasetRowsLoaded.WithLabelValues(source).Set(float64(rows))
	DatasetMalformedRows.WithLabelValues(source).Set(float64(malformed))
	DatasetLoadDuration.WithLabelValues(source).Observe(duration)
}

// RecordQuery records an analytics query
func RecordQuery(query, status string, duration float64) {
	QueriesTotal.WithLabelValues(query, status).Inc()
	QueryDuration.WithLabelValues(query).Observe(duration)
}

// RecordExport records a CSV export
func RecordExport(export, status string, sizeBytes int) {
	ExportsTotal.WithLabelValues(export, status).Inc()
	if sizeBytes > 0 {
		ExportBytes.WithLabelValues(export).Add(float64(sizeBytes))
	}
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordStorageOperation records an export-store operation
func RecordStorageOperation(operation, status string) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
