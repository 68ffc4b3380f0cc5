package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_migrator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_migrator_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_migrator_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"}, // "commit" or "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Migration metrics
var (
	MigrationItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_items_processed_total",
			Help: "Total number of media items processed by outcome",
		},
		[]string{"status"}, // "done" or "error"
	)

	MigrationItemErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_item_errors_total",
			Help: "Total number of item failures by pipeline stage",
		},
		[]string{"stage"}, // "download", "transform", "upload", "persist"
	)

	MigrationStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_migrator_item_stage_duration_seconds",
			Help:    "Duration of each item pipeline stage in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	MigrationBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_bytes_total",
			Help: "Bytes read from the source and written to canonical storage",
		},
		[]string{"direction"}, // "in" or "out"
	)

	MigrationBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_batches_total",
			Help: "Total number of batch invocations by outcome",
		},
		[]string{"outcome"}, // "processed", "skipped", "completed", "fatal"
	)

	MigrationBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_migrator_batch_duration_seconds",
			Help:    "Duration of a batch invocation in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	MigrationItemsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_items_in_flight",
			Help: "Number of items currently being processed",
		},
	)

	MigrationWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_batch_workers",
			Help: "Number of workers used by the most recent batch",
		},
	)
)

// Discovery metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_scan_runs_total",
			Help: "Total number of discovery scans",
		},
		[]string{"status"},
	)

	ScanRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_migrator_scan_rows_total",
			Help: "Total number of source rows scanned",
		},
	)

	ScanItemsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_migrator_scan_items_queued_total",
			Help: "Total number of media items queued by discovery",
		},
	)

	ScanRowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_scan_row_errors_total",
			Help: "Total number of rows skipped by discovery, by reason",
		},
		[]string{"reason"},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_scan_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan",
		},
	)
)

// Source and storage collaborator metrics
var (
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_source_requests_total",
			Help: "Requests made to the external source by operation and status",
		},
		[]string{"operation", "status"},
	)

	SourceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_source_retries_total",
			Help: "Retried source requests by operation",
		},
		[]string{"operation"},
	)

	StorageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_storage_uploads_total",
			Help: "Uploads to canonical storage by backend and status",
		},
		[]string{"backend", "status"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale NFS file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_migrator_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_memory_paused",
			Help: "1 while item processing is held back for memory",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_migrator_memory_pauses_total",
			Help: "Number of times item processing was held back for memory",
		},
	)
)

// Backlog metrics, refreshed by the Collector
var (
	MigrationItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_migrator_items",
			Help: "Eligible media items by migration status",
		},
		[]string{"status"},
	)

	RunningTenants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_migrator_running_tenants",
			Help: "Tenants whose migration run is running",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_migrator_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// StatusLabel maps an error to the "success"/"error" label used across counters.
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// InitializeMetrics pre-populates the expected label combinations so every
// series is exported from the first scrape.
func InitializeMetrics() {
	for _, status := range []string{"done", "error"} {
		MigrationItemsTotal.WithLabelValues(status)
	}
	for _, stage := range []string{"download", "transform", "upload", "persist"} {
		MigrationItemErrors.WithLabelValues(stage)
		MigrationStageDuration.WithLabelValues(stage)
	}
	for _, outcome := range []string{"processed", "skipped", "completed", "fatal"} {
		MigrationBatchesTotal.WithLabelValues(outcome)
	}
	for _, dir := range []string{"in", "out"} {
		MigrationBytesTotal.WithLabelValues(dir)
	}
	for _, status := range []string{"success", "error"} {
		ScanRunsTotal.WithLabelValues(status)
	}
	for _, reason := range []string{"missing_key", "unknown_unit", "malformed_reference", "missing_reference", "resolution", "persist"} {
		ScanRowErrors.WithLabelValues(reason)
	}
}
