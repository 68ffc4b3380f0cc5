/*
Package metrics defines the Prometheus metrics exported by the media migrator.

All collectors are registered with the default registry through promauto, so
importing the package is enough to expose them on the /metrics endpoint served
by promhttp.

# Metric families

  - media_migrator_http_*: admin API request counts, latency and in-flight gauge
  - media_migrator_db_*: query counts and latency per store operation
  - media_migrator_items_*, media_migrator_item_*: per-item outcomes and stage timings
  - media_migrator_batch*: batch invocations by outcome and their duration
  - media_migrator_scan_*: discovery rows, queued items and skipped rows by reason
  - media_migrator_source_*, media_migrator_storage_*: collaborator traffic
  - media_migrator_items, media_migrator_running_tenants: backlog gauges
    refreshed by a Collector on an interval

Call InitializeMetrics once at startup so label combinations appear before the
first event is recorded.
*/
package metrics
