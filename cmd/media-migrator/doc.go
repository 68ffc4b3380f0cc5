// Package main provides the entry point for the media migrator service.
//
// The media migrator copies externally hosted property photographs into
// object storage. Each item is downloaded from its source folder, oriented,
// downscaled and re-encoded as JPEG, uploaded, and recorded against its
// tenant's migration run.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration Loading: Reads environment variables and checks directories
//  3. Database Initialization: Opens the SQLite store and applies the schema
//  4. Component Initialization:
//     - Image Transform: libvips when available, pure Go otherwise
//     - File Source: Google Drive client with rate limiting and retries
//     - Object Storage: local directory or S3-compatible bucket
//     - Memory Monitor: holds new items back while the heap is near its limit
//     - Discovery Scanner: reads the catalogue spreadsheet (if configured)
//     - Scheduler: runs batches for running tenants and periodic scans
//     - Metrics Collector: exports backlog gauges every minute
//  5. HTTP Server Setup: admin API, health checks and the metrics server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM and stops components in order
//
// # HTTP Server
//
// The main server (PORT, default 8080) exposes the admin API under /api,
// guarded by a bearer token (ADMIN_TOKEN), and unauthenticated /health,
// /healthz, /livez and /version endpoints.
//
// The metrics server (METRICS_PORT, default 9090) serves /metrics for
// Prometheus and a liveness endpoint at /health.
//
// # Graceful Shutdown
//
//  1. Stop accepting admin API requests
//  2. Stop the scheduler; in-flight batches finish their claimed items
//  3. Stop the metrics collector and memory monitor
//  4. Shut down the metrics server
//  5. Release libvips and close the database
//
// Steps share a 30 second deadline.
//
// See [media-migrator/internal/startup] for the full list of environment
// variables.
package main
