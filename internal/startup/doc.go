// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - DATABASE_DIR: SQLite directory (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED: HTTP listeners (8080, 9090, true)
//   - ADMIN_TOKEN: bearer token for /api routes; unset disables the API
//   - MIGRATION_BATCH_SIZE, MIGRATION_CONCURRENCY, MIGRATION_QUALITY,
//     MIGRATION_MAX_WIDTH: defaults for new runs (20, 3, 82, 1920);
//     MIGRATION_CONCURRENCY=auto sizes the pool from GOMAXPROCS
//   - MIGRATION_WORKERS: hard cap on any batch's pool size
//   - MIGRATION_INTERVAL: batch driver tick (default: 1m, 0 disables)
//   - SCAN_INTERVAL: discovery scan interval (default: 6h, 0 disables)
//   - SCAN_SPREADSHEET_ID, SCAN_RANGE, SCAN_UNIT_COLUMN, SCAN_FOLDER_COLUMN,
//     SCAN_MAX_PER_UNIT: the unit catalogue
//   - GOOGLE_CREDENTIALS_FILE, SOURCE_RATE_LIMIT, SOURCE_MAX_RETRIES: Google APIs
//   - STORAGE_BACKEND (local|s3), STORAGE_LOCAL_DIR, STORAGE_PUBLIC_URL,
//     S3_BUCKET, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_PREFIX
//   - VIPS_ENABLED: prefer libvips when available (default: true)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// Out-of-range numbers log a warning and fall back to their defaults.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
