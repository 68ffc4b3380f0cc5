// Package handlers provides the admin HTTP API for media migration.
//
// It includes handlers for:
//   - Run control: start, pause, single batch, error reset and stale reclaim
//   - Status snapshots and recent item errors
//   - Discovery scans
//   - Health, liveness and version probes
//
// Every /api route requires the admin bearer token; see AuthMiddleware.
package handlers
