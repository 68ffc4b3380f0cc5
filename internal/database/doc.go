// Package database provides SQLite persistence for the media migration
// pipeline.
//
// It owns four tables:
//   - units: the rental units photos belong to, each scoped to a tenant (agency)
//   - media_items: one row per externally sourced photo, carrying its
//     migration status and, once migrated, its canonical storage location
//   - migration_meta: per-tenant run state and aggregate counters
//   - migration_log: an append-only record of every processing attempt
//
// A small key/value metadata table records bookkeeping such as the last
// discovery scan.
//
// Claiming and counter updates run inside IMMEDIATE transactions or as single
// UPDATE statements, so concurrent batches never hand out the same item and
// never lose a counter increment. The database uses WAL mode and creates its
// schema on open.
package database
