// Command migrationctl controls media migration runs directly against the
// migrator's SQLite database, without going through the admin API.
//
// Usage:
//
//	migrationctl <command> [args]
//
// Commands:
//
//	status [tenant...]        Run status per tenant plus a roll-up.
//	start [flags] <tenant>    Start or resume a run. Flags -batch,
//	                          -concurrency, -quality and -max-width
//	                          override the run's defaults.
//	pause <tenant>            Pause a run; an in-flight batch finishes.
//	reset-errors [tenant]     Requeue failed items of one or all tenants.
//	reclaim <duration>        Requeue items stuck in processing for
//	                          longer than duration, e.g. after a crash.
//	errors <tenant> [limit]   Most recent failed attempts.
//
// Output is an aligned table on a terminal and tab-separated values when
// piped.
//
// Environment:
//
//	DATABASE_DIR - Path to database directory (default: /database)
package main
