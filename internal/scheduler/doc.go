// Package scheduler drives migration runs in the background with a cron
// scheduler.
//
// Every batch interval it runs one batch for each tenant whose run is
// running. A tenant whose previous batch is still in flight is skipped for
// that tick, so slow batches never pile up. Every scan interval it runs a
// discovery scan. Stop waits for in-flight work before returning.
package scheduler
