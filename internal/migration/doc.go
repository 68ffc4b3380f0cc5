// Package migration moves externally hosted unit photos into canonical
// storage.
//
// A Worker runs one bounded batch per call: it claims up to the run's batch
// size of pending items, downloads, transforms and uploads them on a fixed
// pool of goroutines, records each outcome on the item and in the migration
// log, and then applies the batch's counts to the run in one statement.
// Item failures are isolated; store failures stop the batch and move the
// run to error.
//
// A Scanner reads the unit catalogue spreadsheet, resolves each unit's
// photo folder and queues its images. Units that already have source-backed
// items are skipped, so repeated scans are idempotent.
//
// Service wraps both behind the operations the admin API, scheduler and CLI
// use: Start, Pause, ResetErrors, ReclaimStale, Scan, RunBatch, RunUntilIdle
// and Status.
//
// Example:
//
//	worker := migration.NewWorker(db, drive, store, media.NewTransformer(true))
//	svc := migration.NewService(db, worker, scanner)
//	if _, err := svc.Start(ctx, "agency-1", database.RunConfig{}); err != nil {
//	    return err
//	}
//	res, err := svc.RunUntilIdle(ctx, "agency-1")
package migration
