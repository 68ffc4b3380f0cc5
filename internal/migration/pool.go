package migration

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"media-migrator/internal/database"
	"media-migrator/internal/media"
	"media-migrator/internal/metrics"
	"media-migrator/internal/storage"
)

// outcome is the tagged result of processing one item.
type outcome struct {
	item    database.MediaItem
	result  *media.Result
	object  *storage.Object
	err     error
	elapsed time.Duration

	// status is the state actually persisted for the item. It stays empty
	// when neither outcome could be written.
	status database.MigrationStatus
}

type processFunc func(context.Context, database.MediaItem) outcome

type settleFunc func(context.Context, outcome) outcome

type job struct {
	index int
	item  database.MediaItem
}

type jobResult struct {
	index int
	out   outcome
}

// runPool runs process then settle for every item with at most numWorkers
// items in flight, and returns one outcome per item in input order. A
// failing or panicking item never affects its siblings.
func runPool(ctx context.Context, items []database.MediaItem, numWorkers int, process processFunc, settle settleFunc) []outcome {
	if len(items) == 0 {
		return nil
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan job, len(items))
	results := make(chan jobResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log.Debug("Worker %d started", id)
			for j := range jobs {
				out := safeProcess(ctx, j.item, process)
				results <- jobResult{index: j.index, out: settle(ctx, out)}
			}
			log.Debug("Worker %d finished", id)
		}(i)
	}

	for i, it := range items {
		jobs <- job{index: i, item: it}
	}
	close(jobs)

	wg.Wait()
	close(results)

	outcomes := make([]outcome, len(items))
	for r := range results {
		outcomes[r.index] = r.out
	}
	return outcomes
}

func safeProcess(ctx context.Context, item database.MediaItem, process processFunc) (out outcome) {
	metrics.MigrationItemsInFlight.Inc()
	defer metrics.MigrationItemsInFlight.Dec()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic processing item %s: %v\n%s", item.ID, r, debug.Stack())
			out = outcome{
				item:    item,
				err:     &ItemError{ItemID: item.ID, Stage: StageInternal, Err: fmt.Errorf("panic: %v", r)},
				elapsed: time.Since(start),
			}
		}
	}()
	return process(ctx, item)
}
