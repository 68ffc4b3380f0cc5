package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-migrator/internal/database"
	"media-migrator/internal/logging"
	"media-migrator/internal/media"
	"media-migrator/internal/mediatypes"
	"media-migrator/internal/metrics"
	"media-migrator/internal/source"
	"media-migrator/internal/storage"
	"media-migrator/internal/workers"
)

var log = logging.With("worker")

// BatchResult summarizes one RunBatch invocation.
type BatchResult struct {
	TenantID  string        `json:"tenantId"`
	Skipped   bool          `json:"skipped,omitempty"`
	Completed bool          `json:"completed,omitempty"`
	Claimed   int           `json:"claimed"`
	Done      int           `json:"done"`
	Failed    int           `json:"failed"`
	Workers   int           `json:"workers"`
	Duration  time.Duration `json:"duration"`
}

// Worker processes one bounded batch of a tenant's items per call.
type Worker struct {
	db        *database.Database
	files     source.Files
	store     storage.Store
	transform media.Transformer
	gate      Gate
}

// Gate holds items back while the process is short on memory.
// *memory.Monitor implements it.
type Gate interface {
	Wait(ctx context.Context) error
}

// NewWorker creates a batch worker.
func NewWorker(db *database.Database, files source.Files, store storage.Store, transform media.Transformer) *Worker {
	return &Worker{db: db, files: files, store: store, transform: transform}
}

// SetGate makes every item wait on g before it is downloaded.
func (w *Worker) SetGate(g Gate) {
	w.gate = g
}

// RunBatch claims up to the run's batch size of items and processes them
// with the run's concurrency. It does nothing unless the tenant's run is
// running, and completes the run when nothing is left to claim. Item
// failures are recorded on the items; only store failures are returned,
// as *BatchFatalError, after moving the run to error.
//
// Once items are claimed the batch runs to completion even if ctx is
// canceled, so no claimed item is left without an outcome.
func (w *Worker) RunBatch(ctx context.Context, tenantID string) (*BatchResult, error) {
	start := time.Now()
	res := &BatchResult{TenantID: tenantID}
	defer func() {
		res.Duration = time.Since(start)
		metrics.MigrationBatchDuration.Observe(res.Duration.Seconds())
	}()

	meta, err := w.db.GetMeta(ctx, tenantID)
	if errors.Is(err, database.ErrNotFound) {
		res.Skipped = true
		metrics.MigrationBatchesTotal.WithLabelValues("skipped").Inc()
		return res, nil
	}
	if err != nil {
		metrics.MigrationBatchesTotal.WithLabelValues("fatal").Inc()
		return res, &BatchFatalError{TenantID: tenantID, Op: "read run", Err: err}
	}
	if meta.Status != database.RunRunning {
		log.Debug("Tenant %s run is %s, skipping batch", tenantID, meta.Status)
		res.Skipped = true
		metrics.MigrationBatchesTotal.WithLabelValues("skipped").Inc()
		return res, nil
	}

	items, err := w.db.ClaimBatch(ctx, tenantID, meta.Config.BatchSize)
	if err != nil {
		return res, w.fail(meta, "claim items", err)
	}
	res.Claimed = len(items)

	if len(items) == 0 {
		if err := w.db.CompleteRun(ctx, meta.ID); err != nil {
			return res, w.fail(meta, "complete run", err)
		}
		log.Info("Tenant %s migration completed", tenantID)
		res.Completed = true
		metrics.MigrationBatchesTotal.WithLabelValues("completed").Inc()
		return res, nil
	}

	// Claimed items must reach an outcome; cancellation is cooperative.
	ctx = context.WithoutCancel(ctx)

	opts := media.Options{MaxWidth: meta.Config.MaxWidth, Quality: meta.Config.TargetQuality}.Normalize()
	res.Workers = workers.Clamp(meta.Config.Concurrency, len(items))
	metrics.MigrationWorkers.Set(float64(res.Workers))

	log.Info("Tenant %s: processing %d items with %d workers", tenantID, len(items), res.Workers)

	process := func(ctx context.Context, item database.MediaItem) outcome {
		return w.process(ctx, item, opts)
	}
	settle := func(ctx context.Context, out outcome) outcome {
		return w.settle(ctx, meta.ID, out)
	}
	outcomes := runPool(ctx, items, res.Workers, process, settle)

	for _, out := range outcomes {
		switch out.status {
		case database.StatusDone:
			res.Done++
		case database.StatusError:
			res.Failed++
		}
	}

	if err := w.db.ApplyProgress(ctx, meta.ID, res.Done, res.Failed); err != nil {
		return res, w.fail(meta, "apply progress", err)
	}

	metrics.MigrationBatchesTotal.WithLabelValues("processed").Inc()
	log.Info("Tenant %s: batch finished, %d done, %d failed in %v",
		tenantID, res.Done, res.Failed, time.Since(start))
	return res, nil
}

// process downloads, transforms and uploads one item.
func (w *Worker) process(ctx context.Context, item database.MediaItem, opts media.Options) (out outcome) {
	start := time.Now()
	out.item = item
	defer func() { out.elapsed = time.Since(start) }()

	if w.gate != nil {
		if err := w.gate.Wait(ctx); err != nil {
			out.err = &ItemError{ItemID: item.ID, Stage: StageInternal, Err: err}
			return out
		}
	}

	var data []byte
	err := timeStage(StageDownload, func() error {
		var err error
		data, err = w.files.Download(ctx, item.SourceFileID)
		return err
	})
	if err != nil {
		out.err = &ItemError{ItemID: item.ID, Stage: StageDownload, Err: err}
		return out
	}
	metrics.MigrationBytesTotal.WithLabelValues("in").Add(float64(len(data)))

	err = timeStage(StageTransform, func() error {
		var err error
		out.result, err = w.transform.Transform(data, opts)
		return err
	})
	if err != nil {
		out.err = &ItemError{ItemID: item.ID, Stage: StageTransform, Err: err}
		return out
	}

	err = timeStage(StageUpload, func() error {
		var err error
		out.object, err = w.store.Put(ctx, storage.Key(item.ParentID, item.ID), out.result.Data, mediatypes.OutputFormat.ContentType())
		return err
	})
	if err != nil {
		out.err = &ItemError{ItemID: item.ID, Stage: StageUpload, Err: err}
		return out
	}
	metrics.MigrationBytesTotal.WithLabelValues("out").Add(float64(len(out.result.Data)))
	return out
}

// settle writes the item outcome and its log entry. out.status reports what
// was persisted so the progress update matches the item rows.
func (w *Worker) settle(ctx context.Context, metaID int64, out outcome) outcome {
	start := time.Now()
	defer func() {
		metrics.MigrationStageDuration.WithLabelValues(string(StagePersist)).Observe(time.Since(start).Seconds())
	}()

	if out.err == nil {
		err := w.db.MarkDone(ctx, out.item.ID, database.ItemOutput{
			StorageURL:  out.object.URL,
			StoragePath: out.object.Path,
			Width:       out.result.Width,
			Height:      out.result.Height,
			ByteSize:    out.result.Size,
		})
		if err == nil {
			out.status = database.StatusDone
			metrics.MigrationItemsTotal.WithLabelValues("done").Inc()
			w.appendLog(ctx, metaID, out)
			return out
		}
		out.err = &ItemError{ItemID: out.item.ID, Stage: StagePersist, Err: err}
	}

	var itemErr *ItemError
	stage := StageInternal
	if errors.As(out.err, &itemErr) {
		stage = itemErr.Stage
	}
	metrics.MigrationItemErrors.WithLabelValues(string(stage)).Inc()
	log.Warn("Item %s: %v", out.item.ID, out.err)

	if err := w.db.MarkError(ctx, out.item.ID, out.err.Error()); err != nil {
		// The item stays in processing until reclaimed.
		log.Error("Item %s: failed to record error: %v", out.item.ID, err)
		return out
	}
	out.status = database.StatusError
	metrics.MigrationItemsTotal.WithLabelValues("error").Inc()
	w.appendLog(ctx, metaID, out)
	return out
}

func (w *Worker) appendLog(ctx context.Context, metaID int64, out outcome) {
	entry := &database.MigrationLog{
		MigrationMetaID:  &metaID,
		PhotoID:          out.item.ID,
		Status:           out.status,
		ProcessingTimeMs: out.elapsed.Milliseconds(),
	}
	if out.result != nil {
		entry.OriginalSize = out.result.OriginalSize
		entry.ProcessedSize = out.result.Size
		entry.OriginalDimensions = out.result.OriginalDimensions()
		entry.ProcessedDimensions = out.result.ProcessedDimensions()
	}
	if out.err != nil {
		entry.ErrorMessage = out.err.Error()
	}
	if err := w.db.AppendLog(ctx, entry); err != nil {
		log.Warn("Item %s: failed to append migration log: %v", out.item.ID, err)
	}
}

// fail moves the run to error and wraps err as a BatchFatalError.
func (w *Worker) fail(meta *database.MigrationMeta, op string, err error) error {
	metrics.MigrationBatchesTotal.WithLabelValues("fatal").Inc()
	fatal := &BatchFatalError{TenantID: meta.TenantID, Op: op, Err: err}
	log.Error("%v", fatal)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if failErr := w.db.FailRun(ctx, meta.ID, fatal.Error()); failErr != nil {
		log.Error("Tenant %s: failed to mark run as errored: %v", meta.TenantID, failErr)
		return errors.Join(fatal, fmt.Errorf("mark run failed: %w", failErr))
	}
	return fatal
}

func timeStage(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.MigrationStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return err
}
