package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const metaColumns = `
	id, tenant_id, total_photos, processed_photos, pending_photos, error_photos,
	status, error_message, batch_size, concurrency, target_quality, max_width,
	started_at, paused_at, completed_at, last_updated_at`

func scanMeta(row rowScanner) (*MigrationMeta, error) {
	var m MigrationMeta
	var status string
	var errMsg sql.NullString
	var startedAt, pausedAt, completedAt sql.NullInt64
	var lastUpdated int64

	err := row.Scan(
		&m.ID, &m.TenantID, &m.TotalPhotos, &m.ProcessedPhotos, &m.PendingPhotos, &m.ErrorPhotos,
		&status, &errMsg, &m.Config.BatchSize, &m.Config.Concurrency, &m.Config.TargetQuality, &m.Config.MaxWidth,
		&startedAt, &pausedAt, &completedAt, &lastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Status = RunStatus(status)
	m.ErrorMessage = errMsg.String
	m.StartedAt = timePtr(startedAt)
	m.PausedAt = timePtr(pausedAt)
	m.CompletedAt = timePtr(completedAt)
	m.LastUpdatedAt = time.Unix(lastUpdated, 0)
	return &m, nil
}

func mergeRunConfig(base, overrides RunConfig) RunConfig {
	if overrides.BatchSize > 0 {
		base.BatchSize = overrides.BatchSize
	}
	if overrides.Concurrency > 0 {
		base.Concurrency = overrides.Concurrency
	}
	if overrides.TargetQuality > 0 {
		base.TargetQuality = overrides.TargetQuality
	}
	if overrides.MaxWidth > 0 {
		base.MaxWidth = overrides.MaxWidth
	}
	return base
}

// GetMeta returns the run record of a tenant, or ErrNotFound.
func (d *Database) GetMeta(ctx context.Context, tenantID string) (*MigrationMeta, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_meta", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m, err := scanMeta(d.db.QueryRowContext(ctx, "SELECT "+metaColumns+" FROM migration_meta WHERE tenant_id = ?", tenantID))
	if errors.Is(err, ErrNotFound) {
		err = nil
		return nil, ErrNotFound
	}
	return m, err
}

// GetMetaByID returns a run record by its id, or ErrNotFound.
func (d *Database) GetMetaByID(ctx context.Context, id int64) (*MigrationMeta, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_meta_by_id", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m, err := scanMeta(d.db.QueryRowContext(ctx, "SELECT "+metaColumns+" FROM migration_meta WHERE id = ?", id))
	if errors.Is(err, ErrNotFound) {
		err = nil
		return nil, ErrNotFound
	}
	return m, err
}

// GetOrCreateMeta returns the tenant's run record, creating it in idle state
// from live item counts when absent. Items already claimed count as pending.
func (d *Database) GetOrCreateMeta(ctx context.Context, tenantID string) (*MigrationMeta, error) {
	var m *MigrationMeta
	err := d.withTx(ctx, "get_or_create_meta", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		m, err = d.ensureMeta(ctx, tx, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Database) ensureMeta(ctx context.Context, tx *sql.Tx, tenantID string) (*MigrationMeta, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	m, err := scanMeta(tx.QueryRowContext(ctx, "SELECT "+metaColumns+" FROM migration_meta WHERE tenant_id = ?", tenantID))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	counts, err := countItems(ctx, tx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count items for %s: %w", tenantID, err)
	}
	cfg := d.defaults
	_, err = tx.ExecContext(ctx, `
		INSERT INTO migration_meta (
			tenant_id, total_photos, processed_photos, pending_photos, error_photos,
			status, batch_size, concurrency, target_quality, max_width, last_updated_at
		) VALUES (?, ?, ?, ?, ?, 'idle', ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO NOTHING
	`, tenantID, counts.Total(), counts.Done, counts.Pending+counts.Processing, counts.Error,
		cfg.BatchSize, cfg.Concurrency, cfg.TargetQuality, cfg.MaxWidth, d.nowUnix())
	if err != nil {
		return nil, fmt.Errorf("create meta for %s: %w", tenantID, err)
	}
	log.Debug("Created run record for tenant %s (%d eligible items)", tenantID, counts.Total())

	return scanMeta(tx.QueryRowContext(ctx, "SELECT "+metaColumns+" FROM migration_meta WHERE tenant_id = ?", tenantID))
}

// StartRun moves the tenant's run to running, applies non-zero config
// overrides and queues every never-queued eligible item as pending. The
// pending counter is raised by the number of items queued in the same
// transaction. Restarting a running run keeps its original startedAt.
func (d *Database) StartRun(ctx context.Context, tenantID string, overrides RunConfig) (*MigrationMeta, error) {
	var m *MigrationMeta
	err := d.withTx(ctx, "start_run", func(ctx context.Context, tx *sql.Tx) error {
		current, err := d.ensureMeta(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		queued, err := queueUnmigrated(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		cfg := mergeRunConfig(current.Config, overrides)
		now := d.nowUnix()
		_, err = tx.ExecContext(ctx, `
			UPDATE migration_meta
			SET status = 'running',
				started_at = CASE WHEN status = 'running' AND started_at IS NOT NULL THEN started_at ELSE ? END,
				paused_at = NULL,
				completed_at = NULL,
				error_message = NULL,
				batch_size = ?,
				concurrency = ?,
				target_quality = ?,
				max_width = ?,
				pending_photos = pending_photos + ?,
				last_updated_at = ?
			WHERE id = ?
		`, now, cfg.BatchSize, cfg.Concurrency, cfg.TargetQuality, cfg.MaxWidth, queued, now, current.ID)
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}

		m, err = scanMeta(tx.QueryRowContext(ctx, "SELECT "+metaColumns+" FROM migration_meta WHERE id = ?", current.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PauseRun marks the tenant's run paused. Batches already in flight finish.
func (d *Database) PauseRun(ctx context.Context, tenantID string) (*MigrationMeta, error) {
	var m *MigrationMeta
	err := d.withTx(ctx, "pause_run", func(ctx context.Context, tx *sql.Tx) error {
		current, err := d.ensureMeta(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		now := d.nowUnix()
		if _, err := tx.ExecContext(ctx, `
			UPDATE migration_meta
			SET status = 'paused', paused_at = ?, last_updated_at = ?
			WHERE id = ?
		`, now, now, current.ID); err != nil {
			return err
		}
		m, err = scanMeta(tx.QueryRowContext(ctx, "SELECT "+metaColumns+" FROM migration_meta WHERE id = ?", current.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CompleteRun marks a run completed.
func (d *Database) CompleteRun(ctx context.Context, id int64) error {
	return d.execMeta(ctx, "complete_run", `
		UPDATE migration_meta
		SET status = 'completed', completed_at = ?, last_updated_at = ?
		WHERE id = ?
	`, d.nowUnix(), d.nowUnix(), id)
}

// FailRun marks a run errored with a truncated message.
func (d *Database) FailRun(ctx context.Context, id int64, message string) error {
	return d.execMeta(ctx, "fail_run", `
		UPDATE migration_meta
		SET status = 'error', error_message = ?, last_updated_at = ?
		WHERE id = ?
	`, TruncateError(message), d.nowUnix(), id)
}

// ApplyProgress adds a batch's outcomes to the run counters in a single
// statement. pending_photos never drops below zero.
func (d *Database) ApplyProgress(ctx context.Context, id int64, processedDelta, errorDelta int) error {
	return d.execMeta(ctx, "apply_progress", `
		UPDATE migration_meta
		SET processed_photos = processed_photos + ?,
			error_photos = error_photos + ?,
			pending_photos = MAX(0, pending_photos - ? - ?),
			last_updated_at = ?
		WHERE id = ?
	`, processedDelta, errorDelta, processedDelta, errorDelta, d.nowUnix(), id)
}

func (d *Database) execMeta(ctx context.Context, operation, query string, args ...any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	err = requireRow(res)
	return err
}

// ListRunningTenants returns tenants whose run is in running state.
func (d *Database) ListRunningTenants(ctx context.Context) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_running", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT tenant_id FROM migration_meta WHERE status = 'running' ORDER BY tenant_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	err = rows.Err()
	return tenants, err
}

// Status returns a read-only snapshot combining live item counts with the
// stored run state. It never creates a run record. With an empty tenantID
// the counts span every tenant and the state is rolled up across runs.
func (d *Database) Status(ctx context.Context, tenantID string) (*StatusSnapshot, error) {
	counts, err := d.CountItems(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	snap := &StatusSnapshot{
		TenantID:        tenantID,
		TotalPhotos:     counts.Total(),
		ProcessedPhotos: counts.Done,
		PendingPhotos:   counts.Pending + counts.Processing,
		ErrorPhotos:     counts.Error,
		NeverQueued:     counts.None,
		Status:          RunIdle,
	}

	if tenantID == "" {
		metas, err := d.ListMetas(ctx)
		if err != nil {
			return nil, fmt.Errorf("list metas: %w", err)
		}
		rollUp(snap, metas)
		return snap, nil
	}

	m, err := d.GetMeta(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get meta: %w", err)
	}
	snap.Status = m.Status
	snap.ErrorMessage = m.ErrorMessage
	snap.StartedAt = m.StartedAt
	snap.CompletedAt = m.CompletedAt
	lastUpdated := m.LastUpdatedAt
	snap.LastUpdatedAt = &lastUpdated
	return snap, nil
}

// ListMetas returns every run record ordered by tenant.
func (d *Database) ListMetas(ctx context.Context) ([]MigrationMeta, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_metas", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT "+metaColumns+" FROM migration_meta ORDER BY tenant_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []MigrationMeta
	for rows.Next() {
		var m *MigrationMeta
		if m, err = scanMeta(rows); err != nil {
			return nil, err
		}
		metas = append(metas, *m)
	}
	err = rows.Err()
	return metas, err
}

// rollUp folds per-tenant run states into one: running wins, then error,
// then paused; completed only when every run completed.
func rollUp(snap *StatusSnapshot, metas []MigrationMeta) {
	if len(metas) == 0 {
		return
	}
	seen := map[RunStatus]int{}
	for i := range metas {
		m := &metas[i]
		seen[m.Status]++
		if m.StartedAt != nil && (snap.StartedAt == nil || m.StartedAt.Before(*snap.StartedAt)) {
			snap.StartedAt = m.StartedAt
		}
		if snap.LastUpdatedAt == nil || m.LastUpdatedAt.After(*snap.LastUpdatedAt) {
			lastUpdated := m.LastUpdatedAt
			snap.LastUpdatedAt = &lastUpdated
		}
		if m.CompletedAt != nil && (snap.CompletedAt == nil || m.CompletedAt.After(*snap.CompletedAt)) {
			snap.CompletedAt = m.CompletedAt
		}
	}
	switch {
	case seen[RunRunning] > 0:
		snap.Status = RunRunning
	case seen[RunError] > 0:
		snap.Status = RunError
	case seen[RunPaused] > 0:
		snap.Status = RunPaused
	case seen[RunCompleted] == len(metas):
		snap.Status = RunCompleted
	default:
		snap.Status = RunIdle
	}
	if snap.Status != RunCompleted {
		snap.CompletedAt = nil
	}
}
