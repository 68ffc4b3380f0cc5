package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = `
	m.id, m.parent_id, u.agency_id, m.source_file_id, m.source_name,
	m.storage_url, m.storage_path, m.width, m.height, m.byte_size,
	m.quality_version, m.slot, m.position, m.migration_status,
	m.migration_error, m.claimed_at, m.migrated_at`

const itemFrom = `FROM media_items m JOIN units u ON u.id = m.parent_id`

// tenantScope restricts media_items rows to one tenant; an empty tenant
// matches every row.
const tenantScope = `(? = '' OR parent_id IN (SELECT id FROM units WHERE agency_id = ?))`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (MediaItem, error) {
	var it MediaItem
	var sourceFileID, sourceName, url, path, slot, migErr sql.NullString
	var width, height, byteSize, claimedAt, migratedAt sql.NullInt64
	var status string
	err := row.Scan(
		&it.ID, &it.ParentID, &it.TenantID, &sourceFileID, &sourceName,
		&url, &path, &width, &height, &byteSize,
		&it.QualityVersion, &slot, &it.Position, &status,
		&migErr, &claimedAt, &migratedAt,
	)
	if err != nil {
		return it, err
	}
	it.SourceFileID = sourceFileID.String
	it.SourceName = sourceName.String
	it.StorageURL = url.String
	it.StoragePath = path.String
	it.Width = int(width.Int64)
	it.Height = int(height.Int64)
	it.ByteSize = byteSize.Int64
	it.Slot = slot.String
	it.MigrationStatus = MigrationStatus(status)
	it.MigrationError = migErr.String
	it.ClaimedAt = timePtr(claimedAt)
	it.MigratedAt = timePtr(migratedAt)
	return it, nil
}

func scanItems(rows *sql.Rows) ([]MediaItem, error) {
	defer rows.Close()
	var items []MediaItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem returns a single media item.
func (d *Database) GetItem(ctx context.Context, id string) (*MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_item", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	it, err := scanItem(d.db.QueryRowContext(ctx, "SELECT "+itemColumns+" "+itemFrom+" WHERE m.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ListUnitItems returns all items of a unit in slot order.
func (d *Database) ListUnitItems(ctx context.Context, unitID string) ([]MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_unit_items", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+itemColumns+" "+itemFrom+" WHERE m.parent_id = ? ORDER BY m.position, m.id", unitID)
	if err != nil {
		return nil, err
	}
	items, err := scanItems(rows)
	return items, err
}

// ListClaimable returns up to limit eligible items in status none or pending,
// oldest first. An empty tenantID lists across tenants.
func (d *Database) ListClaimable(ctx context.Context, tenantID string, limit int) ([]MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_claimable", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	items, err := listClaimable(ctx, d.db, tenantID, limit)
	return items, err
}

func listClaimable(ctx context.Context, q querier, tenantID string, limit int) ([]MediaItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+itemColumns+` `+itemFrom+`
		WHERE m.source_file_id IS NOT NULL
		  AND m.migration_status IN ('none', 'pending')
		  AND (? = '' OR u.agency_id = ?)
		ORDER BY m.created_at, m.parent_id, m.position, m.id
		LIMIT ?
	`, tenantID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

// Claim moves the given items to processing, but only those still in none
// or pending. It returns the ids actually claimed, so two concurrent callers
// never both receive the same id.
func (d *Database) Claim(ctx context.Context, ids []string) ([]string, error) {
	var claimed []string
	err := d.withTx(ctx, "claim", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		claimed, err = d.claim(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (d *Database) claim(ctx context.Context, q querier, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, d.nowUnix())
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx, `
		UPDATE media_items
		SET migration_status = 'processing', claimed_at = ?
		WHERE migration_status IN ('none', 'pending')
		  AND id IN (`+placeholders(len(ids))+`)
		RETURNING id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("claim items: %w", err)
	}
	defer rows.Close()

	var claimed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		claimed = append(claimed, id)
	}
	return claimed, rows.Err()
}

// ClaimBatch lists and claims up to limit items of a tenant in one
// transaction and returns the claimed items in processing state.
func (d *Database) ClaimBatch(ctx context.Context, tenantID string, limit int) ([]MediaItem, error) {
	var claimed []MediaItem
	err := d.withTx(ctx, "claim_batch", func(ctx context.Context, tx *sql.Tx) error {
		candidates, err := listClaimable(ctx, tx, tenantID, limit)
		if err != nil {
			return fmt.Errorf("list claimable: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]string, len(candidates))
		for i, it := range candidates {
			ids[i] = it.ID
		}
		got, err := d.claim(ctx, tx, ids)
		if err != nil {
			return err
		}

		won := make(map[string]bool, len(got))
		for _, id := range got {
			won[id] = true
		}
		now := time.Unix(d.nowUnix(), 0)
		queued := make(map[string]int64)
		for _, it := range candidates {
			if !won[it.ID] {
				continue
			}
			if it.MigrationStatus == StatusNone {
				queued[it.TenantID]++
			}
			it.MigrationStatus = StatusProcessing
			claimedAt := now
			it.ClaimedAt = &claimedAt
			claimed = append(claimed, it)
		}

		// Never-queued items claimed directly now count as pending.
		for tenant, n := range queued {
			if _, err := tx.ExecContext(ctx, `
				UPDATE migration_meta
				SET pending_photos = pending_photos + ?, last_updated_at = ?
				WHERE tenant_id = ?
			`, n, now.Unix(), tenant); err != nil {
				return fmt.Errorf("queue claimed items: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkDone records a successful migration on the item.
func (d *Database) MarkDone(ctx context.Context, id string, out ItemOutput) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_done", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE media_items
		SET migration_status = 'done',
			storage_url = ?,
			storage_path = ?,
			width = ?,
			height = ?,
			byte_size = ?,
			quality_version = ?,
			migration_error = NULL,
			migrated_at = ?
		WHERE id = ?
	`, out.StorageURL, out.StoragePath, out.Width, out.Height, out.ByteSize,
		CanonicalQualityVersion, d.nowUnix(), id)
	if err != nil {
		return err
	}
	err = requireRow(res)
	return err
}

// MarkError records a failed attempt with a truncated message.
func (d *Database) MarkError(ctx context.Context, id, message string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_error", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE media_items
		SET migration_status = 'error', migration_error = ?
		WHERE id = ?
	`, TruncateError(message), id)
	if err != nil {
		return err
	}
	err = requireRow(res)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetErrors moves every error item (optionally of one tenant) back to
// pending, clears its error and adjusts the affected run counters in the
// same transaction. It returns the number of items reset.
func (d *Database) ResetErrors(ctx context.Context, tenantID string) (int64, error) {
	var reset int64
	err := d.withTx(ctx, "reset_errors", func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT u.agency_id, COUNT(*)
			FROM media_items m JOIN units u ON u.id = m.parent_id
			WHERE m.migration_status = 'error' AND (? = '' OR u.agency_id = ?)
			GROUP BY u.agency_id
		`, tenantID, tenantID)
		if err != nil {
			return err
		}
		perTenant := map[string]int64{}
		for rows.Next() {
			var tenant string
			var n int64
			if err := rows.Scan(&tenant, &n); err != nil {
				rows.Close()
				return err
			}
			perTenant[tenant] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE media_items
			SET migration_status = 'pending', migration_error = NULL
			WHERE migration_status = 'error' AND `+tenantScope,
			tenantID, tenantID)
		if err != nil {
			return err
		}
		if reset, err = res.RowsAffected(); err != nil {
			return err
		}

		now := d.nowUnix()
		for tenant, n := range perTenant {
			if _, err := tx.ExecContext(ctx, `
				UPDATE migration_meta
				SET error_photos = MAX(0, error_photos - ?),
					pending_photos = pending_photos + ?,
					last_updated_at = ?
				WHERE tenant_id = ?
			`, n, n, now, tenant); err != nil {
				return fmt.Errorf("adjust counters for %s: %w", tenant, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// ReclaimStale returns items stuck in processing for longer than olderThan
// to pending. Run counters already count processing items as pending, so
// they are left unchanged.
func (d *Database) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("reclaim_stale", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cutoff := d.now().Add(-olderThan).Unix()
	res, err := d.db.ExecContext(ctx, `
		UPDATE media_items
		SET migration_status = 'pending', claimed_at = NULL
		WHERE migration_status = 'processing'
		  AND (claimed_at IS NULL OR claimed_at <= ?)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return n, err
}

// CountItems returns live per-status counts of eligible items.
// An empty tenantID counts across tenants.
func (d *Database) CountItems(ctx context.Context, tenantID string) (ItemCounts, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_items", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	counts, err := countItems(ctx, d.db, tenantID)
	return counts, err
}

func countItems(ctx context.Context, q querier, tenantID string) (ItemCounts, error) {
	var c ItemCounts
	rows, err := q.QueryContext(ctx, `
		SELECT migration_status, COUNT(*)
		FROM media_items
		WHERE source_file_id IS NOT NULL AND `+tenantScope+`
		GROUP BY migration_status
	`, tenantID, tenantID)
	if err != nil {
		return c, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return c, err
		}
		switch MigrationStatus(status) {
		case StatusNone:
			c.None = n
		case StatusPending:
			c.Pending = n
		case StatusProcessing:
			c.Processing = n
		case StatusDone:
			c.Done = n
		case StatusError:
			c.Error = n
		}
	}
	return c, rows.Err()
}

// UnitHasSourcedItems reports whether the unit already has any item with a
// source file reference.
func (d *Database) UnitHasSourcedItems(ctx context.Context, unitID string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("unit_has_sourced_items", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = d.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM media_items WHERE parent_id = ? AND source_file_id IS NOT NULL)
	`, unitID).Scan(&exists)
	return exists, err
}

// InsertIfAbsent inserts one item unless its (parent, source file) pair
// already exists, and reports whether it was inserted.
func (d *Database) InsertIfAbsent(ctx context.Context, item MediaItem) (bool, error) {
	n, err := d.EnqueueItems(ctx, []MediaItem{item})
	return n == 1, err
}

// QueueUnmigrated moves every never-queued eligible item of a tenant to
// pending and raises the run's pending counter to match. It returns the
// number of items queued.
func (d *Database) QueueUnmigrated(ctx context.Context, tenantID string) (int64, error) {
	var queued int64
	err := d.withTx(ctx, "queue_unmigrated", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		if queued, err = queueUnmigrated(ctx, tx, tenantID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE migration_meta
			SET pending_photos = pending_photos + ?, last_updated_at = ?
			WHERE tenant_id = ?
		`, queued, d.nowUnix(), tenantID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return queued, nil
}

func queueUnmigrated(ctx context.Context, q querier, tenantID string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE media_items
		SET migration_status = 'pending'
		WHERE migration_status = 'none' AND source_file_id IS NOT NULL AND `+tenantScope,
		tenantID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("queue items: %w", err)
	}
	return res.RowsAffected()
}

// EnqueueItems inserts discovered items, skipping any (parent, source file)
// pair that already exists. Inserted items are added to their tenant's run
// counters when a run record exists. It returns the number inserted.
func (d *Database) EnqueueItems(ctx context.Context, items []MediaItem) (int, error) {
	inserted := 0
	err := d.withTx(ctx, "enqueue_items", func(ctx context.Context, tx *sql.Tx) error {
		now := d.nowUnix()
		for _, it := range items {
			if it.ID == "" || it.ParentID == "" || it.SourceFileID == "" {
				return fmt.Errorf("enqueue item %q: id, parent and source file are required", it.ID)
			}
			status := it.MigrationStatus
			if status == "" {
				status = StatusPending
			}
			if status != StatusNone && status != StatusPending {
				return fmt.Errorf("enqueue item %s: invalid initial status %q", it.ID, status)
			}
			qv := it.QualityVersion
			if qv == 0 {
				qv = 1
			}

			res, err := tx.ExecContext(ctx, `
				INSERT INTO media_items (id, parent_id, source_file_id, source_name, slot, position, quality_version, migration_status, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(parent_id, source_file_id) DO NOTHING
			`, it.ID, it.ParentID, it.SourceFileID, nullString(it.SourceName), nullString(it.Slot),
				it.Position, qv, string(status), now)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			inserted++

			var pending int64
			if status == StatusPending {
				pending = 1
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE migration_meta
				SET total_photos = total_photos + 1,
					pending_photos = pending_photos + ?,
					last_updated_at = ?
				WHERE tenant_id = (SELECT agency_id FROM units WHERE id = ?)
			`, pending, now, it.ParentID); err != nil {
				return fmt.Errorf("bump counters for %s: %w", it.ParentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
