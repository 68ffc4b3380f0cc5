package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const logColumns = `
	l.id, l.migration_meta_id, l.photo_id, l.status, l.error_message,
	l.original_size, l.processed_size, l.original_dimensions,
	l.processed_dimensions, l.processing_time_ms, l.processed_at`

// AppendLog writes one processing attempt. ProcessedAt defaults to now.
func (d *Database) AppendLog(ctx context.Context, entry *MigrationLog) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("append_log", start, err) }()

	if entry.Status != StatusDone && entry.Status != StatusError {
		err = fmt.Errorf("invalid log status %q", entry.Status)
		return err
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Unix(d.nowUnix(), 0)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var metaID sql.NullInt64
	if entry.MigrationMetaID != nil {
		metaID = sql.NullInt64{Int64: *entry.MigrationMetaID, Valid: true}
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO migration_log (
			migration_meta_id, photo_id, status, error_message, original_size,
			processed_size, original_dimensions, processed_dimensions,
			processing_time_ms, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, metaID, entry.PhotoID, string(entry.Status), nullString(TruncateError(entry.ErrorMessage)),
		entry.OriginalSize, entry.ProcessedSize, nullString(entry.OriginalDimensions),
		nullString(entry.ProcessedDimensions), entry.ProcessingTimeMs, entry.ProcessedAt.Unix())
	if err != nil {
		return err
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// RecentErrors returns the newest error entries, optionally for one tenant.
func (d *Database) RecentErrors(ctx context.Context, tenantID string, limit int) ([]MigrationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryLogs(ctx, "recent_errors", `
		SELECT `+logColumns+`
		FROM migration_log l LEFT JOIN migration_meta mm ON mm.id = l.migration_meta_id
		WHERE l.status = 'error' AND (? = '' OR mm.tenant_id = ?)
		ORDER BY l.id DESC
		LIMIT ?
	`, tenantID, tenantID, limit)
}

// ItemLogs returns every attempt recorded for one item, oldest first.
func (d *Database) ItemLogs(ctx context.Context, photoID string) ([]MigrationLog, error) {
	return d.queryLogs(ctx, "item_logs", `
		SELECT `+logColumns+`
		FROM migration_log l
		WHERE l.photo_id = ?
		ORDER BY l.id
	`, photoID)
}

// CountLogs returns the number of entries recorded against a run.
func (d *Database) CountLogs(ctx context.Context, metaID int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_logs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migration_log WHERE migration_meta_id = ?", metaID).Scan(&n)
	return n, err
}

func (d *Database) queryLogs(ctx context.Context, operation, query string, args ...any) ([]MigrationLog, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []MigrationLog
	for rows.Next() {
		var l MigrationLog
		var metaID, origSize, procSize sql.NullInt64
		var errMsg, origDims, procDims sql.NullString
		var status string
		var processedAt int64
		if err = rows.Scan(&l.ID, &metaID, &l.PhotoID, &status, &errMsg, &origSize, &procSize,
			&origDims, &procDims, &l.ProcessingTimeMs, &processedAt); err != nil {
			return nil, err
		}
		if metaID.Valid {
			id := metaID.Int64
			l.MigrationMetaID = &id
		}
		l.Status = MigrationStatus(status)
		l.ErrorMessage = errMsg.String
		l.OriginalSize = origSize.Int64
		l.ProcessedSize = procSize.Int64
		l.OriginalDimensions = origDims.String
		l.ProcessedDimensions = procDims.String
		l.ProcessedAt = time.Unix(processedAt, 0)
		logs = append(logs, l)
	}
	err = rows.Err()
	return logs, err
}
