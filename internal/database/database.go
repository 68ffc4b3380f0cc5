package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-migrator/internal/logging"
	"media-migrator/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

var log = logging.With("database")

// Database manages the unit, media item, run metadata and log tables.
type Database struct {
	db       *sql.DB
	dbPath   string
	defaults RunConfig
	now      func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new Database instance.
// dbPath is the full path to the database FILE; its parent directory must
// already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	log.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		log.Warn("Database permission diagnostics: %v", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so two claimers
	// serialize instead of failing on lock upgrade.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:       db,
		dbPath:   dbPath,
		defaults: DefaultRunConfig(),
		now:      time.Now,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		external_ref TEXT UNIQUE,
		name TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_units_agency ON units(agency_id);

	CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		source_file_id TEXT,
		source_name TEXT,
		storage_url TEXT,
		storage_path TEXT,
		width INTEGER,
		height INTEGER,
		byte_size INTEGER,
		quality_version INTEGER NOT NULL DEFAULT 1,
		slot TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		migration_status TEXT NOT NULL DEFAULT 'none'
			CHECK (migration_status IN ('none', 'pending', 'processing', 'done', 'error')),
		migration_error TEXT,
		claimed_at INTEGER,
		migrated_at INTEGER,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(parent_id, source_file_id)
	);

	CREATE INDEX IF NOT EXISTS idx_media_items_parent ON media_items(parent_id);
	CREATE INDEX IF NOT EXISTS idx_media_items_status ON media_items(migration_status);

	CREATE TABLE IF NOT EXISTS migration_meta (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL UNIQUE,
		total_photos INTEGER NOT NULL DEFAULT 0,
		processed_photos INTEGER NOT NULL DEFAULT 0,
		pending_photos INTEGER NOT NULL DEFAULT 0,
		error_photos INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'idle'
			CHECK (status IN ('idle', 'running', 'paused', 'completed', 'error')),
		error_message TEXT,
		batch_size INTEGER NOT NULL,
		concurrency INTEGER NOT NULL,
		target_quality INTEGER NOT NULL,
		max_width INTEGER NOT NULL,
		started_at INTEGER,
		paused_at INTEGER,
		completed_at INTEGER,
		last_updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS migration_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration_meta_id INTEGER REFERENCES migration_meta(id) ON DELETE SET NULL,
		photo_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('done', 'error')),
		error_message TEXT,
		original_size INTEGER,
		processed_size INTEGER,
		original_dimensions TEXT,
		processed_dimensions TEXT,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		processed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_migration_log_photo ON migration_log(photo_id);
	CREATE INDEX IF NOT EXISTS idx_migration_log_meta_status ON migration_log(migration_meta_id, status);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// SetDefaultRunConfig sets the configuration used when a tenant's run
// record is first created. Zero fields fall back to DefaultRunConfig.
func (d *Database) SetDefaultRunConfig(cfg RunConfig) {
	d.defaults = mergeRunConfig(DefaultRunConfig(), cfg)
}

// DefaultConfig returns the configuration new run records start with.
func (d *Database) DefaultConfig() RunConfig {
	return d.defaults
}

// BeginBatch starts a transaction. The caller must call EndBatch.
func (d *Database) BeginBatch(ctx context.Context) (*sql.Tx, time.Time, error) {
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, start, err
	}
	return tx, start, nil
}

// EndBatch commits or rolls back a transaction depending on err.
func (d *Database) EndBatch(tx *sql.Tx, start time.Time, err error) error {
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		rbErr := tx.Rollback()
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// withTx runs fn inside a transaction and records it under operation.
func (d *Database) withTx(ctx context.Context, operation string, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	start := time.Now()
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, txStart, err := d.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", operation, err)
	}
	return d.EndBatch(tx, txStart, fn(ctx, tx))
}

// TruncateError shortens msg to at most MaxErrorLength runes.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorLength])
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	metrics.DBQueryTotal.WithLabelValues(operation, metrics.StatusLabel(err)).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// Ping verifies the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

func (d *Database) nowUnix() int64 {
	return d.now().Unix()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	log.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			log.Warn("%s is read-only (mode %v), writes will fail", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				log.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			}
		}
	}

	return nil
}
