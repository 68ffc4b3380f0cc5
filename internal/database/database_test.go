package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-migrator/internal/metrics"
)

// setupTestDB creates a database in a temporary directory.
func setupTestDB(t testing.TB) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUnit inserts a unit owned by tenant.
func seedUnit(t testing.TB, db *Database, id, tenant string) {
	t.Helper()
	if err := db.UpsertUnit(context.Background(), Unit{ID: id, AgencyID: tenant, ExternalRef: "REF-" + id}); err != nil {
		t.Fatalf("UpsertUnit(%s) failed: %v", id, err)
	}
}

// seedItems inserts n sourced items under unit and moves them to status.
// It returns their ids.
func seedItems(t testing.TB, db *Database, unit string, n int, status MigrationStatus) []string {
	t.Helper()

	initial := StatusPending
	if status == StatusNone {
		initial = StatusNone
	}

	items := make([]MediaItem, n)
	ids := make([]string, n)
	for i := range items {
		ids[i] = fmt.Sprintf("%s-%s-%d", unit, status, i)
		items[i] = MediaItem{
			ID:              ids[i],
			ParentID:        unit,
			SourceFileID:    "file-" + ids[i],
			SourceName:      ids[i] + ".jpg",
			Position:        i,
			MigrationStatus: initial,
		}
	}
	if _, err := db.EnqueueItems(context.Background(), items); err != nil {
		t.Fatalf("EnqueueItems failed: %v", err)
	}

	if status == initial {
		return ids
	}
	for _, id := range ids {
		var msg any
		if status == StatusError {
			msg = "seeded failure"
		}
		if _, err := db.db.Exec(
			"UPDATE media_items SET migration_status = ?, migration_error = ? WHERE id = ?",
			string(status), msg, id,
		); err != nil {
			t.Fatalf("force status of %s failed: %v", id, err)
		}
	}
	return ids
}

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	for _, table := range []string{"units", "media_items", "migration_meta", "migration_log", "metadata"} {
		var n int
		err := db.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestNewDatabaseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	seedUnit(t, db, "u1", "agency-a")
	db.Close()

	db, err = New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	if _, err := db.GetUnit(context.Background(), "u1"); err != nil {
		t.Errorf("unit lost after reopen: %v", err)
	}
}

func TestNewDatabaseMissingDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "test.db")
	if _, err := New(context.Background(), dbPath); err == nil {
		t.Error("New() with missing directory should fail")
	}
}

func TestTruncateError(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "boom", 4},
		{"exact", strings.Repeat("x", MaxErrorLength), MaxErrorLength},
		{"long", strings.Repeat("x", 5000), MaxErrorLength},
		{"multibyte", strings.Repeat("é", 1500), MaxErrorLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateError(tt.in)
			if n := len([]rune(got)); n != tt.want {
				t.Errorf("TruncateError() rune length = %d, want %d", n, tt.want)
			}
			if !strings.HasPrefix(tt.in, got) {
				t.Error("TruncateError() result is not a prefix of the input")
			}
		})
	}
}

func TestRecordQuery(t *testing.T) {
	before := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("test_op", "error"))
	recordQuery("test_op", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("test_op", "error"))

	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}

	before = testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("test_op", "success"))
	recordQuery("test_op", time.Now(), nil)
	after = testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("test_op", "success"))

	if after-before != 1 {
		t.Errorf("success counter delta = %v, want 1", after-before)
	}
}

func TestEndBatchRollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tx, start, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch failed: %v", err)
	}
	if _, err := tx.Exec("INSERT INTO units (id, agency_id) VALUES ('u1', 'a')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sentinel := errors.New("abort")
	if err := db.EndBatch(tx, start, sentinel); !errors.Is(err, sentinel) {
		t.Fatalf("EndBatch() = %v, want sentinel", err)
	}
	if _, err := db.GetUnit(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUnit after rollback = %v, want ErrNotFound", err)
	}
}

func TestSetDefaultRunConfig(t *testing.T) {
	db := setupTestDB(t)

	db.SetDefaultRunConfig(RunConfig{BatchSize: 50, MaxWidth: 1280})
	got := db.DefaultConfig()

	want := RunConfig{BatchSize: 50, Concurrency: 3, TargetQuality: 82, MaxWidth: 1280}
	if got != want {
		t.Errorf("DefaultConfig() = %+v, want %+v", got, want)
	}
}

func TestMetadataLastScanRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	got, err := db.GetLastScanRun(ctx)
	if err != nil {
		t.Fatalf("GetLastScanRun failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("GetLastScanRun() = %v, want zero", got)
	}

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := db.SetLastScanRun(ctx, when); err != nil {
		t.Fatalf("SetLastScanRun failed: %v", err)
	}
	got, err = db.GetLastScanRun(ctx)
	if err != nil {
		t.Fatalf("GetLastScanRun failed: %v", err)
	}
	if !got.Equal(when) {
		t.Errorf("GetLastScanRun() = %v, want %v", got, when)
	}
}

func TestUnits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUnit(ctx, Unit{ID: "u1", AgencyID: "a", ExternalRef: "APT-7", Name: "Flat 7"}); err != nil {
		t.Fatalf("UpsertUnit failed: %v", err)
	}
	seedUnit(t, db, "u2", "b")

	u, err := db.GetUnitByExternalRef(ctx, "APT-7")
	if err != nil {
		t.Fatalf("GetUnitByExternalRef failed: %v", err)
	}
	if u.ID != "u1" || u.Name != "Flat 7" || u.AgencyID != "a" {
		t.Errorf("unexpected unit %+v", u)
	}

	if u, err := db.GetUnitByExternalRef(ctx, "u2"); err != nil || u.ID != "u2" {
		t.Errorf("lookup by id fallback = %+v, %v", u, err)
	}
	if _, err := db.GetUnitByExternalRef(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ref error = %v, want ErrNotFound", err)
	}

	tenants, err := db.ListTenants(ctx)
	if err != nil {
		t.Fatalf("ListTenants failed: %v", err)
	}
	if len(tenants) != 2 || tenants[0] != "a" || tenants[1] != "b" {
		t.Errorf("ListTenants() = %v", tenants)
	}
}
