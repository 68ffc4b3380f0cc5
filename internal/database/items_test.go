package database

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEnqueueItemsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")

	items := []MediaItem{
		{ID: "i1", ParentID: "u1", SourceFileID: "f1"},
		{ID: "i2", ParentID: "u1", SourceFileID: "f2"},
	}
	n, err := db.EnqueueItems(ctx, items)
	if err != nil {
		t.Fatalf("EnqueueItems failed: %v", err)
	}
	if n != 2 {
		t.Errorf("first enqueue inserted %d, want 2", n)
	}

	// Same source files under new ids must not duplicate.
	again := []MediaItem{
		{ID: "i3", ParentID: "u1", SourceFileID: "f1"},
		{ID: "i4", ParentID: "u1", SourceFileID: "f2"},
	}
	n, err = db.EnqueueItems(ctx, again)
	if err != nil {
		t.Fatalf("second EnqueueItems failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second enqueue inserted %d, want 0", n)
	}

	it, err := db.GetItem(ctx, "i1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if it.MigrationStatus != StatusPending || it.TenantID != "a" || it.QualityVersion != 1 {
		t.Errorf("unexpected item %+v", it)
	}
}

func TestEnqueueItemsValidation(t *testing.T) {
	db := setupTestDB(t)
	seedUnit(t, db, "u1", "a")

	tests := []struct {
		name string
		item MediaItem
	}{
		{"missing source", MediaItem{ID: "i1", ParentID: "u1"}},
		{"missing parent", MediaItem{ID: "i1", SourceFileID: "f"}},
		{"bad status", MediaItem{ID: "i1", ParentID: "u1", SourceFileID: "f", MigrationStatus: StatusDone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.EnqueueItems(context.Background(), []MediaItem{tt.item}); err == nil {
				t.Error("EnqueueItems() should fail")
			}
		})
	}
}

func TestEnqueueItemsBumpsExistingMeta(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedItems(t, db, "u1", 2, StatusPending)

	m, err := db.GetOrCreateMeta(ctx, "a")
	if err != nil {
		t.Fatalf("GetOrCreateMeta failed: %v", err)
	}
	if m.TotalPhotos != 2 || m.PendingPhotos != 2 {
		t.Fatalf("initial counters total=%d pending=%d, want 2/2", m.TotalPhotos, m.PendingPhotos)
	}

	if _, err := db.EnqueueItems(ctx, []MediaItem{{ID: "x", ParentID: "u1", SourceFileID: "fx"}}); err != nil {
		t.Fatalf("EnqueueItems failed: %v", err)
	}
	m, _ = db.GetMeta(ctx, "a")
	if m.TotalPhotos != 3 || m.PendingPhotos != 3 {
		t.Errorf("counters after enqueue total=%d pending=%d, want 3/3", m.TotalPhotos, m.PendingPhotos)
	}
}

func TestListClaimableFiltersAndOrders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedUnit(t, db, "u2", "b")

	seedItems(t, db, "u1", 2, StatusNone)
	seedItems(t, db, "u1", 2, StatusPending)
	seedItems(t, db, "u1", 1, StatusDone)
	seedItems(t, db, "u1", 1, StatusError)
	seedItems(t, db, "u2", 3, StatusPending)

	// Manual upload without a source reference is never eligible.
	if _, err := db.db.Exec("INSERT INTO media_items (id, parent_id) VALUES ('manual', 'u1')"); err != nil {
		t.Fatalf("insert manual item failed: %v", err)
	}

	items, err := db.ListClaimable(ctx, "a", 10)
	if err != nil {
		t.Fatalf("ListClaimable failed: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("ListClaimable(a) returned %d items, want 4", len(items))
	}
	for _, it := range items {
		if it.TenantID != "a" || it.SourceFileID == "" {
			t.Errorf("unexpected claimable item %+v", it)
		}
	}

	all, err := db.ListClaimable(ctx, "", 100)
	if err != nil {
		t.Fatalf("ListClaimable(all) failed: %v", err)
	}
	if len(all) != 7 {
		t.Errorf("ListClaimable(all) returned %d items, want 7", len(all))
	}

	limited, _ := db.ListClaimable(ctx, "", 2)
	if len(limited) != 2 {
		t.Errorf("ListClaimable limit 2 returned %d", len(limited))
	}
}

func TestClaimOnlyClaimsUnclaimed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	pending := seedItems(t, db, "u1", 2, StatusPending)
	done := seedItems(t, db, "u1", 1, StatusDone)

	ids := append(append([]string{}, pending...), done...)
	got, err := db.Claim(ctx, ids)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Claim returned %v, want the 2 pending ids", got)
	}

	again, err := db.Claim(ctx, ids)
	if err != nil {
		t.Fatalf("second Claim failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second Claim returned %v, want none", again)
	}

	it, _ := db.GetItem(ctx, pending[0])
	if it.MigrationStatus != StatusProcessing || it.ClaimedAt == nil {
		t.Errorf("claimed item = %+v, want processing with claimedAt", it)
	}
}

func TestClaimBatchExclusiveUnderConcurrency(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedItems(t, db, "u1", 5, StatusPending)

	var wg sync.WaitGroup
	results := make([][]MediaItem, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = db.ClaimBatch(ctx, "a", 10)
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("ClaimBatch %d failed: %v", i, errs[i])
		}
		for _, it := range results[i] {
			seen[it.ID]++
			if it.MigrationStatus != StatusProcessing {
				t.Errorf("returned item %s has status %s", it.ID, it.MigrationStatus)
			}
		}
	}
	if len(seen) != 5 {
		t.Errorf("claimed %d distinct items, want 5", len(seen))
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("item %s claimed %d times", id, n)
		}
	}
}

func TestMarkDoneAndError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	ids := seedItems(t, db, "u1", 2, StatusPending)

	out := ItemOutput{StorageURL: "https://cdn/x.jpg", StoragePath: "units/u1/x.jpg", Width: 1920, Height: 1080, ByteSize: 12345}
	if err := db.MarkDone(ctx, ids[0], out); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	it, _ := db.GetItem(ctx, ids[0])
	if it.MigrationStatus != StatusDone || it.StorageURL != out.StorageURL || it.Width != 1920 ||
		it.ByteSize != 12345 || it.QualityVersion != CanonicalQualityVersion || it.MigratedAt == nil {
		t.Errorf("done item = %+v", it)
	}

	long := strings.Repeat("e", 5000)
	if err := db.MarkError(ctx, ids[1], long); err != nil {
		t.Fatalf("MarkError failed: %v", err)
	}
	it, _ = db.GetItem(ctx, ids[1])
	if it.MigrationStatus != StatusError {
		t.Errorf("status = %s, want error", it.MigrationStatus)
	}
	if n := len([]rune(it.MigrationError)); n != MaxErrorLength {
		t.Errorf("stored error length = %d, want %d", n, MaxErrorLength)
	}

	if err := db.MarkDone(ctx, "missing", out); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkDone(missing) = %v, want ErrNotFound", err)
	}
	if err := db.MarkError(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkError(missing) = %v, want ErrNotFound", err)
	}
}

func TestResetErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedUnit(t, db, "u2", "b")
	errA := seedItems(t, db, "u1", 3, StatusError)
	seedItems(t, db, "u2", 2, StatusError)
	seedItems(t, db, "u1", 1, StatusDone)

	if _, err := db.GetOrCreateMeta(ctx, "a"); err != nil {
		t.Fatalf("GetOrCreateMeta failed: %v", err)
	}

	n, err := db.ResetErrors(ctx, "a")
	if err != nil {
		t.Fatalf("ResetErrors failed: %v", err)
	}
	if n != 3 {
		t.Errorf("ResetErrors(a) = %d, want 3", n)
	}

	for _, id := range errA {
		it, _ := db.GetItem(ctx, id)
		if it.MigrationStatus != StatusPending || it.MigrationError != "" {
			t.Errorf("item %s = %s/%q, want pending with no error", id, it.MigrationStatus, it.MigrationError)
		}
	}
	var nullErrors int
	db.db.QueryRow("SELECT COUNT(*) FROM media_items WHERE parent_id = 'u1' AND migration_status = 'pending' AND migration_error IS NULL").Scan(&nullErrors)
	if nullErrors != 3 {
		t.Errorf("pending items with NULL error = %d, want 3", nullErrors)
	}

	m, _ := db.GetMeta(ctx, "a")
	if m.ErrorPhotos != 0 || m.PendingPhotos != 3 {
		t.Errorf("meta after reset error=%d pending=%d, want 0/3", m.ErrorPhotos, m.PendingPhotos)
	}

	counts, _ := db.CountItems(ctx, "b")
	if counts.Error != 2 {
		t.Errorf("tenant b errors = %d, want untouched 2", counts.Error)
	}

	n, err = db.ResetErrors(ctx, "")
	if err != nil {
		t.Fatalf("ResetErrors(all) failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ResetErrors(all) = %d, want 2", n)
	}
}

func TestReclaimStale(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedItems(t, db, "u1", 2, StatusPending)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	claimed, err := db.ClaimBatch(ctx, "a", 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch = %v, %v", claimed, err)
	}

	db.now = func() time.Time { return base.Add(50 * time.Minute) }
	if _, err := db.ClaimBatch(ctx, "a", 1); err != nil {
		t.Fatalf("second ClaimBatch failed: %v", err)
	}

	db.now = func() time.Time { return base.Add(time.Hour) }
	n, err := db.ReclaimStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("ReclaimStale() = %d, want 1", n)
	}

	it, _ := db.GetItem(ctx, claimed[0].ID)
	if it.MigrationStatus != StatusPending || it.ClaimedAt != nil {
		t.Errorf("reclaimed item = %s claimedAt=%v", it.MigrationStatus, it.ClaimedAt)
	}
}

func TestUnitHasSourcedItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedUnit(t, db, "u2", "a")

	if _, err := db.db.Exec("INSERT INTO media_items (id, parent_id) VALUES ('manual', 'u2')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	seedItems(t, db, "u1", 1, StatusDone)

	tests := []struct {
		unit string
		want bool
	}{
		{"u1", true},
		{"u2", false},
		{"u3", false},
	}
	for _, tt := range tests {
		got, err := db.UnitHasSourcedItems(ctx, tt.unit)
		if err != nil {
			t.Fatalf("UnitHasSourcedItems(%s) failed: %v", tt.unit, err)
		}
		if got != tt.want {
			t.Errorf("UnitHasSourcedItems(%s) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestListUnitItems(t *testing.T) {
	db := setupTestDB(t)
	seedUnit(t, db, "u1", "a")
	ids := seedItems(t, db, "u1", 3, StatusPending)

	items, err := db.ListUnitItems(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListUnitItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("ListUnitItems returned %d, want 3", len(items))
	}
	for i, it := range items {
		if it.ID != ids[i] || it.Position != i {
			t.Errorf("items[%d] = %s@%d, want %s@%d", i, it.ID, it.Position, ids[i], i)
		}
	}
}

func TestInsertIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")

	item := MediaItem{ID: "i1", ParentID: "u1", SourceFileID: "f1"}
	inserted, err := db.InsertIfAbsent(ctx, item)
	if err != nil || !inserted {
		t.Fatalf("first InsertIfAbsent = %v, %v", inserted, err)
	}

	item.ID = "i2"
	inserted, err = db.InsertIfAbsent(ctx, item)
	if err != nil || inserted {
		t.Errorf("duplicate InsertIfAbsent = %v, %v, want false", inserted, err)
	}
}

func TestQueueUnmigrated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "a")
	seedUnit(t, db, "u2", "b")
	seedItems(t, db, "u1", 3, StatusNone)
	seedItems(t, db, "u2", 2, StatusNone)

	if _, err := db.GetOrCreateMeta(ctx, "a"); err != nil {
		t.Fatalf("GetOrCreateMeta failed: %v", err)
	}

	n, err := db.QueueUnmigrated(ctx, "a")
	if err != nil {
		t.Fatalf("QueueUnmigrated failed: %v", err)
	}
	if n != 3 {
		t.Errorf("QueueUnmigrated() = %d, want 3", n)
	}

	m, _ := db.GetMeta(ctx, "a")
	if m.PendingPhotos != 3 {
		t.Errorf("pending = %d, want 3", m.PendingPhotos)
	}
	counts, _ := db.CountItems(ctx, "b")
	if counts.None != 2 {
		t.Errorf("tenant b none = %d, want 2 untouched", counts.None)
	}
}
