package migration

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"sync"
	"testing"

	"media-migrator/internal/database"
	"media-migrator/internal/media"
	"media-migrator/internal/source"
	"media-migrator/internal/storage"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func seedUnit(t *testing.T, db *database.Database, unitID, tenantID string) {
	t.Helper()
	err := db.UpsertUnit(context.Background(), database.Unit{
		ID:          unitID,
		AgencyID:    tenantID,
		ExternalRef: "REF-" + unitID,
		Name:        "Unit " + unitID,
	})
	if err != nil {
		t.Fatalf("UpsertUnit(%s) failed: %v", unitID, err)
	}
}

// seedPending enqueues one pending item per id; the source file id is
// "file-<id>".
func seedPending(t *testing.T, db *database.Database, unitID string, ids ...string) {
	t.Helper()
	items := make([]database.MediaItem, len(ids))
	for i, id := range ids {
		items[i] = database.MediaItem{
			ID:           id,
			ParentID:     unitID,
			SourceFileID: "file-" + id,
			SourceName:   id + ".jpg",
			Position:     i,
		}
	}
	n, err := db.EnqueueItems(context.Background(), items)
	if err != nil {
		t.Fatalf("EnqueueItems failed: %v", err)
	}
	if n != len(ids) {
		t.Fatalf("EnqueueItems inserted %d, want %d", n, len(ids))
	}
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	return buf.Bytes()
}

// fakeFiles serves downloads from memory and counts them per file.
type fakeFiles struct {
	mu        sync.Mutex
	data      map[string][]byte
	errs      map[string]error
	folders   map[string][]source.FileEntry
	folderErr map[string]error
	downloads map[string]int
	lists     int
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		data:      make(map[string][]byte),
		errs:      make(map[string]error),
		folders:   make(map[string][]source.FileEntry),
		folderErr: make(map[string]error),
		downloads: make(map[string]int),
	}
}

func (f *fakeFiles) Download(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[fileID]++
	if err, ok := f.errs[fileID]; ok {
		return nil, err
	}
	if d, ok := f.data[fileID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", source.ErrNotFound, fileID)
}

func (f *fakeFiles) ListFolder(_ context.Context, folderID string, limit int) ([]source.FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if err, ok := f.folderErr[folderID]; ok {
		return nil, err
	}
	entries, ok := f.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, folderID)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeFiles) downloadCount(fileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[fileID]
}

// memStore keeps uploads in memory.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), fail: make(map[string]error)}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[key]; ok {
		return nil, err
	}
	m.objects[key] = append([]byte(nil), data...)
	return &storage.Object{URL: "https://cdn.test/" + key, Path: key}, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// stubTransform returns the input unchanged with fixed dimensions.
var stubTransform = media.Func(func(data []byte, _ media.Options) (*media.Result, error) {
	return &media.Result{
		Data:           data,
		Width:          100,
		Height:         50,
		OriginalWidth:  100,
		OriginalHeight: 50,
		OriginalSize:   int64(len(data)),
		Size:           int64(len(data)),
	}, nil
})

// startRun starts a run for tenant with the given batch size and concurrency.
func startRun(t *testing.T, db *database.Database, tenant string, batchSize, concurrency int) *database.MigrationMeta {
	t.Helper()
	m, err := db.StartRun(context.Background(), tenant, database.RunConfig{BatchSize: batchSize, Concurrency: concurrency})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	return m
}

func getItem(t *testing.T, db *database.Database, id string) *database.MediaItem {
	t.Helper()
	it, err := db.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetItem(%s) failed: %v", id, err)
	}
	return it
}

func getMeta(t *testing.T, db *database.Database, tenant string) *database.MigrationMeta {
	t.Helper()
	m, err := db.GetMeta(context.Background(), tenant)
	if err != nil {
		t.Fatalf("GetMeta(%s) failed: %v", tenant, err)
	}
	return m
}

// assertConservation checks the counter identity against live item counts.
func assertConservation(t *testing.T, db *database.Database, tenant string) {
	t.Helper()
	ctx := context.Background()
	m := getMeta(t, db, tenant)
	counts, err := db.CountItems(ctx, tenant)
	if err != nil {
		t.Fatalf("CountItems failed: %v", err)
	}
	if m.TotalPhotos != m.ProcessedPhotos+m.PendingPhotos+m.ErrorPhotos+counts.None {
		t.Errorf("conservation broken: total=%d processed=%d pending=%d error=%d none=%d",
			m.TotalPhotos, m.ProcessedPhotos, m.PendingPhotos, m.ErrorPhotos, counts.None)
	}
	if m.ProcessedPhotos != counts.Done || m.ErrorPhotos != counts.Error || m.PendingPhotos != counts.Pending+counts.Processing {
		t.Errorf("counters %+v disagree with live counts %+v", m, counts)
	}
}
