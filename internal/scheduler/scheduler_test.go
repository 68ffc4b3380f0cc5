package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"media-migrator/internal/migration"
)

type fakeService struct {
	mu       sync.Mutex
	tenants  []string
	listErr  error
	batches  map[string]int
	scans    int
	scanOn   bool
	block    chan struct{}
	panicFor string
}

func newFakeService(tenants ...string) *fakeService {
	return &fakeService{tenants: tenants, batches: make(map[string]int), scanOn: true}
}

func (f *fakeService) RunningTenants(context.Context) ([]string, error) {
	return f.tenants, f.listErr
}

func (f *fakeService) RunBatch(_ context.Context, tenant string) (*migration.BatchResult, error) {
	f.mu.Lock()
	f.batches[tenant]++
	block := f.block
	f.mu.Unlock()

	if tenant == f.panicFor {
		panic("batch exploded")
	}
	if block != nil {
		<-block
	}
	return &migration.BatchResult{TenantID: tenant, Claimed: 1, Done: 1}, nil
}

func (f *fakeService) Scan(context.Context) (*migration.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return &migration.ScanResult{}, nil
}

func (f *fakeService) ScanEnabled() bool { return f.scanOn }

func (f *fakeService) batchCount(tenant string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[tenant]
}

func TestBatchTickRunsEachTenant(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc := newFakeService("a", "b")
	s, err := New(svc, Config{BatchInterval: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.batchTick()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if svc.batchCount("a") != 1 || svc.batchCount("b") != 1 {
		t.Errorf("batches = %v, want one per tenant", svc.batches)
	}
}

func TestBatchTickSkipsTenantInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc := newFakeService("a")
	svc.block = make(chan struct{})
	s, err := New(svc, Config{BatchInterval: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.batchTick()
	deadline := time.Now().Add(2 * time.Second)
	for svc.batchCount("a") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// The first batch is blocked, so this tick must not start another.
	s.batchTick()
	if n := svc.batchCount("a"); n != 1 {
		t.Errorf("batches while in flight = %d, want 1", n)
	}

	close(svc.block)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	s.batchTick()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if n := svc.batchCount("a"); n != 2 {
		t.Errorf("batches after release = %d, want 2", n)
	}
}

func TestStopTimesOutWithBatchInFlight(t *testing.T) {
	svc := newFakeService("a")
	svc.block = make(chan struct{})
	s, err := New(svc, Config{BatchInterval: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.batchTick()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop error = %v, want deadline exceeded", err)
	}
	close(svc.block)
	s.wg.Wait()
}

func TestBatchPanicReleasesTenant(t *testing.T) {
	svc := newFakeService("bad")
	svc.panicFor = "bad"
	s, err := New(svc, Config{BatchInterval: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.batchTick()
	s.wg.Wait()
	if !s.acquire("bad") {
		t.Error("tenant still marked in flight after a panic")
	}
}

func TestBatchTickListError(t *testing.T) {
	svc := newFakeService()
	svc.listErr = errors.New("database locked")
	s, err := New(svc, Config{BatchInterval: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.batchTick()
	s.wg.Wait()
	if len(svc.batches) != 0 {
		t.Errorf("batches ran despite list error: %v", svc.batches)
	}
}

func TestScanJobRegistration(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		scanOn  bool
		entries int
	}{
		{name: "both jobs", cfg: Config{BatchInterval: time.Minute, ScanInterval: time.Hour}, scanOn: true, entries: 2},
		{name: "scan disabled by interval", cfg: Config{BatchInterval: time.Minute}, scanOn: true, entries: 1},
		{name: "scan not configured", cfg: Config{BatchInterval: time.Minute, ScanInterval: time.Hour}, scanOn: false, entries: 1},
		{name: "nothing", cfg: Config{}, scanOn: true, entries: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.scanOn = tt.scanOn
			s, err := New(svc, tt.cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if n := len(s.cron.Entries()); n != tt.entries {
				t.Errorf("entries = %d, want %d", n, tt.entries)
			}
		})
	}
}

func TestScanTick(t *testing.T) {
	svc := newFakeService()
	s, err := New(svc, Config{ScanInterval: time.Hour})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.scanTick()
	if svc.scans != 1 {
		t.Errorf("scans = %d, want 1", svc.scans)
	}
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := New(newFakeService(), Config{BatchInterval: time.Hour, ScanInterval: time.Hour})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
