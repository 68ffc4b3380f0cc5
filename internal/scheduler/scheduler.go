package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"media-migrator/internal/logging"
	"media-migrator/internal/migration"
)

var log = logging.With("scheduler")

// Service is the part of the migration service the scheduler drives.
type Service interface {
	RunningTenants(ctx context.Context) ([]string, error)
	RunBatch(ctx context.Context, tenantID string) (*migration.BatchResult, error)
	Scan(ctx context.Context) (*migration.ScanResult, error)
	ScanEnabled() bool
}

// Config sets how often each job runs. A zero interval disables the job.
type Config struct {
	BatchInterval time.Duration
	ScanInterval  time.Duration
}

// Scheduler runs one batch per running tenant on every batch tick and a
// discovery scan on every scan tick.
type Scheduler struct {
	cron *cron.Cron
	svc  Service
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// New creates a scheduler and registers its jobs. Call Start to run them.
func New(svc Service, cfg Config) (*Scheduler, error) {
	logger := cron.PrintfLogger(log)
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     c,
		svc:      svc,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]bool),
	}

	if cfg.BatchInterval > 0 {
		if _, err := c.AddFunc(every(cfg.BatchInterval), s.batchTick); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule batches: %w", err)
		}
	}
	if cfg.ScanInterval > 0 && svc.ScanEnabled() {
		if _, err := c.AddFunc(every(cfg.ScanInterval), s.scanTick); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule scans: %w", err)
		}
	}
	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	log.Info("Scheduler started (batch every %v, scan every %v)", s.cfg.BatchInterval, s.cfg.ScanInterval)
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs and batches to finish,
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	log.Info("Stopping scheduler...")
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// batchTick starts a batch for every running tenant that has none in flight.
func (s *Scheduler) batchTick() {
	tenants, err := s.svc.RunningTenants(s.ctx)
	if err != nil {
		log.Error("Failed to list running tenants: %v", err)
		return
	}
	for _, tenant := range tenants {
		if !s.acquire(tenant) {
			log.Debug("Tenant %s batch still running, skipping tick", tenant)
			continue
		}
		s.wg.Add(1)
		go s.runBatch(tenant)
	}
}

func (s *Scheduler) runBatch(tenant string) {
	defer s.wg.Done()
	defer s.release(tenant)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in batch for tenant %s: %v", tenant, r)
		}
	}()

	res, err := s.svc.RunBatch(s.ctx, tenant)
	if err != nil {
		log.Error("Batch for tenant %s failed: %v", tenant, err)
		return
	}
	if res.Claimed > 0 {
		log.Debug("Tenant %s: %d done, %d failed", tenant, res.Done, res.Failed)
	}
}

func (s *Scheduler) scanTick() {
	res, err := s.svc.Scan(s.ctx)
	if err != nil {
		log.Error("Scheduled scan failed: %v", err)
		return
	}
	log.Info("Scheduled scan queued %d items from %d rows", res.ItemsQueued, res.RowsScanned)
}

func (s *Scheduler) acquire(tenant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[tenant] {
		return false
	}
	s.inFlight[tenant] = true
	return true
}

func (s *Scheduler) release(tenant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, tenant)
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
