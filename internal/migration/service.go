package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-migrator/internal/database"
)

// ErrScanDisabled is returned by Scan when no catalogue is configured.
var ErrScanDisabled = errors.New("discovery scan is not configured")

// ErrInvalidRequest wraps rejected control parameters.
var ErrInvalidRequest = errors.New("invalid request")

// Service is the control surface for migration runs. It is shared by the
// admin API, the scheduler and the CLI.
type Service struct {
	db      *database.Database
	worker  *Worker
	scanner *Scanner
}

// NewService creates a Service. worker and scanner may be nil when the
// caller only needs run control and status, as the CLI does.
func NewService(db *database.Database, worker *Worker, scanner *Scanner) *Service {
	return &Service{db: db, worker: worker, scanner: scanner}
}

// Start moves the tenant's run to running with optional config overrides.
func (s *Service) Start(ctx context.Context, tenantID string, overrides database.RunConfig) (*database.MigrationMeta, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	if err := validateOverrides(overrides); err != nil {
		return nil, err
	}
	m, err := s.db.StartRun(ctx, tenantID, overrides)
	if err != nil {
		return nil, fmt.Errorf("start run for %s: %w", tenantID, err)
	}
	log.Info("Tenant %s run started (batch=%d concurrency=%d quality=%d maxWidth=%d)",
		tenantID, m.Config.BatchSize, m.Config.Concurrency, m.Config.TargetQuality, m.Config.MaxWidth)
	return m, nil
}

// Pause stops new batches for the tenant. A batch in flight finishes.
func (s *Service) Pause(ctx context.Context, tenantID string) (*database.MigrationMeta, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	m, err := s.db.PauseRun(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("pause run for %s: %w", tenantID, err)
	}
	log.Info("Tenant %s run paused", tenantID)
	return m, nil
}

// ResetErrors requeues failed items. An empty tenantID resets every tenant.
func (s *Service) ResetErrors(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.db.ResetErrors(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("reset errors: %w", err)
	}
	log.Info("Reset %d failed items (tenant=%q)", n, tenantID)
	return n, nil
}

// ReclaimStale returns items stuck in processing for longer than olderThan
// to pending.
func (s *Service) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: reclaim threshold must be positive", ErrInvalidRequest)
	}
	n, err := s.db.ReclaimStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	if n > 0 {
		log.Warn("Reclaimed %d items stuck in processing for over %v", n, olderThan)
	}
	return n, nil
}

// Scan runs a discovery scan.
func (s *Service) Scan(ctx context.Context) (*ScanResult, error) {
	if s.scanner == nil {
		return nil, ErrScanDisabled
	}
	return s.scanner.Scan(ctx)
}

// ScanEnabled reports whether a catalogue is configured.
func (s *Service) ScanEnabled() bool {
	return s.scanner != nil
}

// RunBatch processes one batch for the tenant.
func (s *Service) RunBatch(ctx context.Context, tenantID string) (*BatchResult, error) {
	if s.worker == nil {
		return nil, errors.New("batch worker is not configured")
	}
	return s.worker.RunBatch(ctx, tenantID)
}

// RunUntilIdle runs batches until the tenant's run stops running, a batch
// claims nothing, or ctx is done. It returns the totals across batches.
func (s *Service) RunUntilIdle(ctx context.Context, tenantID string) (*BatchResult, error) {
	total := &BatchResult{TenantID: tenantID}
	start := time.Now()
	defer func() { total.Duration = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := s.RunBatch(ctx, tenantID)
		if res != nil {
			total.Claimed += res.Claimed
			total.Done += res.Done
			total.Failed += res.Failed
			total.Completed = res.Completed
			total.Skipped = res.Skipped && total.Claimed == 0
			if res.Workers > total.Workers {
				total.Workers = res.Workers
			}
		}
		if err != nil {
			return total, err
		}
		if res.Skipped || res.Completed || res.Claimed == 0 {
			return total, nil
		}
	}
}

// Status returns the tenant's snapshot, or a roll-up across tenants when
// tenantID is empty.
func (s *Service) Status(ctx context.Context, tenantID string) (*database.StatusSnapshot, error) {
	return s.db.Status(ctx, tenantID)
}

// RecentErrors returns the latest failed attempts.
func (s *Service) RecentErrors(ctx context.Context, tenantID string, limit int) ([]database.MigrationLog, error) {
	return s.db.RecentErrors(ctx, tenantID, limit)
}

// RunningTenants lists tenants whose run is running.
func (s *Service) RunningTenants(ctx context.Context) ([]string, error) {
	return s.db.ListRunningTenants(ctx)
}

func validateOverrides(cfg database.RunConfig) error {
	switch {
	case cfg.BatchSize < 0 || cfg.BatchSize > 500:
		return fmt.Errorf("%w: batchSize must be between 1 and 500", ErrInvalidRequest)
	case cfg.Concurrency < 0 || cfg.Concurrency > 32:
		return fmt.Errorf("%w: concurrency must be between 1 and 32", ErrInvalidRequest)
	case cfg.TargetQuality < 0 || cfg.TargetQuality > 100:
		return fmt.Errorf("%w: targetQuality must be between 1 and 100", ErrInvalidRequest)
	case cfg.MaxWidth < 0 || cfg.MaxWidth > 10000:
		return fmt.Errorf("%w: maxWidth must be between 1 and 10000", ErrInvalidRequest)
	}
	return nil
}
