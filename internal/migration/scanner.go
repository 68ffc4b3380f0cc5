package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-migrator/internal/database"
	"media-migrator/internal/logging"
	"media-migrator/internal/metrics"
	"media-migrator/internal/source"
)

// ErrScanInProgress is returned when a scan is requested while one runs.
var ErrScanInProgress = errors.New("scan already in progress")

// DefaultMaxPerUnit caps how many files one unit's folder contributes.
const DefaultMaxPerUnit = 25

var scanLog = logging.With("scanner")

// ScanConfig locates the catalogue spreadsheet and its columns.
type ScanConfig struct {
	SpreadsheetID string
	Range         string
	UnitColumn    string
	FolderColumn  string
	MaxPerUnit    int
}

// ScanResult summarizes one scan.
type ScanResult struct {
	RowsScanned  int                `json:"rowsScanned"`
	UnitsQueued  int                `json:"unitsQueued"`
	UnitsSkipped int                `json:"unitsSkipped"`
	ItemsQueued  int                `json:"itemsQueued"`
	Errors       []*ValidationError `json:"errors"`
	StartedAt    time.Time          `json:"startedAt"`
	Duration     time.Duration      `json:"duration"`
}

// Scanner discovers source photos for units from the catalogue
// spreadsheet and queues them as pending items.
type Scanner struct {
	db    *database.Database
	sheet source.Sheet
	files source.Files
	cfg   ScanConfig

	unitCol   int
	folderCol int

	mu sync.Mutex
}

// NewScanner validates cfg and creates a scanner.
func NewScanner(db *database.Database, sheet source.Sheet, files source.Files, cfg ScanConfig) (*Scanner, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("scan spreadsheet id is required")
	}
	if cfg.UnitColumn == "" {
		cfg.UnitColumn = "A"
	}
	if cfg.FolderColumn == "" {
		cfg.FolderColumn = "B"
	}
	if cfg.MaxPerUnit <= 0 {
		cfg.MaxPerUnit = DefaultMaxPerUnit
	}
	unitCol := source.ColumnIndex(cfg.UnitColumn)
	if unitCol < 0 {
		return nil, fmt.Errorf("invalid unit column %q", cfg.UnitColumn)
	}
	folderCol := source.ColumnIndex(cfg.FolderColumn)
	if folderCol < 0 {
		return nil, fmt.Errorf("invalid folder column %q", cfg.FolderColumn)
	}

	return &Scanner{
		db:        db,
		sheet:     sheet,
		files:     files,
		cfg:       cfg,
		unitCol:   unitCol,
		folderCol: folderCol,
	}, nil
}

// Scan reads every catalogue row and queues the folder photos of each unit
// that has no source-backed items yet. Row failures are collected in the
// result and never stop the scan. Units that already have items are
// skipped, so repeated scans queue nothing new for them.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer s.mu.Unlock()

	res := &ScanResult{StartedAt: time.Now(), Errors: []*ValidationError{}}
	scanLog.Info("Starting discovery scan of spreadsheet %s", s.cfg.SpreadsheetID)

	rows, err := s.sheet.ReadRows(ctx, s.cfg.SpreadsheetID, s.cfg.Range)
	if err != nil {
		metrics.ScanRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read catalogue: %w", err)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			metrics.ScanRunsTotal.WithLabelValues("error").Inc()
			res.Duration = time.Since(res.StartedAt)
			return res, err
		}
		if rowEmpty(row) {
			continue
		}
		res.RowsScanned++
		metrics.ScanRowsTotal.Inc()

		queued, skipped, verr := s.scanRow(ctx, row)
		switch {
		case verr != nil:
			metrics.ScanRowErrors.WithLabelValues(verr.Reason).Inc()
			scanLog.Warn("%v", verr)
			res.Errors = append(res.Errors, verr)
		case skipped:
			res.UnitsSkipped++
		case queued > 0:
			res.UnitsQueued++
			res.ItemsQueued += queued
		}
	}

	res.Duration = time.Since(res.StartedAt)
	if err := s.db.SetLastScanRun(ctx, res.StartedAt); err != nil {
		scanLog.Warn("Failed to record scan time: %v", err)
	}
	metrics.ScanItemsQueued.Add(float64(res.ItemsQueued))
	metrics.ScanRunsTotal.WithLabelValues("success").Inc()
	metrics.ScanLastRunTimestamp.Set(float64(res.StartedAt.Unix()))

	scanLog.Info("Scan complete: %d rows, %d items queued for %d units, %d units skipped, %d errors in %v",
		res.RowsScanned, res.ItemsQueued, res.UnitsQueued, res.UnitsSkipped, len(res.Errors), res.Duration)
	return res, nil
}

// scanRow handles one catalogue row. It returns the number of items queued,
// whether the unit was skipped as already ingested, or the reason the row
// was rejected.
func (s *Scanner) scanRow(ctx context.Context, row source.Row) (int, bool, *ValidationError) {
	key := strings.TrimSpace(row.Cell(s.unitCol).Value)
	reject := func(reason string, err error) (int, bool, *ValidationError) {
		return 0, false, &ValidationError{RowKey: key, Row: row.Number, Reason: reason, Err: err}
	}

	if key == "" {
		return reject(ReasonMissingKey, nil)
	}

	unit, err := s.db.GetUnitByExternalRef(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return reject(ReasonUnknownUnit, nil)
	}
	if err != nil {
		return reject(ReasonPersist, err)
	}

	has, err := s.db.UnitHasSourcedItems(ctx, unit.ID)
	if err != nil {
		return reject(ReasonPersist, err)
	}
	if has {
		scanLog.Debug("Unit %s already has source items, skipping", unit.ID)
		return 0, true, nil
	}

	folderID, err := s.folderReference(row)
	switch {
	case errors.Is(err, source.ErrMalformedReference):
		return reject(ReasonMalformedReference, err)
	case err != nil:
		return reject(ReasonMissingReference, nil)
	}

	files, err := s.files.ListFolder(ctx, folderID, s.cfg.MaxPerUnit)
	if err != nil {
		return reject(ReasonResolution, err)
	}
	if len(files) == 0 {
		scanLog.Debug("Unit %s folder %s has no images", unit.ID, folderID)
		return 0, false, nil
	}

	items := make([]database.MediaItem, len(files))
	for i, f := range files {
		items[i] = database.MediaItem{
			ID:              uuid.NewString(),
			ParentID:        unit.ID,
			SourceFileID:    f.ID,
			SourceName:      f.Name,
			Position:        i,
			MigrationStatus: database.StatusPending,
		}
	}

	inserted, err := s.db.EnqueueItems(ctx, items)
	if err != nil {
		return reject(ReasonPersist, err)
	}
	scanLog.Debug("Unit %s: queued %d of %d files from folder %s", unit.ID, inserted, len(files), folderID)
	return inserted, false, nil
}

// folderReference finds the folder id in the folder cell, then in that
// cell's note, then in any other note on the row. A malformed link is
// reported only when no candidate yields an id.
func (s *Scanner) folderReference(row source.Row) (string, error) {
	cell := row.Cell(s.folderCol)
	candidates := []string{cell.Value, cell.Note}
	for i, c := range row.Cells {
		if i != s.folderCol {
			candidates = append(candidates, c.Note)
		}
	}

	var firstErr error
	for _, text := range candidates {
		id, err := source.ExtractFolderID(text)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, source.ErrMalformedReference) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", firstErr
	}
	return "", source.ErrNoReference
}

func rowEmpty(row source.Row) bool {
	for _, c := range row.Cells {
		if strings.TrimSpace(c.Value) != "" || strings.TrimSpace(c.Note) != "" {
			return false
		}
	}
	return true
}
