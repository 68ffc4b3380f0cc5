package database

import "time"

// MigrationStatus is the per-item migration state.
type MigrationStatus string

const (
	StatusNone       MigrationStatus = "none"
	StatusPending    MigrationStatus = "pending"
	StatusProcessing MigrationStatus = "processing"
	StatusDone       MigrationStatus = "done"
	StatusError      MigrationStatus = "error"
)

// RunStatus is the state of a tenant's migration run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// CanonicalQualityVersion marks an item whose stored bytes went through the
// current transform settings.
const CanonicalQualityVersion = 2

// MaxErrorLength bounds error strings persisted on items, runs and log rows.
const MaxErrorLength = 1000

// Unit is the rental unit that owns a set of photos. AgencyID is the tenant.
type Unit struct {
	ID          string `json:"id"`
	AgencyID    string `json:"agencyId"`
	ExternalRef string `json:"externalRef,omitempty"`
	Name        string `json:"name,omitempty"`
}

// MediaItem is one externally sourced photograph attached to a unit.
// Empty strings are stored as NULL for the nullable columns.
type MediaItem struct {
	ID              string          `json:"id"`
	ParentID        string          `json:"parentId"`
	TenantID        string          `json:"tenantId"`
	SourceFileID    string          `json:"sourceFileId,omitempty"`
	SourceName      string          `json:"sourceName,omitempty"`
	StorageURL      string          `json:"storageUrl,omitempty"`
	StoragePath     string          `json:"storagePath,omitempty"`
	Width           int             `json:"width,omitempty"`
	Height          int             `json:"height,omitempty"`
	ByteSize        int64           `json:"byteSize,omitempty"`
	QualityVersion  int             `json:"qualityVersion"`
	Slot            string          `json:"slot,omitempty"`
	Position        int             `json:"position"`
	MigrationStatus MigrationStatus `json:"migrationStatus"`
	MigrationError  string          `json:"migrationError,omitempty"`
	ClaimedAt       *time.Time      `json:"claimedAt,omitempty"`
	MigratedAt      *time.Time      `json:"migratedAt,omitempty"`
}

// ItemOutput is what a successful migration writes back onto the item.
type ItemOutput struct {
	StorageURL  string
	StoragePath string
	Width       int
	Height      int
	ByteSize    int64
}

// ItemCounts are live per-status counts of eligible items (source_file_id set).
type ItemCounts struct {
	None       int64 `json:"none"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Error      int64 `json:"error"`
}

// Total returns the number of eligible items across all statuses.
func (c ItemCounts) Total() int64 {
	return c.None + c.Pending + c.Processing + c.Done + c.Error
}

// RunConfig is the per-run processing configuration. In overrides, a zero
// field means "keep the current value".
type RunConfig struct {
	BatchSize     int `json:"batchSize,omitempty"`
	Concurrency   int `json:"concurrency,omitempty"`
	TargetQuality int `json:"targetQuality,omitempty"`
	MaxWidth      int `json:"maxWidth,omitempty"`
}

// DefaultRunConfig returns the configuration new runs start with.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		BatchSize:     20,
		Concurrency:   3,
		TargetQuality: 82,
		MaxWidth:      1920,
	}
}

// MigrationMeta is the per-tenant aggregate record of a migration run.
// Counters are a cache; media_items rows are authoritative.
type MigrationMeta struct {
	ID              int64      `json:"id"`
	TenantID        string     `json:"tenantId"`
	TotalPhotos     int64      `json:"totalPhotos"`
	ProcessedPhotos int64      `json:"processedPhotos"`
	PendingPhotos   int64      `json:"pendingPhotos"`
	ErrorPhotos     int64      `json:"errorPhotos"`
	Status          RunStatus  `json:"status"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	Config          RunConfig  `json:"config"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	LastUpdatedAt   time.Time  `json:"lastUpdatedAt"`
}

// MigrationLog is one processing attempt of one item.
type MigrationLog struct {
	ID                  int64           `json:"id"`
	MigrationMetaID     *int64          `json:"migrationMetaId,omitempty"`
	PhotoID             string          `json:"photoId"`
	Status              MigrationStatus `json:"status"`
	ErrorMessage        string          `json:"errorMessage,omitempty"`
	OriginalSize        int64           `json:"originalSize,omitempty"`
	ProcessedSize       int64           `json:"processedSize,omitempty"`
	OriginalDimensions  string          `json:"originalDimensions,omitempty"`
	ProcessedDimensions string          `json:"processedDimensions,omitempty"`
	ProcessingTimeMs    int64           `json:"processingTimeMs"`
	ProcessedAt         time.Time       `json:"processedAt"`
}

// StatusSnapshot is the read-only view returned to operators: live item
// counts combined with the stored run state.
type StatusSnapshot struct {
	TenantID        string     `json:"tenantId,omitempty"`
	TotalPhotos     int64      `json:"totalPhotos"`
	ProcessedPhotos int64      `json:"processedPhotos"`
	PendingPhotos   int64      `json:"pendingPhotos"`
	ErrorPhotos     int64      `json:"errorPhotos"`
	NeverQueued     int64      `json:"neverQueued"`
	Status          RunStatus  `json:"status"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	LastUpdatedAt   *time.Time `json:"lastUpdatedAt,omitempty"`
}
