package handlers

import (
	"context"
	"time"

	"github.com/gorilla/mux"

	"media-migrator/internal/database"
	"media-migrator/internal/migration"
)

// Controller is the migration control surface the handlers drive.
// *migration.Service implements it.
type Controller interface {
	Start(ctx context.Context, tenantID string, overrides database.RunConfig) (*database.MigrationMeta, error)
	Pause(ctx context.Context, tenantID string) (*database.MigrationMeta, error)
	RunBatch(ctx context.Context, tenantID string) (*migration.BatchResult, error)
	ResetErrors(ctx context.Context, tenantID string) (int64, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Scan(ctx context.Context) (*migration.ScanResult, error)
	Status(ctx context.Context, tenantID string) (*database.StatusSnapshot, error)
	RecentErrors(ctx context.Context, tenantID string, limit int) ([]database.MigrationLog, error)
	RunningTenants(ctx context.Context) ([]string, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc        Controller
	db         Pinger
	adminToken string
	startedAt  time.Time
}

func New(svc Controller, db Pinger, adminToken string) *Handlers {
	return &Handlers{
		svc:        svc,
		db:         db,
		adminToken: adminToken,
		startedAt:  time.Now(),
	}
}

// Router registers every route on a new mux.Router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	// Probes and version (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/migration/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/migration/reset-errors", h.ResetErrors).Methods("POST")
	api.HandleFunc("/migration/reclaim", h.ReclaimStale).Methods("POST")
	api.HandleFunc("/migration/{tenant}/start", h.StartRun).Methods("POST")
	api.HandleFunc("/migration/{tenant}/pause", h.PauseRun).Methods("POST")
	api.HandleFunc("/migration/{tenant}/batch", h.RunBatch).Methods("POST")
	api.HandleFunc("/migration/{tenant}/errors", h.GetErrors).Methods("GET")
	api.HandleFunc("/scan", h.TriggerScan).Methods("POST")

	return r
}
