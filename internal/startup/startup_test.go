package startup

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-migrator/internal/database"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" || info.OS == "" || info.Arch == "" {
		t.Errorf("incomplete build info: %+v", info)
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ADMIN_TOKEN", "MIGRATION_BATCH_SIZE", "MIGRATION_CONCURRENCY", "MIGRATION_QUALITY",
		"MIGRATION_MAX_WIDTH", "MIGRATION_INTERVAL", "SCAN_INTERVAL", "SCAN_SPREADSHEET_ID",
		"STORAGE_BACKEND", "MIGRATION_WORKERS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DATABASE_DIR", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.RunDefaults != database.DefaultRunConfig() {
		t.Errorf("RunDefaults = %+v, want %+v", cfg.RunDefaults, database.DefaultRunConfig())
	}
	if cfg.Port != "8080" || cfg.BatchInterval != time.Minute || cfg.ScanInterval != 6*time.Hour {
		t.Errorf("unexpected defaults: port=%s batch=%v scan=%v", cfg.Port, cfg.BatchInterval, cfg.ScanInterval)
	}
	if cfg.Storage.Backend != "local" || cfg.ScanConfigured() {
		t.Errorf("storage=%s scanConfigured=%v", cfg.Storage.Backend, cfg.ScanConfigured())
	}
	if cfg.Scan.UnitColumn != "A" || cfg.Scan.FolderColumn != "B" || cfg.Scan.MaxPerUnit != 25 {
		t.Errorf("scan defaults = %+v", cfg.Scan)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("MIGRATION_BATCH_SIZE", "100")
	t.Setenv("MIGRATION_CONCURRENCY", "8")
	t.Setenv("MIGRATION_QUALITY", "150") // out of range, falls back
	t.Setenv("MIGRATION_INTERVAL", "30s")
	t.Setenv("SCAN_INTERVAL", "0")
	t.Setenv("SCAN_SPREADSHEET_ID", "sheet-1")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "photos")
	t.Setenv("SOURCE_RATE_LIMIT", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.RunDefaults.BatchSize != 100 || cfg.RunDefaults.Concurrency != 8 {
		t.Errorf("RunDefaults = %+v", cfg.RunDefaults)
	}
	if cfg.RunDefaults.TargetQuality != database.DefaultRunConfig().TargetQuality {
		t.Errorf("out-of-range quality accepted: %d", cfg.RunDefaults.TargetQuality)
	}
	if cfg.BatchInterval != 30*time.Second || cfg.ScanInterval != 0 {
		t.Errorf("intervals = %v / %v", cfg.BatchInterval, cfg.ScanInterval)
	}
	if !cfg.ScanConfigured() || cfg.Storage.S3Bucket != "photos" || cfg.Source.RateLimit != 2.5 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "many")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "-5m")

	if got := getEnvInt("TEST_INT", 1, 0, 100); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}
	if got := getEnvInt("TEST_INT", 1, 0, 10); got != 1 {
		t.Errorf("getEnvInt above range = %d, want default 1", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7, 0, 100); got != 7 {
		t.Errorf("getEnvInt invalid = %d, want 7", got)
	}
	if getEnvBool("TEST_BOOL", true) {
		t.Error("getEnvBool = true, want false")
	}
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}
	if got := getEnvDuration("TEST_BAD_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration negative = %v, want default", got)
	}
	if got := getEnv("TEST_UNSET_VAR_XYZ", "fallback"); got != "fallback" {
		t.Errorf("getEnv = %q", got)
	}
}

func TestConcurrencyAuto(t *testing.T) {
	t.Setenv("MIGRATION_WORKERS", "")
	t.Setenv("MIGRATION_CONCURRENCY", "auto")
	if got := getConcurrency(3); got < 1 || got > 32 {
		t.Errorf("auto concurrency = %d, want 1-32", got)
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.HandleFunc("/health", noop).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/migration/{tenant}/start", noop).Methods("POST")
	api.HandleFunc("/migration/status", noop).Methods("GET")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes failed: %v", err)
	}
	want := []RouteInfo{
		{Method: "GET", Path: "/api/migration/status"},
		{Method: "POST", Path: "/api/migration/{tenant}/start"},
		{Method: "GET", Path: "/health"},
	}
	if len(routes) != len(want) {
		t.Fatalf("routes = %+v, want %+v", routes, want)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("route %d = %+v, want %+v", i, routes[i], want[i])
		}
	}
}
