package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-migrator/internal/database"
	"media-migrator/internal/logging"
	"media-migrator/internal/memory"
	"media-migrator/internal/migration"
	"media-migrator/internal/source"
	"media-migrator/internal/storage"
	"media-migrator/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	DatabaseDir     string
	DatabasePath    string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	AdminToken      string

	// RunDefaults seeds new migration runs.
	RunDefaults   database.RunConfig
	BatchInterval time.Duration
	ScanInterval  time.Duration
	PreferVips    bool

	Scan    migration.ScanConfig
	Source  source.Config
	Storage storage.Config
}

// ScanConfigured reports whether a catalogue spreadsheet is set.
func (c *Config) ScanConfigured() bool {
	return c.Scan.SpreadsheetID != ""
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	defaults := database.DefaultRunConfig()
	srcDefaults := source.DefaultConfig()

	cfg := &Config{
		DatabaseDir:     getEnv("DATABASE_DIR", "/database"),
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		RunDefaults: database.RunConfig{
			BatchSize:     getEnvInt("MIGRATION_BATCH_SIZE", defaults.BatchSize, 1, 500),
			Concurrency:   getConcurrency(defaults.Concurrency),
			TargetQuality: getEnvInt("MIGRATION_QUALITY", defaults.TargetQuality, 1, 100),
			MaxWidth:      getEnvInt("MIGRATION_MAX_WIDTH", defaults.MaxWidth, 1, 10000),
		},
		BatchInterval: getEnvDuration("MIGRATION_INTERVAL", time.Minute),
		ScanInterval:  getEnvDuration("SCAN_INTERVAL", 6*time.Hour),
		PreferVips:    getEnvBool("VIPS_ENABLED", true),
		Scan: migration.ScanConfig{
			SpreadsheetID: os.Getenv("SCAN_SPREADSHEET_ID"),
			Range:         os.Getenv("SCAN_RANGE"),
			UnitColumn:    getEnv("SCAN_UNIT_COLUMN", "A"),
			FolderColumn:  getEnv("SCAN_FOLDER_COLUMN", "B"),
			MaxPerUnit:    getEnvInt("SCAN_MAX_PER_UNIT", migration.DefaultMaxPerUnit, 1, 1000),
		},
		Source: source.Config{
			CredentialsFile:  os.Getenv("GOOGLE_CREDENTIALS_FILE"),
			RateLimit:        getEnvFloat("SOURCE_RATE_LIMIT", srcDefaults.RateLimit),
			Burst:            srcDefaults.Burst,
			MaxRetries:       getEnvInt("SOURCE_MAX_RETRIES", srcDefaults.MaxRetries, 0, 20),
			RetryDelay:       srcDefaults.RetryDelay,
			MaxDelay:         srcDefaults.MaxDelay,
			MaxDownloadBytes: srcDefaults.MaxDownloadBytes,
		},
		Storage: storage.Config{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			LocalDir:    getEnv("STORAGE_LOCAL_DIR", "/photos"),
			PublicURL:   os.Getenv("STORAGE_PUBLIC_URL"),
			S3Bucket:    os.Getenv("S3_BUCKET"),
			S3Region:    os.Getenv("S3_REGION"),
			S3Endpoint:  os.Getenv("S3_ENDPOINT"),
			S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
			S3SecretKey: os.Getenv("S3_SECRET_KEY"),
			S3Prefix:    os.Getenv("S3_PREFIX"),
		},
	}

	logging.Info("  DATABASE_DIR:          %s", cfg.DatabaseDir)
	logging.Info("  PORT:                  %s", cfg.Port)
	logging.Info("  METRICS_PORT:          %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:       %v", cfg.MetricsEnabled)
	logging.Info("  ADMIN_TOKEN:           %s", maskSecret(cfg.AdminToken))
	logging.Info("  MIGRATION_BATCH_SIZE:  %d", cfg.RunDefaults.BatchSize)
	logging.Info("  MIGRATION_CONCURRENCY: %d", cfg.RunDefaults.Concurrency)
	logging.Info("  MIGRATION_QUALITY:     %d", cfg.RunDefaults.TargetQuality)
	logging.Info("  MIGRATION_MAX_WIDTH:   %d", cfg.RunDefaults.MaxWidth)
	logging.Info("  MIGRATION_INTERVAL:    %v", cfg.BatchInterval)
	logging.Info("  SCAN_INTERVAL:         %v", cfg.ScanInterval)
	logging.Info("  SCAN_SPREADSHEET_ID:   %s", orDash(cfg.Scan.SpreadsheetID))
	logging.Info("  SOURCE_RATE_LIMIT:     %.1f req/s", cfg.Source.RateLimit)
	logging.Info("  STORAGE_BACKEND:       %s", cfg.Storage.Backend)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())
	if v := os.Getenv(workers.EnvOverride); v != "" {
		logging.Info("  %s:     %s", workers.EnvOverride, v)
	}

	if cfg.AdminToken == "" {
		logging.Warn("  ADMIN_TOKEN is not set; the admin API will reject every request")
	}
	if cfg.Source.CredentialsFile == "" {
		logging.Warn("  GOOGLE_CREDENTIALS_FILE is not set; using application default credentials")
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	databaseDir, err := filepath.Abs(cfg.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	cfg.DatabaseDir = databaseDir
	cfg.DatabasePath = filepath.Join(databaseDir, "migration.db")
	logging.Info("  Database directory (absolute): %s", databaseDir)

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Batch driver:  %s", enabledString(cfg.BatchInterval > 0))
	logging.Info("    Discovery:     %s", enabledString(cfg.ScanConfigured()))
	logging.Info("    Metrics:       %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

// getConcurrency reads MIGRATION_CONCURRENCY; "auto" sizes the pool from
// the available CPUs.
func getConcurrency(def int) int {
	if strings.EqualFold(os.Getenv("MIGRATION_CONCURRENCY"), "auto") {
		return workers.ForMixed(32)
	}
	return getEnvInt("MIGRATION_CONCURRENCY", def, 1, 32)
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "(set)"
}

// LogMemoryConfig logs the GOMEMLIMIT configuration
func LogMemoryConfig(res memory.LimitResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	switch res.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT: %s (from environment)", memory.FormatBytes(res.GoMemLimit))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", memory.FormatBytes(res.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", memory.FormatBytes(res.GoMemLimit), res.Ratio*100)
	default:
		logging.Info("  Not configured (set MEMORY_LIMIT to enable)")
	}
	logging.Info("")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTransformInit logs which image transform backend is in use
func LogTransformInit(vips bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("IMAGE TRANSFORM")
	logging.Info("------------------------------------------------------------")
	if vips {
		logging.Info("  [OK] libvips available, using vips backend")
	} else {
		logging.Info("  Using pure Go backend (libvips unavailable or disabled)")
	}
}

// LogCollaboratorsInit logs the source and storage backends
func LogCollaboratorsInit(cfg *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SOURCE AND STORAGE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Source: Google Drive (%.1f req/s, %d retries)", cfg.Source.RateLimit, cfg.Source.MaxRetries)
	if cfg.ScanConfigured() {
		logging.Info("  Catalogue: spreadsheet %s, unit column %s, folder column %s",
			cfg.Scan.SpreadsheetID, cfg.Scan.UnitColumn, cfg.Scan.FolderColumn)
	} else {
		logging.Info("  Catalogue: not configured (discovery scans disabled)")
	}
	switch cfg.Storage.Backend {
	case "s3":
		logging.Info("  Storage: s3://%s/%s", cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	default:
		logging.Info("  Storage: %s (served at %s)", cfg.Storage.LocalDir, orDash(cfg.Storage.PublicURL))
	}
}

// LogSchedulerInit logs the background job intervals
func LogSchedulerInit(batch, scan time.Duration, scanEnabled bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SCHEDULER")
	logging.Info("------------------------------------------------------------")
	if batch > 0 {
		logging.Info("  Batch interval: %v", batch)
	} else {
		logging.Info("  Batch driver:   DISABLED (MIGRATION_INTERVAL=0)")
	}
	if scan > 0 && scanEnabled {
		logging.Info("  Scan interval:  %v", scan)
	} else {
		logging.Info("  Scheduled scan: DISABLED")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Subrouter prefixes carry no methods
			return nil
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	logging.Info("  %d routes registered", len(routes))
	for _, route := range routes {
		logging.Debug("    %-6s %s", route.Method, route.Path)
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Admin API:     http://0.0.0.0:%s/api/migration/status", config.Port)
	logging.Info("    Health:        http://0.0.0.0:%s/health", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___         __  ____                  __
   /  |/  /__  ____/ (_)___ _  /  |/  (_)___ __________ _/ /_____  _____
  / /|_/ / _ \/ __  / / __ '/ / /|_/ / / __ '/ ___/ __ '/ __/ __ \/ ___/
 / /  / /  __/ /_/ / / /_/ / / /  / / / /_/ / /  / /_/ / /_/ /_/ / /
/_/  /_/\___/\__,_/_/\__,_/ /_/  /_/_/\__, /_/   \__,_/\__/\____/_/
                                     /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue, lo, hi int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < lo || parsed > hi {
		logging.Warn("Invalid value for %s: %q (want %d-%d), using default: %d", key, value, lo, hi, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses a Go duration. "0" disables the job it controls.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "0" {
		return 0
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
