package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-migrator/internal/database"
	"media-migrator/internal/handlers"
	"media-migrator/internal/logging"
	"media-migrator/internal/media"
	"media-migrator/internal/memory"
	"media-migrator/internal/metrics"
	"media-migrator/internal/middleware"
	"media-migrator/internal/migration"
	"media-migrator/internal/scheduler"
	"media-migrator/internal/source"
	"media-migrator/internal/startup"
	"media-migrator/internal/storage"
)

const (
	shutdownTimeout          = 30 * time.Second
	metricsCollectInterval   = time.Minute
	metricsReadHeaderTimeout = 10 * time.Second
)

func main() {
	startTime := time.Now()

	// GOMEMLIMIT first, before large allocations
	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	ctx := context.Background()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	db.SetDefaultRunConfig(config.RunDefaults)
	startup.LogDatabaseInit(time.Since(dbStart))

	startup.LogTransformInit(config.PreferVips)
	transform := media.NewTransformer(config.PreferVips)

	startup.LogCollaboratorsInit(config)
	files, err := source.NewDrive(ctx, config.Source)
	if err != nil {
		startup.LogFatal("Failed to initialize file source: %v", err)
	}
	store, err := storage.New(ctx, config.Storage)
	if err != nil {
		startup.LogFatal("Failed to initialize object storage: %v", err)
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	worker := migration.NewWorker(db, files, store, transform)
	worker.SetGate(monitor)

	var scanner *migration.Scanner
	if config.ScanConfigured() {
		sheet, err := source.NewSheets(ctx, config.Source)
		if err != nil {
			startup.LogFatal("Failed to initialize catalogue source: %v", err)
		}
		scanner, err = migration.NewScanner(db, sheet, files, config.Scan)
		if err != nil {
			startup.LogFatal("Failed to initialize discovery scanner: %v", err)
		}
	}
	svc := migration.NewService(db, worker, scanner)

	startup.LogSchedulerInit(config.BatchInterval, config.ScanInterval, svc.ScanEnabled())
	sched, err := scheduler.New(svc, scheduler.Config{
		BatchInterval: config.BatchInterval,
		ScanInterval:  config.ScanInterval,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize scheduler: %v", err)
	}
	sched.Start()

	metrics.InitializeMetrics()
	build := startup.GetBuildInfo()
	metrics.SetAppInfo(build.Version, build.Commit, build.GoVersion)
	collector := metrics.NewCollector(&dbStatsAdapter{db: db}, db, metricsCollectInterval)
	collector.Start()

	h := handlers.New(svc, db, config.AdminToken)
	router := h.Router()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	startup.LogHTTPRoutes(router)

	handler := buildHandler(h, router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(h, config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleShutdown(srv, metricsSrv, sched, collector, monitor, db)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

// buildHandler wraps the router with authentication and request logging.
func buildHandler(h *handlers.Handlers, router *mux.Router, logHealthChecks bool) http.Handler {
	authed := h.AuthMiddleware(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = logHealthChecks
	return middleware.Logger(loggingConfig)(authed)
}

func newMetricsServer(h *handlers.Handlers, port string) *http.Server {
	mr := mux.NewRouter()
	mr.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	mr.HandleFunc("/health", h.LivenessCheck).Methods("GET", "HEAD")
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mr,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
}

// dbStatsAdapter reports the migration backlog to the metrics collector.
type dbStatsAdapter struct {
	db *database.Database
}

func (a *dbStatsAdapter) GetStats(ctx context.Context) (metrics.Stats, error) {
	counts, err := a.db.CountItems(ctx, "")
	if err != nil {
		return metrics.Stats{}, err
	}
	running, err := a.db.ListRunningTenants(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		NeverQueued:    counts.None,
		Pending:        counts.Pending,
		Processing:     counts.Processing,
		Done:           counts.Done,
		Error:          counts.Error,
		RunningTenants: len(running),
	}, nil
}

func handleShutdown(srv, metricsSrv *http.Server, sched *scheduler.Scheduler, collector *metrics.Collector, monitor *memory.Monitor, db *database.Database) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	// In-flight batches finish their items before the database closes.
	startup.LogShutdownStep("Stopping scheduler")
	if err := sched.Stop(ctx); err != nil {
		logging.Warn("Scheduler stop: %v", err)
	} else {
		startup.LogShutdownStepComplete("Scheduler stopped")
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Stopping memory monitor")
	monitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	media.ShutdownVips()

	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
