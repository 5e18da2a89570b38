// runs-service is the HTTP API server for orchestrating spike sorting runs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sortruns/internal/api"
	"sortruns/internal/backend/awsbatch"
	"sortruns/internal/backend/localworker"
	"sortruns/internal/catalog"
	"sortruns/internal/config"
	"sortruns/internal/dispatch"
	"sortruns/internal/health"
	"sortruns/internal/objectstore"
	"sortruns/internal/observability"
	"sortruns/internal/run"
	"sortruns/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := runService(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func runService() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	dbCfg := store.ConfigFromEnv()
	dispatchCfg := dispatch.LoadConfigFromEnv()
	localCfg := localworker.LoadConfigFromEnv()
	batchCfg := awsbatch.LoadConfigFromEnv()
	logStoreCfg := objectstore.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open the database and apply the schema
	db, err := store.Open(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		return err
	}
	repo := store.NewPostgres(db)
	slog.Info("Connected to database")

	// Local Docker backend is always available
	local, err := localworker.New(localCfg)
	if err != nil {
		return err
	}
	backends := []run.Backend{local}

	healthChecker := health.NewChecker()
	healthChecker.Register("database", repo)
	healthChecker.RegisterOptional(local.Target(), local)

	// AWS Batch backend is optional: it needs a provisioned queue and
	// job definition.
	if batchCfg.Enabled() {
		var logStore awsbatch.RunLogStore
		if logStoreCfg.Enabled() {
			s3Store, err := objectstore.New(ctx, logStoreCfg)
			if err != nil {
				return err
			}
			logStore = s3Store
		}

		batch, err := awsbatch.New(ctx, batchCfg, logStore)
		if err != nil {
			return err
		}
		backends = append(backends, batch)
		healthChecker.RegisterOptional(batch.Target(), batch)
		slog.Info("AWS Batch backend enabled", "jobQueue", batchCfg.JobQueue)
	} else {
		slog.Info("AWS Batch backend disabled - no job queue configured")
	}

	// Background dispatcher for backend submissions
	runner := dispatch.NewRunner(dispatchCfg, slog.Default())

	// Sample queue depth for the saturation gauge
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.RecordDispatchQueueDepth(ctx, int64(runner.Stats().QueueDepth))
		}
	}()

	// Run lifecycle coordinator
	runService, err := run.NewService(run.Config{
		Repository: repo,
		Backends:   backends,
		Resolver:   catalog.NewResolver(catalog.LoadConfigFromEnv()),
		Dispatcher: runner,
		Metrics:    metrics,
		Username:   svcCfg.DefaultUsername,
	})
	if err != nil {
		return err
	}

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		RunService:    runService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Drain queued backend submissions
	slog.Info("Draining dispatch queue")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := runner.Close(drainCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	// Log final dispatcher stats
	stats := runner.Stats()
	slog.Info("Dispatcher stats",
		"executed", stats.Executed,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
		"breakersOpen", stats.BreakersOpen,
	)

	// Submitted runs continue on their substrates; their outcome is
	// recorded at the next status query.
	slog.Info("Shutdown complete")
	return nil
}
