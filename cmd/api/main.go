package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plexwatch/histview/internal/cache"
	"github.com/plexwatch/histview/internal/config"
	"github.com/plexwatch/histview/internal/history"
	"github.com/plexwatch/histview/internal/loader"
	"github.com/plexwatch/histview/internal/logging"
	"github.com/plexwatch/histview/internal/metrics"
	"github.com/plexwatch/histview/internal/middleware"
	"github.com/plexwatch/histview/internal/storage"
	"github.com/plexwatch/histview/internal/tracing"
	"github.com/plexwatch/histview/pkg/models"
)

// API carries the wired collaborators for the HTTP surface. The core
// pipeline lives behind the history service; handlers only parse query
// parameters, call it, and render the result.
type API struct {
	svc    *history.Service
	store  *storage.Store
	cfg    *config.Config
	logger *logging.Logger
}

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	// Initialize tracing
	_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	// Materialize the snapshot once; the service is read-only afterwards
	svc, err := buildService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to load watch history: %v", err)
	}

	// Optional query result cache
	if cfg.Redis.Enabled {
		resultCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer resultCache.Close()
		svc.EnableCache(resultCache, cfg.History.CacheTTL)
		logger.Info("Query result cache enabled")
	}

	// Optional export store
	var store *storage.Store
	if cfg.Storage.Enabled {
		store, err = storage.New(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to initialize export store: %v", err)
		}
		logger.Info("Export store enabled")
	}

	api := &API{
		svc:    svc,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}

	// Setup router
	router := setupRouter(api)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

// buildService materializes the raw history from the configured source
// and normalizes it into the immutable snapshot the service queries.
func buildService(cfg *config.Config, logger *logging.Logger) (*history.Service, error) {
	start := time.Now()

	var (
		rows      []models.RawRow
		datasetID string
		err       error
	)

	switch cfg.History.Source {
	case "csv":
		rows, datasetID, err = loader.LoadCSV(cfg.History.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load csv history: %w", err)
		}
	case "postgres":
		pg, perr := loader.NewPostgres(cfg.Database)
		if perr != nil {
			return nil, fmt.Errorf("failed to connect to history database: %w", perr)
		}
		defer pg.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		rows, datasetID, err = pg.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load postgres history: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown history source %q", cfg.History.Source)
	}

	events, err := history.Normalize(rows)
	if err != nil {
		return nil, err
	}

	malformed := history.CountMalformed(events)
	elapsed := time.Since(start)
	logger.LogDatasetLoad(cfg.History.Source, datasetID, len(rows), malformed, elapsed)
	metrics.RecordDatasetLoad(cfg.History.Source, len(rows), malformed, elapsed.Seconds())

	return history.NewService(events, datasetID, logger.WithDataset(datasetID)), nil
}

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(api.logger))

	// Health check and metrics
	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	if api.cfg.Auth.Enabled {
		v1.Use(middleware.Auth(api.cfg.Auth.APIKey))
	}
	v1.Use(middleware.RateLimit(middleware.NewRateLimiter(
		api.cfg.Server.RateLimitRPS, api.cfg.Server.RateLimitBurst)))
	{
		// Filter options for the interactive surface
		v1.GET("/filters", api.getFilterOptions)

		// Raw history table
		v1.GET("/history", api.getHistory)

		// Summaries
		v1.GET("/dashboard", api.getDashboard)
		v1.GET("/summary/monthly", api.getMonthlySummary)
		v1.GET("/summary/yearly", api.getYearlySummary)
		v1.GET("/summary/users", api.getUserSummary)
		v1.GET("/summary/shows", api.getShowSummary)
		v1.GET("/summary/hourly", api.getHourlySummary)
		v1.GET("/summary/weekday", api.getWeekdaySummary)
		v1.GET("/heatmap", api.getHeatmap)

		// Persisted export runs (store=true uploads)
		v1.GET("/exports/:runID", api.listExports)
		v1.GET("/exports/:runID/:filename", api.downloadExport)
		v1.DELETE("/exports/:runID/:filename", api.deleteExport)
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"dataset_id": api.svc.DatasetID(),
		"events":     len(api.svc.Events()),
	})
}
