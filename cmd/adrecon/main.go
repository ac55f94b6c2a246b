package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidemetrics/adrecon/internal/attribution"
	"github.com/tidemetrics/adrecon/internal/bus"
	"github.com/tidemetrics/adrecon/internal/config"
	"github.com/tidemetrics/adrecon/internal/database"
	"github.com/tidemetrics/adrecon/internal/httpserver"
	"github.com/tidemetrics/adrecon/internal/ingest"
	"github.com/tidemetrics/adrecon/internal/metrics"
	"github.com/tidemetrics/adrecon/internal/recon"
	"github.com/tidemetrics/adrecon/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting adrecon",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	// Initialize database connections
	var db *database.PostgresDB

	// Try to connect to PostgreSQL
	db, err = database.NewPostgresDB(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
		logger.Info("connected to PostgreSQL")
	}

	// Try to connect to Redis
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis not available, snapshot caching disabled", zap.Error(err))
		redisDB = nil
	} else {
		defer redisDB.Close()
		logger.Info("connected to Redis")
	}

	// Try to connect to ClickHouse (spend archive)
	var archive storage.SpendArchive
	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(cfg.ClickHouse)
		if err != nil {
			logger.Warn("ClickHouse not available, spend archive disabled", zap.Error(err))
		} else {
			defer ch.Close()
			archive = storage.NewClickHouseSpendArchive(ch.Conn, cfg.ClickHouse.Table)
			logger.Info("connected to ClickHouse")
		}
	}

	// Initialize repositories
	var stores recon.Stores
	if db != nil {
		stores = recon.Stores{
			Spend:      storage.NewPostgresSpendStore(db.Pool),
			Deliveries: storage.NewPostgresDeliveryStore(db.Pool),
			Rates:      storage.NewPostgresRateRepo(db.Pool),
			Finance:    storage.NewPostgresFinanceStore(db.Pool),
			Products:   storage.NewPostgresProductRepo(db.Pool),
		}
	} else {
		stores = recon.Stores{
			Spend:      storage.NewInMemorySpendStore(),
			Deliveries: storage.NewInMemoryDeliveryStore(),
			Rates:      storage.NewInMemoryRateRepo(),
			Finance:    storage.NewInMemoryFinanceStore(),
			Products:   storage.NewInMemoryProductRepo(),
		}
	}

	m := metrics.NewMetrics("adrecon")
	changeBus := bus.New()
	defer changeBus.Close()

	var cache *redis.Client
	if redisDB != nil {
		cache = redisDB.Client
	}

	classifier := attribution.NewClassifier(attribution.DefaultCountryTable()).
		WithProductPatterns(cfg.Engine.ProductPatterns)
	coordinator := recon.NewCoordinator(recon.Config{
		UserScope:      cfg.Engine.UserScope,
		DebounceWindow: cfg.Engine.DebounceWindow,
		DefaultRate:    cfg.Engine.DefaultRate,
		SnapshotTTL:    cfg.Engine.SnapshotTTL,
	}, stores, classifier, changeBus, cache, m, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go coordinator.Run(runCtx)

	// Publish an initial snapshot once the loop is up.
	coordinator.Trigger("startup")

	importer := ingest.NewImporter(stores.Spend, stores.Finance, archive, changeBus, m, logger)
	deliveryEditor := ingest.NewDeliveryEditor(stores.Deliveries, changeBus)

	// Create HTTP server
	deps := &httpserver.Dependencies{
		Coordinator: coordinator,
		Importer:    importer,
		Deliveries:  deliveryEditor,
		Classifier:  classifier,
		Stores:      stores,
		Bus:         changeBus,
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
	}

	handler := httpserver.NewServer(deps)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	cancelRun()
	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	// Set log level
	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
