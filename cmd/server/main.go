package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/api"
	"github.com/ai-diagnostics-service/internal/audit"
	"github.com/ai-diagnostics-service/internal/config"
	"github.com/ai-diagnostics-service/internal/database"
	"github.com/ai-diagnostics-service/internal/domain"
	"github.com/ai-diagnostics-service/internal/repository"
	"github.com/ai-diagnostics-service/internal/service"
	"github.com/ai-diagnostics-service/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := buildLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting diagnostic AI orchestration service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.Fatalf("Failed to create migration runner: %v", err)
	}
	if err := migrator.Up(ctx); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	migrator.Close()

	cache, err := external.NewCacheClient(cfg.Cache)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, interaction caching degraded to memory only")
		cache = nil
	} else {
		defer cache.Close()
	}

	interactionChecker, err := external.NewResilientInteractionChecker(
		external.NewInteractionClient(cfg.Interactions, logger),
		cache,
		cfg.Cache.MemorySize,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create interaction checker: %v", err)
	}

	records := external.NewRecordsClient(cfg.Records, logger)
	reasoner := external.NewReasoningClient(cfg.Reasoning, logger)

	orchestrator := service.NewOrchestrator(
		service.NewConsentGate(cfg.Pipeline.ConsentOverride, logger),
		service.NewPatientDataAggregator(records, records, logger),
		reasoner,
		service.NewInteractionCrossChecker(interactionChecker, cfg.Pipeline.SkipInteractionCheck, logger),
		repository.NewDiagnosticRequestRepository(db.Pool, logger),
		repository.NewDiagnosticResultRepository(db.Pool, logger),
		audit.NewLogger(logger),
		cfg,
		logger,
	)

	server := api.NewServer(configManager, orchestrator, db)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}

// buildLogger configures the application logger from config
func buildLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}
