package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/api"
	"github.com/medagent-orchestrator/internal/audit"
	"github.com/medagent-orchestrator/internal/confidence"
	"github.com/medagent-orchestrator/internal/config"
	"github.com/medagent-orchestrator/internal/database"
	"github.com/medagent-orchestrator/internal/domain"
	"github.com/medagent-orchestrator/internal/llm"
	"github.com/medagent-orchestrator/internal/reliability"
	"github.com/medagent-orchestrator/internal/repository"
	"github.com/medagent-orchestrator/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting diagnosis orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reliability store with optional persistence.
	var storeOpts []reliability.Option
	switch cfg.Reliability.Persistence {
	case "sqlite":
		persister, err := reliability.NewSQLiteStore(cfg.Reliability.SQLitePath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open sqlite reliability store")
		}
		defer persister.Close()
		storeOpts = append(storeOpts, reliability.WithPersistence(persister))
	case "postgres":
		persister, err := reliability.NewPostgresStoreFromURL(cfg.Reliability.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open postgres reliability store")
		}
		defer persister.Close()
		storeOpts = append(storeOpts, reliability.WithPersistence(persister))
	}
	if cfg.Reliability.HistoryCapacity > 0 {
		storeOpts = append(storeOpts, reliability.WithHistoryCapacity(cfg.Reliability.HistoryCapacity))
	}
	reliabilityStore := reliability.NewStore(logger, storeOpts...)
	if err := reliabilityStore.LoadPersisted(ctx); err != nil {
		logger.WithError(err).Warn("Could not load persisted reliability records")
	}

	// Inference backend.
	var backend domain.AgentBackend
	switch cfg.Inference.Backend {
	case "http":
		backend = llm.NewHTTPBackend(llm.HTTPBackendConfig{
			BaseURL:   cfg.Inference.BaseURL,
			APIKey:    cfg.Inference.APIKey,
			Model:     cfg.Inference.Model,
			MaxTokens: cfg.Inference.MaxTokens,
			Timeout:   cfg.Inference.Timeout,
			RateLimit: cfg.Inference.RateLimit,
		}, logger)
	default:
		logger.Warn("Using stub inference backend; configure inference.backend=http for production")
		backend = llm.NewStubBackend()
	}

	// Optional Redis client for the audit stream.
	var redisClient *redis.Client
	if cfg.Cache.RedisEnabled {
		redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid Redis URL")
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable; audit stream disabled")
			redisClient = nil
		}
	}

	orchestratorOpts := []service.OrchestratorOption{
		service.WithCacheSize(cfg.Cache.ResultCacheSize),
	}
	if cfg.Audit.Enabled {
		var streamClient *redis.Client
		if cfg.Audit.RedisStream {
			streamClient = redisClient
		}
		orchestratorOpts = append(orchestratorOpts,
			service.WithAuditLogger(audit.NewLogger(logger, streamClient)))
	}

	// Optional diagnosis archive.
	var feedbackRecorder api.FeedbackRecorder
	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to archive database")
		}
		defer db.Close()

		migrationRunner, err := database.NewMigrationRunner(
			configManager.GetDatabaseConnectionString(), "./migrations", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create migration runner")
		}
		if err := migrationRunner.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to run archive migrations")
		}
		migrationRunner.Close()

		archive := repository.NewDiagnosisRepository(db.Pool, logger)
		orchestratorOpts = append(orchestratorOpts, service.WithArchive(archive))
		feedbackRecorder = archive
	}

	invoker := service.NewInvoker(backend, service.NewPromptBuilder(), service.NewParserRegistry(), logger,
		service.WithBatchTimeout(cfg.Orchestrator.BatchTimeout))
	orchestrator := service.NewOrchestrator(
		service.NewSelector(logger),
		invoker,
		confidence.NewAggregator(logger, reliabilityStore),
		service.NewConsolidator(logger),
		service.NewSafetyValidator(logger),
		reliabilityStore,
		logger,
		orchestratorOpts...,
	)

	var serverOpts []api.ServerOption
	if feedbackRecorder != nil {
		serverOpts = append(serverOpts, api.WithFeedbackRecorder(feedbackRecorder))
	}
	server := api.NewServer(cfg, orchestrator, reliabilityStore, logger, serverOpts...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}
	return logger
}
