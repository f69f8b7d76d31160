package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/config"
	"github.com/opsflow/opsflow/pkg/docstatus"
	"github.com/opsflow/opsflow/pkg/engine"
	"github.com/opsflow/opsflow/pkg/handlers"
	"github.com/opsflow/opsflow/pkg/notify"
	"github.com/opsflow/opsflow/pkg/queue"
	"github.com/opsflow/opsflow/pkg/resolver"
	"github.com/opsflow/opsflow/pkg/store/clickhouse"
	"github.com/opsflow/opsflow/pkg/store/postgres"
	redisclient "github.com/opsflow/opsflow/pkg/store/redis"
)

// noopEngine is the built-in engine for definitions whose business logic
// lives entirely in the surrounding application.
type noopEngine struct{}

func (noopEngine) HandleStatusChange(ctx context.Context, workflowID uuid.UUID, status string) error {
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	rdb, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.NotificationTopic,
		Balancer: &kafka.LeastBytes{},
		Async:    false,
	})
	defer writer.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.DeadLetterTopic,
		Balancer: &kafka.LeastBytes{},
		Async:    false,
	})
	defer dlqWriter.Close()

	workerID := cfg.Worker.WorkerID
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	eventRepo := postgres.NewEventRepository(db.DB())
	documentRepo := postgres.NewWorkflowDocumentRepository(db.DB())
	definitionRepo := postgres.NewDefinitionRepository(db.DB())
	workflowRepo := postgres.NewWorkflowRepository(db.DB())

	registry := engine.NewRegistry()
	if err := registry.Register("noop", noopEngine{}); err != nil {
		logger.Fatal("failed to register engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineIDs, err := definitionRepo.ListEngineIDs(ctx)
	if err != nil {
		logger.Fatal("failed to list engine ids", zap.Error(err))
	}
	if err := registry.Validate(engineIDs); err != nil {
		logger.Fatal("workflow definitions reference unregistered engines", zap.Error(err))
	}

	notifier := notify.NewNotifier(
		writer,
		dlqWriter,
		notify.NewRedisDeduper(rdb.Client()),
		logger,
		cfg.Worker.NotifyDedupTTL,
	)

	processor := queue.NewProcessor(eventRepo, workerID, cfg.Worker.MaxProcessingAttempts, logger)

	deps := handlers.Deps{
		Workflows:   workflowRepo,
		Documents:   documentRepo,
		Definitions: definitionRepo,
		Resolver:    resolver.NewResolver(definitionRepo, documentRepo, logger),
		Machine:     docstatus.NewMachine(docstatus.Policy{AllowResubmission: cfg.Worker.AllowResubmission}),
		Engines:     registry,
		Notifier:    notifier,
		Logger:      logger,
	}
	if err := handlers.RegisterAll(processor, deps); err != nil {
		logger.Fatal("failed to register event handlers", zap.Error(err))
	}

	var audit queue.AuditSink
	if cfg.Clickhouse.Enabled {
		auditStore, err := clickhouse.NewAuditStore(
			cfg.Clickhouse.Addr,
			cfg.Clickhouse.Database,
			cfg.Clickhouse.Username,
			cfg.Clickhouse.Password,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to connect to clickhouse", zap.Error(err))
		}
		defer auditStore.Close()
		if err := auditStore.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure clickhouse schema", zap.Error(err))
		}
		audit = auditStore
	}

	worker := queue.NewWorker(eventRepo, processor, notifier, audit, logger, queue.WorkerConfig{
		WorkerID:          workerID,
		BatchSize:         cfg.Worker.BatchSize,
		PollInterval:      cfg.Worker.PollInterval,
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
	})

	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("event worker stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("worker shutting down")
}
