package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/cache"
	"github.com/lendvoice/question-engine/pkg/config"
	"github.com/lendvoice/question-engine/pkg/database"
	"github.com/lendvoice/question-engine/pkg/handlers"
	"github.com/lendvoice/question-engine/pkg/logging"
	"github.com/lendvoice/question-engine/pkg/metrics"
	"github.com/lendvoice/question-engine/pkg/middleware"
	"github.com/lendvoice/question-engine/pkg/queue"
	"github.com/lendvoice/question-engine/pkg/registry"
	"github.com/lendvoice/question-engine/pkg/repositories"
	"github.com/lendvoice/question-engine/pkg/retry"
	"github.com/lendvoice/question-engine/pkg/rules"
	"github.com/lendvoice/question-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("config_root", cfg.ConfigRoot),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis", cfg.Redis.Host),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

// run performs the warmup sequence (registry+engine, Postgres, Redis, Kafka,
// HTTP) and tears the dependencies down in reverse order on SIGTERM.
func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Rule compilation is fatal on any malformed criteria or descriptor;
	// nothing is served from a partially loaded registry.
	engine := rules.NewEngine(logger, m)
	reg, err := registry.Load(cfg.ConfigRoot, engine, logger)
	if err != nil {
		return err
	}
	engine.Seal()
	logger.Info("question registry loaded",
		zap.Int("questions", reg.QuestionCount()),
		zap.Int("rules", engine.RuleCount()))

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &cfg.Database)
	})
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(&cfg.Redis)
	})
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	publisher, err := queue.NewKafkaPublisher(&cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	repo := repositories.NewLoanRepository(db, cfg.Evaluator.QueryTimeout())
	loader := services.NewStateLoader(repo, reg, logger)
	stateCache := cache.New(
		cache.NewRedisStore(redisClient),
		loader,
		cfg.Redis.TTL(),
		cfg.Evaluator.CacheTimeout(),
		logger,
		m,
	)
	evaluator := services.NewEvaluator(reg, engine, cfg.Evaluator.Budget(), logger, m)
	builder := services.NewQueueBuilder(reg)
	svc := services.NewQuestionService(stateCache, evaluator, builder, reg, publisher, logger, m)

	mux := http.NewServeMux()
	healthHandler := handlers.NewHealthHandler(cfg, engine, logger)
	healthHandler.RegisterRoutes(mux)
	handlers.NewQuestionsHandler(svc, logger).RegisterRoutes(mux)
	handlers.NewMetricsHandler(m, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger, m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting question-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	healthHandler.SetReady(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Drain: stop admitting traffic, then let in-flight requests finish
	// before the deferred dependency teardown runs in reverse order.
	healthHandler.SetReady(false)
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	return nil
}
