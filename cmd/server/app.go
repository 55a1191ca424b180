package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/semaphore"

	"github.com/lexfold/alchemy-api/internal/batch"
	"github.com/lexfold/alchemy-api/internal/cache"
	"github.com/lexfold/alchemy-api/internal/config"
	"github.com/lexfold/alchemy-api/internal/operation"
	"github.com/lexfold/alchemy-api/internal/platform/gemini"
	"github.com/lexfold/alchemy-api/internal/platform/postgres"
	"github.com/lexfold/alchemy-api/internal/processor"
	"github.com/lexfold/alchemy-api/internal/service"
	"github.com/lexfold/alchemy-api/internal/webhook"
	"github.com/lexfold/alchemy-api/internal/worker"
)

// application holds the shared application dependencies so startup and
// shutdown can manage them in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	resultCache cache.ResultCache
	cacheCloser io.Closer
	janitor     *cache.Janitor

	dispatcher  *webhook.Dispatcher
	coordinator *batch.Coordinator
	pool        *worker.Pool

	jobService *service.JobService
}

// newApplication wires every dependency from configuration: database,
// cache, LLM client, processor registry, operation pipeline, worker pool
// and the webhook machinery.
func newApplication(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*application, error) {
	db, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, appLogger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	jobStore := postgres.NewPostgresJobStore(db, appLogger)
	batchStore := postgres.NewPostgresBatchStore(db, appLogger)

	resultCache, cacheCloser, err := setupCache(ctx, cfg, appLogger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	janitor := cache.NewJanitor(resultCache, cfg.Cache.MaxAge, cfg.Cache.CleanupInterval, appLogger)

	llmClient, err := gemini.NewClient(ctx, appLogger, cfg.LLM)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	registry := processor.NewRegistry(
		processor.NewTranslation(llmClient),
		processor.NewTranscription(llmClient),
		processor.NewExtraction(llmClient),
		processor.NewRendering(llmClient),
	)

	// The pipeline is assembled inside out: the base operation executes the
	// processor once, retrying adds backoff for transient failures, caching
	// short-circuits repeat work, and tracking records every invocation.
	var op operation.Operation = operation.NewProcessorOperation(registry)
	op = operation.NewRetryingOperation(op, operation.RetryPolicy{
		MaxAttempts:    cfg.Worker.MaxRetries + 1,
		BaseDelay:      cfg.Worker.RetryBaseDelay,
		MaxDelay:       cfg.Worker.RetryMaxDelay,
		AttemptTimeout: cfg.Worker.OperationTimeout,
	}, appLogger)
	op = operation.NewCachingOperation(op, registry, resultCache, appLogger)
	op = operation.NewTrackingOperation(op, appLogger)

	dispatcher := webhook.NewDispatcher(cfg.Webhook, jobStore, batchStore, appLogger)
	coordinator := batch.NewCoordinator(jobStore, batchStore, dispatcher, appLogger)

	permit := semaphore.NewWeighted(int64(cfg.Worker.MaxConcurrentTasks))
	pool := worker.NewPool(
		jobStore,
		op,
		permit,
		worker.Config{PollInterval: cfg.Worker.PollInterval},
		dispatcher,
		coordinator,
		appLogger,
	)

	jobService := service.NewJobService(jobStore, batchStore, registry, dispatcher, coordinator, appLogger)

	return &application{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		resultCache: resultCache,
		cacheCloser: cacheCloser,
		janitor:     janitor,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		pool:        pool,
		jobService:  jobService,
	}, nil
}

// setupDatabase opens the connection pool and verifies connectivity.
func setupDatabase(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Info("Database connection established")
	return db, nil
}

// setupCache selects the cache backend. A configured Redis address gets
// the shared Redis cache; otherwise the engine runs with the in-process
// cache, which is fine for a single instance.
func setupCache(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (cache.ResultCache, io.Closer, error) {
	if cfg.Cache.RedisAddr == "" {
		appLogger.Info("Using in-memory result cache")
		return cache.NewMemoryCache(), nil, nil
	}

	redisCache, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, appLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	appLogger.Info("Using Redis result cache", "addr", cfg.Cache.RedisAddr)
	return redisCache, redisCache, nil
}

// run starts the background components and serves HTTP until a shutdown
// signal arrives. Background components are stopped in reverse order so
// in-flight jobs settle before their dependencies go away.
func (app *application) run(ctx context.Context) error {
	app.janitor.Start()
	app.pool.Start()

	err := app.startHTTPServer(ctx, app.setupRouter())

	app.pool.Stop()
	app.janitor.Stop()
	app.cleanup()

	return err
}

// cleanup releases connections held by the application.
func (app *application) cleanup() {
	if app.cacheCloser != nil {
		if err := app.cacheCloser.Close(); err != nil {
			app.logger.Error("Failed to close cache", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database connection", "error", err)
		}
	}
}
