package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"buddy/backend/internal/adapter"
	"buddy/backend/internal/audit"
	"buddy/backend/internal/graph"
	"buddy/backend/internal/knowledge"
	"buddy/backend/internal/lock"
	"buddy/backend/internal/observability"
	"buddy/backend/internal/transcript"
	"buddy/backend/pkg/config"
	"buddy/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx := context.Background()

	// Neo4j
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	graphRepo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	defer graphRepo.Close(context.Background())

	// Postgres
	pool, err := transcript.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize dependencies
	metrics := observability.NewCollector("buddy")
	llmAdapter := adapter.NewLLMAdapter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.CompletionModel, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	transcripts := transcript.NewStore(pool)
	auditLog := audit.NewLog(rdb, cfg.AuditHistory)

	builder := knowledge.NewBuilder(
		transcripts,
		knowledge.NewExtractor(llmAdapter),
		knowledge.NewMerger(llmAdapter),
		graph.NewCompiler(llmAdapter),
		graphRepo,
		lock.NewRedisLocker(rdb, cfg.UserLockTTL, cfg.UserLockWait),
		metrics,
	)
	dispatcher := knowledge.NewDispatcher(builder, auditLog, metrics, cfg.KnowledgeBuildTimeout)
	searcher := knowledge.NewSearcher(llmAdapter, graphRepo, metrics, cfg.SearchThreshold)
	coach := knowledge.NewCoach(llmAdapter, llmAdapter, searcher, transcripts, dispatcher, metrics)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(&api{
		transcripts: transcripts,
		coach:       coach,
		dispatcher:  dispatcher,
		runs:        auditLog,
		searcher:    searcher,
		metrics:     metrics,
		log:         log,
	})

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("completion_model", llmAdapter.Model()))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Queued builds finish before the stores close
	log.Info("Waiting for knowledge builds...")
	dispatcher.Close()

	log.Info("Server exited")
}
