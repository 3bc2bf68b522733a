package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/api/handlers"
	"github.com/summaid/backend/internal/cache/redis"
	"github.com/summaid/backend/internal/chat"
	"github.com/summaid/backend/internal/edits"
	"github.com/summaid/backend/internal/ingestion"
	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/internal/middleware/ratelimit"
	"github.com/summaid/backend/internal/middleware/security"
	"github.com/summaid/backend/internal/middleware/validation"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/internal/safety"
	"github.com/summaid/backend/internal/storage/sqlite"
	"github.com/summaid/backend/internal/summarize"
	"github.com/summaid/backend/internal/vector/milvus"
	"github.com/summaid/backend/pkg/config"
	appLogger "github.com/summaid/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting clinical summary API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure vector collection", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// The cache only saves embedding calls; the service runs without it.
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			llmClient.SetEmbeddingCache(redisClient)
			appLogger.Info("Embedding cache enabled")
		}
	}

	processor := ingestion.NewProcessor(
		sqliteClient,
		milvus.IngestStore{Client: milvusClient},
		llmClient,
		cfg.Ingestion.ChunkSize,
	)
	retriever := retrieval.NewRetriever(llmClient, milvus.SearchIndex{Client: milvusClient})
	overlay := edits.NewOverlay(sqliteClient)

	engine := summarize.NewEngine(retriever, llmClient, sqliteClient, summarize.EngineOptions{
		RequiredTimeout: time.Duration(cfg.Summarize.RequiredTimeoutSec) * time.Second,
		OptionalTimeout: time.Duration(cfg.Summarize.OptionalTimeoutSec) * time.Second,
		MaxChunks:       cfg.Retrieval.MaxChunks,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	})
	checker := safety.NewChecker(sqliteClient, overlay, cfg.Safety.AllergyKeywords)
	answerer := chat.NewAnswerer(retriever, llmClient, overlay, sqliteClient,
		cfg.Retrieval.MaxChunks, cfg.Retrieval.MaxContextChars)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Clinician-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	documentHandler := handlers.NewDocumentHandler(processor)
	summaryHandler := handlers.NewSummaryHandler(engine)
	chatHandler := handlers.NewChatHandler(answerer)
	safetyHandler := handlers.NewSafetyHandler(checker)
	editsHandler := handlers.NewEditsHandler(overlay)
	wsHandler := handlers.NewWebSocketHandler(answerer)

	api := app.Group("/api/v1")

	api.Post("/documents", documentHandler.HandleIngest)
	api.Get("/documents/:id/chunks", documentHandler.HandleGetChunks)

	api.Post("/patients/:id/summarize", summaryHandler.HandleSummarize)
	api.Get("/patients/:id/summary", summaryHandler.HandleGetSummary)

	api.Post("/patients/:id/chat", chatHandler.HandleAsk)
	api.Get("/patients/:id/chat/history", chatHandler.HandleGetHistory)

	api.Post("/patients/:id/safety-check", safetyHandler.HandleCheck)

	api.Post("/patients/:id/edits", editsHandler.HandleAppend)
	api.Get("/patients/:id/edits", editsHandler.HandleGetEdits)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat/:patientID", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
