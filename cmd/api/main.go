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
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/raglens/backend/internal/api/handlers"
	"github.com/raglens/backend/internal/cache/redis"
	"github.com/raglens/backend/internal/conversation"
	"github.com/raglens/backend/internal/evaluation/diagnosis"
	"github.com/raglens/backend/internal/evaluation/sampler"
	"github.com/raglens/backend/internal/evaluation/scoring"
	"github.com/raglens/backend/internal/ingestion"
	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/internal/middleware/ratelimit"
	"github.com/raglens/backend/internal/middleware/security"
	"github.com/raglens/backend/internal/middleware/validation"
	"github.com/raglens/backend/internal/provider"
	"github.com/raglens/backend/internal/rag"
	"github.com/raglens/backend/internal/retrieval"
	"github.com/raglens/backend/internal/storage/sqlite"
	"github.com/raglens/backend/internal/vector/milvus"
	"github.com/raglens/backend/pkg/config"
	appLogger "github.com/raglens/backend/pkg/logger"
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

	appLogger.Info("Starting RAGLens API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	milvusClient, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, cfg.Milvus.VectorDim)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.CreateCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	embedder := provider.NewEmbedder(cfg.Providers.Embedding)

	gateways := make(map[string]provider.Gateway)
	for _, id := range []string{"anthropic", "openai"} {
		gw, err := provider.New(cfg.Providers, id, "")
		if err != nil {
			appLogger.Fatal("Failed to create provider gateway", zap.String("provider", id), zap.Error(err))
		}
		gateways[gw.ID()] = gw
	}

	classifierGW, err := provider.New(cfg.Providers, cfg.Classifier.Provider, cfg.Classifier.Model)
	if err != nil {
		appLogger.Fatal("Failed to create classifier gateway", zap.Error(err))
	}
	classifier := conversation.NewClassifier(classifierGW, cfg.Classifier.MaxTokens)

	judgeGW, err := provider.New(cfg.Providers, cfg.Evaluation.JudgeProvider, cfg.Evaluation.JudgeModel)
	if err != nil {
		appLogger.Fatal("Failed to create judge gateway", zap.Error(err))
	}
	judge := scoring.NewJudge(judgeGW)

	retriever := retrieval.NewRetriever(embedder, milvusClient, redisClient)

	evalSampler, err := sampler.New(judge, sqliteClient, sampler.Config{
		SampleRate: cfg.Evaluation.SampleRate,
		Workers:    cfg.Evaluation.Workers,
		QueueSize:  cfg.Evaluation.QueueSize,
	})
	if err != nil {
		appLogger.Fatal("Failed to create evaluation sampler", zap.Error(err))
	}
	defer evalSampler.Close()

	orchestrator := rag.NewOrchestrator(
		classifier,
		retriever,
		gateways,
		cfg.Providers.Default,
		sqliteClient,
		evalSampler,
		cfg.Retrieval.TopK,
	)

	diagnosisGW, err := provider.New(cfg.Providers, "anthropic", cfg.Diagnosis.Model)
	if err != nil {
		appLogger.Fatal("Failed to create diagnosis gateway", zap.Error(err))
	}
	diagnosisAgent := diagnosis.NewAgent(sqliteClient, diagnosisGW, cfg.Diagnosis.WindowDays, cfg.Diagnosis.MinEvaluations)
	applier := diagnosis.NewApplier(orchestrator)

	processor := ingestion.NewProcessor(sqliteClient, milvusClient, embedder, cfg.Ingestion)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	chatHandler := handlers.NewChatHandler(orchestrator, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor, redisClient)
	evaluationHandler := handlers.NewEvaluationHandler(sqliteClient, orchestrator, judge)
	diagnosisHandler := handlers.NewDiagnosisHandler(diagnosisAgent, applier)

	api := app.Group("/api/v1")

	chat := api.Group("/chat")
	chat.Post("/query", chatHandler.HandleQuery)
	chat.Get("/history", chatHandler.GetHistory)
	chat.Get("/exchanges/:id", chatHandler.GetExchange)

	api.Post("/documents", documentHandler.UploadArticle)
	api.Post("/documents/cache/invalidate", documentHandler.InvalidateCache)

	evaluations := api.Group("/evaluations")
	evaluations.Post("/run", evaluationHandler.RunEvaluation)
	evaluations.Get("/", evaluationHandler.ListEvaluations)

	golden := api.Group("/golden")
	golden.Post("/", evaluationHandler.AddGoldenCase)
	golden.Get("/", evaluationHandler.ListGoldenCases)
	golden.Post("/run", evaluationHandler.RunGoldenEvaluation)

	diag := api.Group("/diagnosis")
	diag.Get("/report", diagnosisHandler.GetReport)
	diag.Get("/summary", diagnosisHandler.GetSummary)
	diag.Post("/actions/apply", diagnosisHandler.ApplyAction)

	app.Get("/metrics", metrics.MetricsHandler())

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
