// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	agentapp "z-image-ai-api/internal/application/agent"
	"z-image-ai-api/internal/application/document"
	"z-image-ai-api/internal/application/generation"
	"z-image-ai-api/internal/application/panel"
	"z-image-ai-api/internal/application/pricing"
	"z-image-ai-api/internal/application/retrieval"
	"z-image-ai-api/internal/config"
	"z-image-ai-api/internal/domain/repository"
	embeddinginfra "z-image-ai-api/internal/infrastructure/embedding"
	"z-image-ai-api/internal/infrastructure/llm"
	"z-image-ai-api/internal/infrastructure/messaging"
	"z-image-ai-api/internal/infrastructure/persistence/milvus"
	"z-image-ai-api/internal/infrastructure/persistence/postgres"
	redisinfra "z-image-ai-api/internal/infrastructure/persistence/redis"
	"z-image-ai-api/internal/interfaces/http/handler"
	"z-image-ai-api/internal/interfaces/http/router"
	einoobs "z-image-ai-api/internal/observability/eino"
	wfchain "z-image-ai-api/internal/workflow/chain"
	"z-image-ai-api/pkg/logger"
	"z-image-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 初始化 Eino 全局 callbacks（指标/追踪/日志）
	einoobs.Init()

	// PostgreSQL
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer func() {
		if err := pgClient.Close(); err != nil {
			log.Error("failed to close postgres", "error", err)
		}
	}()

	// Redis
	redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis", "error", err)
		}
	}()

	// Milvus 不可用时检索能力降级，不阻塞启动
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Warn("milvus unavailable, retrieval disabled", "error", err)
		milvusClient = nil
	} else {
		defer func() {
			if err := milvusClient.Close(); err != nil {
				log.Error("failed to close milvus", "error", err)
			}
		}()
	}

	// 仓储
	requestRepo := postgres.NewRequestRepository(pgClient)
	imageRepo := postgres.NewImageRepository(pgClient)
	docRepo := postgres.NewDocumentRepository(pgClient)
	optimizerConfigRepo := postgres.NewOptimizerConfigRepository(pgClient)

	cache := redisinfra.NewCache(redisClient)
	var agentRepo repository.AgentRepository = redisinfra.NewCachedAgentRepository(
		postgres.NewAgentRepository(pgClient), cache)

	// 检索：Embedding + Milvus 同时可用才启用
	var (
		index   *retrieval.Index
		indexer *retrieval.Indexer
	)
	if milvusClient != nil {
		embedder, err := embeddinginfra.NewEinoEmbedder(ctx, &cfg.Embedding)
		if err != nil {
			log.Warn("embedder unavailable, retrieval disabled", "error", err)
		} else {
			vectorRepo := milvus.NewRetrievalVectorRepository(milvus.NewRepository(milvusClient))
			index = retrieval.NewIndex(embedder, vectorRepo)
			indexer = retrieval.NewIndexer(embedder, vectorRepo, cfg.Embedding.BatchSize)
		}
	}

	// LLM 与评审面板
	factory := llm.NewEinoFactory(cfg)
	judgeChain := wfchain.NewJudgeChain(factory)
	panelSvc := panel.NewPanel(agentRepo, index, judgeChain, factory, cfg.Refinement.JudgeTimeout)

	// 消息队列（入队精炼任务）
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))

	// 应用服务
	pricingTable := pricing.NewTable(&cfg.Pricing)
	generationSvc := generation.NewService(
		requestRepo, imageRepo, panelSvc, producer, pricingTable,
		cfg.Refinement.MaxIterationsCap, cfg.Refinement.MaxImagesPerGeneration,
	)
	agentSvc := agentapp.NewService(agentRepo, requestRepo, postgres.NewTxManager(pgClient))
	documentSvc := document.NewService(agentRepo, docRepo, indexer)

	// HTTP 层
	handlers := &router.Handlers{
		Health:     handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Generation: handler.NewGenerationHandler(generationSvc),
		Agent:      handler.NewAgentHandler(agentSvc),
		Document:   handler.NewDocumentHandler(documentSvc),
		Retrieval:  handler.NewRetrievalHandler(index),
		Optimizer:  handler.NewOptimizerHandler(optimizerConfigRepo),
	}
	r := router.New(cfg, handlers, redisinfra.NewRateLimiter(redisClient))

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
