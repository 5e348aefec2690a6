// Package main 精炼循环执行器入口（refine-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"z-image-ai-api/internal/application/generation"
	"z-image-ai-api/internal/application/optimizer"
	"z-image-ai-api/internal/application/panel"
	"z-image-ai-api/internal/application/pricing"
	"z-image-ai-api/internal/application/retrieval"
	"z-image-ai-api/internal/config"
	"z-image-ai-api/internal/domain/repository"
	embeddinginfra "z-image-ai-api/internal/infrastructure/embedding"
	"z-image-ai-api/internal/infrastructure/imagegen"
	"z-image-ai-api/internal/infrastructure/llm"
	"z-image-ai-api/internal/infrastructure/messaging"
	"z-image-ai-api/internal/infrastructure/persistence/milvus"
	"z-image-ai-api/internal/infrastructure/persistence/postgres"
	redisinfra "z-image-ai-api/internal/infrastructure/persistence/redis"
	einoobs "z-image-ai-api/internal/observability/eino"
	wfchain "z-image-ai-api/internal/workflow/chain"
	"z-image-ai-api/pkg/logger"
	"z-image-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "refine-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	// 评审与提示词合成都经由 Eino 调用 LLM
	einoobs.Init()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	log := logger.FromContext(ctx)

	// Milvus 不可用时评审不带 RAG 依据，降级运行
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Warn("milvus unavailable, judges run without grounding", "error", err)
		milvusClient = nil
	} else {
		defer func() { _ = milvusClient.Close() }()
	}

	requestRepo := postgres.NewRequestRepository(pgClient)
	imageRepo := postgres.NewImageRepository(pgClient)
	optimizerConfigRepo := postgres.NewOptimizerConfigRepository(pgClient)

	cache := redisinfra.NewCache(redisClient)
	var agentRepo repository.AgentRepository = redisinfra.NewCachedAgentRepository(
		postgres.NewAgentRepository(pgClient), cache)

	var index *retrieval.Index
	if milvusClient != nil {
		embedder, err := embeddinginfra.NewEinoEmbedder(ctx, &cfg.Embedding)
		if err != nil {
			log.Warn("embedder unavailable, judges run without grounding", "error", err)
		} else {
			vectorRepo := milvus.NewRetrievalVectorRepository(milvus.NewRepository(milvusClient))
			index = retrieval.NewIndex(embedder, vectorRepo)
		}
	}

	factory := llm.NewEinoFactory(cfg)
	panelSvc := panel.NewPanel(agentRepo, index, wfchain.NewJudgeChain(factory), factory, cfg.Refinement.JudgeTimeout)
	synthesizer := optimizer.NewSynthesizer(optimizerConfigRepo, wfchain.NewOptimizeChain(factory))

	generator, err := imagegen.NewClient(&cfg.ImageGen)
	if err != nil {
		logger.Fatal(ctx, "failed to init image generation client", err)
	}

	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	events := messaging.NewEventPublisher(redisClient.Redis(), producer)

	orchestrator := generation.NewOrchestrator(
		requestRepo, imageRepo, panelSvc, synthesizer, generator, events,
		pricing.NewTable(&cfg.Pricing), cfg.Refinement.MinScoreGain,
	)

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamImageRefine,
		Group:         messaging.ConsumerGroupRefineWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MsgTypeRefineJob, func(msgCtx context.Context, msg *messaging.Message) error {
		var payload messaging.RefineJobMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		if payload.RequestID == "" {
			return fmt.Errorf("refine job missing request_id")
		}
		// Run 对终态请求是无操作，消息重复投递安全
		return orchestrator.Run(msgCtx, payload.RequestID)
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	go consumer.MonitorDLQ(ctx, 10)

	log.Info("refine-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("refine-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
