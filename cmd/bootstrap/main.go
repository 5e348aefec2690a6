// Package main 系统初始化入口：建表、向量集合与默认配置
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"z-image-ai-api/internal/config"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/infrastructure/persistence/milvus"
	"z-image-ai-api/internal/infrastructure/persistence/postgres"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. PostgreSQL 建表
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	fmt.Println("Migrating database schema...")
	if err := pgClient.DB().WithContext(ctx).AutoMigrate(
		&entity.GenerationRequest{},
		&entity.GeneratedImage{},
		&entity.Agent{},
		&entity.AgentDocument{},
		&entity.PromptOptimizerConfig{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 3. Milvus 向量集合（可选，不可用时跳过）
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		fmt.Printf("Milvus unavailable, skipping collection setup: %v\n", err)
	} else {
		defer func() { _ = milvusClient.Close() }()
		fmt.Println("Ensuring vector collection...")
		if err := milvus.NewRepository(milvusClient).EnsureAgentChunksCollection(ctx); err != nil {
			log.Fatalf("failed to ensure vector collection: %v", err)
		}
	}

	// 4. 默认提示词优化器配置
	optimizerConfigRepo := postgres.NewOptimizerConfigRepository(pgClient)
	existing, err := optimizerConfigRepo.Get(ctx)
	if err != nil {
		log.Fatalf("failed to check optimizer config: %v", err)
	}
	if existing == nil {
		fmt.Println("Seeding default optimizer config...")
		if err := optimizerConfigRepo.Put(ctx, entity.DefaultPromptOptimizerConfig()); err != nil {
			log.Fatalf("failed to seed optimizer config: %v", err)
		}
	} else {
		fmt.Println("Optimizer config already present.")
	}

	fmt.Println("Bootstrap completed successfully.")
}
