// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"z-image-ai-api/internal/domain/entity"
)

// OptimizerConfigRepository 优化器配置仓储实现
type OptimizerConfigRepository struct {
	client *Client
}

// NewOptimizerConfigRepository 创建优化器配置仓储
func NewOptimizerConfigRepository(client *Client) *OptimizerConfigRepository {
	return &OptimizerConfigRepository{client: client}
}

// Get 读取单例记录；不存在返回 (nil, nil)
func (r *OptimizerConfigRepository) Get(ctx context.Context) (*entity.PromptOptimizerConfig, error) {
	ctx, span := tracer.Start(ctx, "postgres.OptimizerConfigRepository.Get")
	defer span.End()

	var cfg entity.PromptOptimizerConfig
	err := getDB(ctx, r.client.db).
		Where("id = ?", entity.OptimizerConfigID).
		First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get optimizer config: %w", err)
	}
	return &cfg, nil
}

// Put 写入（upsert）单例记录
func (r *OptimizerConfigRepository) Put(ctx context.Context, cfg *entity.PromptOptimizerConfig) error {
	ctx, span := tracer.Start(ctx, "postgres.OptimizerConfigRepository.Put")
	defer span.End()

	cfg.ID = entity.OptimizerConfigID
	err := getDB(ctx, r.client.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(cfg).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to put optimizer config: %w", err)
	}
	return nil
}
