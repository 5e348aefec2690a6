// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-image-ai-api/internal/domain/entity"
)

// OptimizerConfigRepository 提示词优化器配置仓储接口
type OptimizerConfigRepository interface {
	// Get 读取单例记录；不存在时返回 (nil, nil)
	Get(ctx context.Context) (*entity.PromptOptimizerConfig, error)
	// Put 写入（upsert）单例记录
	Put(ctx context.Context, cfg *entity.PromptOptimizerConfig) error
}
