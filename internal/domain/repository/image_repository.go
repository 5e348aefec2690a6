// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-image-ai-api/internal/domain/entity"
)

// ImageRepository 生成图像元数据仓储接口
type ImageRepository interface {
	CreateBatch(ctx context.Context, images []*entity.GeneratedImage) error
	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.GeneratedImage, error)
	ListByRequest(ctx context.Context, requestID string) ([]*entity.GeneratedImage, error)
	// UpdateScore 评审后回写候选图的聚合分
	UpdateScore(ctx context.Context, id string, score float64) error
}
