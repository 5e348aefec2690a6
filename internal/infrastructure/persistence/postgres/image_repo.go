// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"z-image-ai-api/internal/domain/entity"
)

// ImageRepository 生成图像元数据仓储实现
type ImageRepository struct {
	client *Client
}

// NewImageRepository 创建图像仓储
func NewImageRepository(client *Client) *ImageRepository {
	return &ImageRepository{client: client}
}

// CreateBatch 批量创建候选图记录
func (r *ImageRepository) CreateBatch(ctx context.Context, images []*entity.GeneratedImage) error {
	ctx, span := tracer.Start(ctx, "postgres.ImageRepository.CreateBatch")
	defer span.End()

	if len(images) == 0 {
		return nil
	}
	if err := getDB(ctx, r.client.db).Create(images).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create images: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取图像；未找到返回 (nil, nil)
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*entity.GeneratedImage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ImageRepository.GetByID")
	defer span.End()

	var img entity.GeneratedImage
	err := getDB(ctx, r.client.db).Where("id = ?", id).First(&img).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return &img, nil
}

// ListByRequest 列出请求的全部候选图，按迭代升序
func (r *ImageRepository) ListByRequest(ctx context.Context, requestID string) ([]*entity.GeneratedImage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ImageRepository.ListByRequest")
	defer span.End()

	var images []*entity.GeneratedImage
	err := getDB(ctx, r.client.db).
		Where("request_id = ?", requestID).
		Order("iteration_number ASC, created_at ASC").
		Find(&images).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

// UpdateScore 回写候选图的聚合分
func (r *ImageRepository) UpdateScore(ctx context.Context, id string, score float64) error {
	ctx, span := tracer.Start(ctx, "postgres.ImageRepository.UpdateScore")
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(&entity.GeneratedImage{}).
		Where("id = ?", id).
		Update("aggregate_score", score)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update image score: %w", res.Error)
	}
	return nil
}
