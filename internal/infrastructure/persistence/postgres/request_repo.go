// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	apperrors "z-image-ai-api/pkg/errors"
)

// RequestRepository 生成请求仓储实现
type RequestRepository struct {
	client *Client
}

// NewRequestRepository 创建生成请求仓储
func NewRequestRepository(client *Client) *RequestRepository {
	return &RequestRepository{client: client}
}

// Create 创建生成请求
func (r *RequestRepository) Create(ctx context.Context, req *entity.GenerationRequest) error {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(req).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create generation request: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取生成请求；未找到返回 (nil, nil)
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.GenerationRequest, error) {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.GetByID")
	defer span.End()

	var req entity.GenerationRequest
	err := getDB(ctx, r.client.db).Where("id = ?", id).First(&req).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get generation request: %w", err)
	}
	return &req, nil
}

// Update 乐观锁更新：版本号匹配才写入，写入后版本号递增
func (r *RequestRepository) Update(ctx context.Context, req *entity.GenerationRequest) error {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.Update")
	defer span.End()

	currentVersion := req.Version
	req.Version++

	res := getDB(ctx, r.client.db).
		Model(&entity.GenerationRequest{}).
		Where("id = ? AND version = ?", req.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(req)
	if res.Error != nil {
		span.RecordError(res.Error)
		req.Version = currentVersion
		return fmt.Errorf("failed to update generation request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		req.Version = currentVersion
		return apperrors.ErrVersionConflict.WithDetail(req.ID)
	}
	return nil
}

// SetCancelRequested 只翻转取消标记；不触碰版本号，避免与编排器的写入冲突
func (r *RequestRepository) SetCancelRequested(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.SetCancelRequested")
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(&entity.GenerationRequest{}).
		Where("id = ?", id).
		Update("cancel_requested", true)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to set cancel_requested: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrRequestNotFound.WithDetail(id)
	}
	return nil
}

// List 按过滤条件分页列出生成请求
func (r *RequestRepository) List(ctx context.Context, filter *repository.RequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.List")
	defer span.End()

	q := getDB(ctx, r.client.db).Model(&entity.GenerationRequest{})
	if filter != nil {
		if filter.ProjectID != "" {
			q = q.Where("project_id = ?", filter.ProjectID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count generation requests: %w", err)
	}

	var items []*entity.GenerationRequest
	err := q.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&items).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list generation requests: %w", err)
	}

	return repository.NewPagedResult(items, total, pagination), nil
}

// CountActiveByJudge 统计引用某 Agent 的非终态请求数
func (r *RequestRepository) CountActiveByJudge(ctx context.Context, agentID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.CountActiveByJudge")
	defer span.End()

	var count int64
	err := getDB(ctx, r.client.db).
		Model(&entity.GenerationRequest{}).
		Where("? = ANY(judge_ids)", agentID).
		Where("status NOT IN ?", []entity.RequestStatus{
			entity.RequestStatusCompleted,
			entity.RequestStatusFailed,
			entity.RequestStatusCancelled,
		}).
		Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count active requests by judge: %w", err)
	}
	return count, nil
}
