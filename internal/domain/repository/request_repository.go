// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-image-ai-api/internal/domain/entity"
)

// RequestFilter 生成请求过滤条件
type RequestFilter struct {
	ProjectID string
	Status    entity.RequestStatus
}

// RequestRepository 生成请求仓储接口
type RequestRepository interface {
	Create(ctx context.Context, req *entity.GenerationRequest) error
	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.GenerationRequest, error)
	// Update 基于版本号的乐观锁更新；版本不匹配返回 ErrVersionConflict
	Update(ctx context.Context, req *entity.GenerationRequest) error
	// SetCancelRequested 仅翻转取消标记，不触碰编排器拥有的字段
	SetCancelRequested(ctx context.Context, id string) error
	List(ctx context.Context, filter *RequestFilter, pagination Pagination) (*PagedResult[*entity.GenerationRequest], error)
	// CountActiveByJudge 统计引用某 Agent 的非终态请求数（删除守门用）
	CountActiveByJudge(ctx context.Context, agentID string) (int64, error)
}
