// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-image-ai-api/internal/domain/entity"
)

// AgentFilter Agent 过滤条件
type AgentFilter struct {
	Status    entity.AgentStatus
	AgentType entity.AgentType
	CanJudge  *bool
}

// AgentRepository Agent 仓储接口
type AgentRepository interface {
	Create(ctx context.Context, agent *entity.Agent) error
	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Agent, error)
	// GetByIDs 按给定顺序返回存在的 Agent；缺失的 ID 被跳过
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Agent, error)
	Update(ctx context.Context, agent *entity.Agent) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter *AgentFilter, pagination Pagination) (*PagedResult[*entity.Agent], error)
}
