// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
)

// AgentRepository Agent 仓储实现
type AgentRepository struct {
	client *Client
}

// NewAgentRepository 创建 Agent 仓储
func NewAgentRepository(client *Client) *AgentRepository {
	return &AgentRepository{client: client}
}

// Create 创建 Agent
func (r *AgentRepository) Create(ctx context.Context, agent *entity.Agent) error {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(agent).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取 Agent；未找到返回 (nil, nil)
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*entity.Agent, error) {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.GetByID")
	defer span.End()

	var agent entity.Agent
	err := getDB(ctx, r.client.db).Where("id = ?", id).First(&agent).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

// GetByIDs 按给定顺序返回存在的 Agent；缺失的 ID 被跳过
func (r *AgentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Agent, error) {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	var agents []*entity.Agent
	err := getDB(ctx, r.client.db).Where("id IN ?", ids).Find(&agents).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get agents by ids: %w", err)
	}

	byID := make(map[string]*entity.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	out := make([]*entity.Agent, 0, len(agents))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Update 更新 Agent
func (r *AgentRepository) Update(ctx context.Context, agent *entity.Agent) error {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.Update")
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(&entity.Agent{}).
		Where("id = ?", agent.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(agent)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update agent: %w", res.Error)
	}
	return nil
}

// Delete 删除 Agent
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.Delete")
	defer span.End()

	if err := getDB(ctx, r.client.db).Delete(&entity.Agent{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return nil
}

// List 按过滤条件分页列出 Agent
func (r *AgentRepository) List(ctx context.Context, filter *repository.AgentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Agent], error) {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.List")
	defer span.End()

	q := getDB(ctx, r.client.db).Model(&entity.Agent{})
	if filter != nil {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.AgentType != "" {
			q = q.Where("capabilities->>'agent_type' = ?", string(filter.AgentType))
		}
		if filter.CanJudge != nil {
			q = q.Where("(capabilities->>'can_judge')::boolean = ?", *filter.CanJudge)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count agents: %w", err)
	}

	var items []*entity.Agent
	err := q.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&items).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	return repository.NewPagedResult(items, total, pagination), nil
}
