// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"time"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	"z-image-ai-api/pkg/logger"
)

// agentCacheTTL Agent 定义变更低频，短 TTL 兜底写路径失效遗漏
const agentCacheTTL = 5 * time.Minute

// CachedAgentRepository AgentRepository 的读穿透缓存装饰器。
// 评审面板每轮都按 ID 解析评委，缓存 Agent 定义避免热点查询；
// 写路径先落库再失效缓存。
type CachedAgentRepository struct {
	inner repository.AgentRepository
	cache *Cache
}

// NewCachedAgentRepository 创建带缓存的 Agent 仓储
func NewCachedAgentRepository(inner repository.AgentRepository, cache *Cache) *CachedAgentRepository {
	return &CachedAgentRepository{
		inner: inner,
		cache: cache,
	}
}

// Create 创建 Agent
func (r *CachedAgentRepository) Create(ctx context.Context, agent *entity.Agent) error {
	return r.inner.Create(ctx, agent)
}

// GetByID 读穿透查询；未命中时回源并回填
func (r *CachedAgentRepository) GetByID(ctx context.Context, id string) (*entity.Agent, error) {
	var loadErr error
	data, err := r.cache.GetOrLoadSafe(ctx, BuildAgentKey(id), agentCacheTTL, func() (interface{}, error) {
		agent, err := r.inner.GetByID(ctx, id)
		if err != nil {
			loadErr = err
			return nil, err
		}
		// 不缓存空值，避免放大删除后的不一致窗口
		if agent == nil {
			return nil, errAgentCacheMiss
		}
		return agent, nil
	})
	if err != nil {
		if err == errAgentCacheMiss {
			return nil, nil
		}
		if loadErr != nil {
			return nil, loadErr
		}
		// 缓存故障降级回源
		logger.Warn(ctx, "agent cache read failed, falling back to store", "agent_id", id, "error", err.Error())
		return r.inner.GetByID(ctx, id)
	}

	var agent entity.Agent
	if err := json.Unmarshal(data, &agent); err != nil {
		return r.inner.GetByID(ctx, id)
	}
	return &agent, nil
}

// GetByIDs 按给定顺序返回存在的 Agent；逐个走缓存
func (r *CachedAgentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Agent, error) {
	out := make([]*entity.Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			out = append(out, agent)
		}
	}
	return out, nil
}

// Update 更新 Agent 并失效缓存
func (r *CachedAgentRepository) Update(ctx context.Context, agent *entity.Agent) error {
	if err := r.inner.Update(ctx, agent); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, BuildAgentKey(agent.ID)); err != nil {
		logger.Warn(ctx, "failed to invalidate agent cache", "agent_id", agent.ID, "error", err.Error())
	}
	return nil
}

// Delete 删除 Agent 并失效缓存
func (r *CachedAgentRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, BuildAgentKey(id)); err != nil {
		logger.Warn(ctx, "failed to invalidate agent cache", "agent_id", id, "error", err.Error())
	}
	return nil
}

// List 列表查询不走缓存
func (r *CachedAgentRepository) List(ctx context.Context, filter *repository.AgentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Agent], error) {
	return r.inner.List(ctx, filter, pagination)
}

// errAgentCacheMiss 标记回源结果为空，避免缓存空值
var errAgentCacheMiss = &agentCacheMissError{}

type agentCacheMissError struct{}

func (*agentCacheMissError) Error() string { return "agent not found" }

var _ repository.AgentRepository = (*CachedAgentRepository)(nil)
