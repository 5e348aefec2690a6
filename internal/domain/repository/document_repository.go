// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-image-ai-api/internal/domain/entity"
)

// DocumentRepository Agent 文档仓储接口
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.AgentDocument) error
	// GetByID 未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.AgentDocument, error)
	// GetByAgentAndFilename 未找到时返回 (nil, nil)；上传即替换的查找入口
	GetByAgentAndFilename(ctx context.Context, agentID, filename string) (*entity.AgentDocument, error)
	Update(ctx context.Context, doc *entity.AgentDocument) error
	Delete(ctx context.Context, id string) error
	ListByAgent(ctx context.Context, agentID string) ([]*entity.AgentDocument, error)
	// CountByAgent 判断 Agent 是否持有参考资料（决定评审是否走检索）
	CountByAgent(ctx context.Context, agentID string) (int64, error)
}
