// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"z-image-ai-api/internal/domain/entity"
)

// DocumentRepository Agent 文档仓储实现
type DocumentRepository struct {
	client *Client
}

// NewDocumentRepository 创建文档仓储
func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// Create 创建文档
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.AgentDocument) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取文档；未找到返回 (nil, nil)
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.AgentDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	var doc entity.AgentDocument
	err := getDB(ctx, r.client.db).Where("id = ?", id).First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// GetByAgentAndFilename 上传即替换的查找入口；未找到返回 (nil, nil)
func (r *DocumentRepository) GetByAgentAndFilename(ctx context.Context, agentID, filename string) (*entity.AgentDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByAgentAndFilename")
	defer span.End()

	var doc entity.AgentDocument
	err := getDB(ctx, r.client.db).
		Where("agent_id = ? AND filename = ?", agentID, filename).
		First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document by filename: %w", err)
	}
	return &doc, nil
}

// Update 更新文档
func (r *DocumentRepository) Update(ctx context.Context, doc *entity.AgentDocument) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Update")
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(&entity.AgentDocument{}).
		Where("id = ?", doc.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(doc)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update document: %w", res.Error)
	}
	return nil
}

// Delete 删除文档
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Delete")
	defer span.End()

	if err := getDB(ctx, r.client.db).Delete(&entity.AgentDocument{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListByAgent 列出 Agent 的全部文档
func (r *DocumentRepository) ListByAgent(ctx context.Context, agentID string) ([]*entity.AgentDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListByAgent")
	defer span.End()

	var docs []*entity.AgentDocument
	err := getDB(ctx, r.client.db).
		Where("agent_id = ?", agentID).
		Order("filename ASC").
		Find(&docs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// CountByAgent 统计 Agent 的文档数
func (r *DocumentRepository) CountByAgent(ctx context.Context, agentID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.CountByAgent")
	defer span.End()

	var count int64
	err := getDB(ctx, r.client.db).
		Model(&entity.AgentDocument{}).
		Where("agent_id = ?", agentID).
		Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
