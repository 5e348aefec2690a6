// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"
)

// DocumentChunk 文档分块
// 向量写入 Milvus，文本和元数据随文档 JSONB 落库
type DocumentChunk struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	Page       int       `json:"page,omitempty"`
	Section    string    `json:"section,omitempty"`
	Embedding  []float32 `json:"-"`
}

// AgentDocument Agent 参考资料文档
type AgentDocument struct {
	ID         string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AgentID    string          `json:"agent_id" gorm:"type:uuid;index;not null"`
	Filename   string          `json:"filename" gorm:"type:varchar(512);not null"`
	MimeType   string          `json:"mime_type,omitempty" gorm:"type:varchar(100)"`
	Version    int             `json:"version" gorm:"default:1"`
	Chunks     []DocumentChunk `json:"chunks" gorm:"type:jsonb;serializer:json"`
	ChunkCount int             `json:"chunk_count" gorm:"default:0"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (AgentDocument) TableName() string {
	return "agent_documents"
}

// NewAgentDocument 创建新文档，保证 ChunkCount 与 Chunks 一致
func NewAgentDocument(agentID, filename, mimeType string, chunks []DocumentChunk) (*AgentDocument, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document must have at least one chunk")
	}
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return &AgentDocument{
		AgentID:    agentID,
		Filename:   filename,
		MimeType:   mimeType,
		Version:    1,
		Chunks:     chunks,
		ChunkCount: len(chunks),
	}, nil
}

// Replace 以新的分块替换内容，版本号递增
func (d *AgentDocument) Replace(chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("document must have at least one chunk")
	}
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	d.Chunks = chunks
	d.ChunkCount = len(chunks)
	d.Version++
	return nil
}
