// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"z-image-ai-api/internal/application/document"
	"z-image-ai-api/internal/domain/entity"
)

// UploadDocumentRequest 上传参考文档请求；内容为解析后的纯文本
type UploadDocumentRequest struct {
	Filename     string `json:"filename" binding:"required"`
	MimeType     string `json:"mime_type,omitempty"`
	Content      string `json:"content" binding:"required"`
	ChunkRunes   int    `json:"chunk_runes,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

// ToUploadInput 转换为应用层输入
func (r *UploadDocumentRequest) ToUploadInput(agentID string) *document.UploadInput {
	return &document.UploadInput{
		AgentID:      agentID,
		Filename:     r.Filename,
		MimeType:     r.MimeType,
		Content:      r.Content,
		ChunkRunes:   r.ChunkRunes,
		ChunkOverlap: r.ChunkOverlap,
	}
}

// DocumentResponse 文档响应；不回传分块正文，避免大响应体
type DocumentResponse struct {
	ID         string `json:"id"`
	AgentID    string `json:"agent_id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type,omitempty"`
	Version    int    `json:"version"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ToDocumentResponse 实体转响应
func ToDocumentResponse(doc *entity.AgentDocument) *DocumentResponse {
	return &DocumentResponse{
		ID:         doc.ID,
		AgentID:    doc.AgentID,
		Filename:   doc.Filename,
		MimeType:   doc.MimeType,
		Version:    doc.Version,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  doc.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// UploadDocumentResponse 上传结果响应
type UploadDocumentResponse struct {
	Document        *DocumentResponse `json:"document"`
	Replaced        bool              `json:"replaced"`
	ChunksIndexed   int               `json:"chunks_indexed,omitempty"`
	EmbeddingTokens int64             `json:"embedding_tokens,omitempty"`
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
}
