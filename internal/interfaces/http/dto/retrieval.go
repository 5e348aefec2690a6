// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"z-image-ai-api/internal/application/retrieval"
)

// RetrievalQueryRequest 检索调试请求
type RetrievalQueryRequest struct {
	AgentID             string  `json:"agent_id" binding:"required"`
	Query               string  `json:"query" binding:"required"`
	TopK                int     `json:"top_k,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// ChunkMatchResponse 命中分块
type ChunkMatchResponse struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// RetrievalQueryResponse 检索调试响应
type RetrievalQueryResponse struct {
	Matches         []*ChunkMatchResponse `json:"matches"`
	EmbeddingTokens int64                 `json:"embedding_tokens"`
}

// ToRetrievalQueryResponse 检索输出转响应
func ToRetrievalQueryResponse(out *retrieval.QueryOutput) *RetrievalQueryResponse {
	matches := make([]*ChunkMatchResponse, 0, len(out.Matches))
	for i := range out.Matches {
		m := out.Matches[i]
		matches = append(matches, &ChunkMatchResponse{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			ChunkIndex: m.ChunkIndex,
			Content:    m.Content,
			Similarity: m.Similarity,
		})
	}
	return &RetrievalQueryResponse{
		Matches:         matches,
		EmbeddingTokens: out.EmbeddingTokens,
	}
}
