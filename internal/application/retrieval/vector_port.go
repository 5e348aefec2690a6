package retrieval

import "context"

// VectorRepository 定义应用层对"向量存储/检索"的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorRepository interface {
	EnsureChunkCollection(ctx context.Context) error
	SearchChunks(ctx context.Context, params *VectorSearchParams) ([]*VectorChunkHit, error)
	InsertChunks(ctx context.Context, chunks []*VectorChunk) error
	DeleteDocumentChunks(ctx context.Context, agentID, documentID string) error
}

// VectorSearchParams 向量检索参数
type VectorSearchParams struct {
	AgentID     string
	QueryVector []float32
	TopK        int
}

// VectorChunkHit 向量检索命中
// Distance 为余弦距离（COSINE: distance = 1 - cos）
type VectorChunkHit struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Distance   float32
}

// VectorChunk 待写入的分块向量
type VectorChunk struct {
	ChunkID    string
	AgentID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Vector     []float32
}
