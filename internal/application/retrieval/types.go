package retrieval

// QueryInput 检索输入
// TopK/SimilarityThreshold 为零值时回退到 Agent 的 RAGConfig 默认值
type QueryInput struct {
	AgentID             string
	QueryText           string
	QueryVector         []float32
	TopK                int
	SimilarityThreshold float64
}

// ChunkMatch 命中的文档分块
type ChunkMatch struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkIndex int
	Similarity float64
}

// QueryOutput 检索输出
type QueryOutput struct {
	Matches []ChunkMatch

	// EmbeddingTokens 本次查询向量化消耗的 token 估算（QueryVector 直供时为 0）
	EmbeddingTokens int64
}

// IndexStats 单次文档索引的统计
type IndexStats struct {
	ChunksIndexed   int
	EmbeddingTokens int64
}
