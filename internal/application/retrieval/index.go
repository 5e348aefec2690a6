package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"z-image-ai-api/pkg/metrics"
)

const (
	// overfetchFactor 从向量库多取候选，保证阈值过滤和确定性排序后仍能填满 TopK
	overfetchFactor = 4
	minFetchK       = 16
	maxFetchK       = 256
)

// Index 按 Agent 维度回答 top-K 相似度查询
type Index struct {
	embedder embedding.Embedder
	vector   VectorRepository
}

// NewIndex 创建检索索引
func NewIndex(embedder embedding.Embedder, vectorRepo VectorRepository) *Index {
	return &Index{
		embedder: embedder,
		vector:   vectorRepo,
	}
}

// Enabled 检索能力是否可用
func (i *Index) Enabled() bool {
	return i != nil && i.vector != nil
}

// Query 对指定 Agent 的全部文档分块执行相似度检索。
// similarity = 1 - cosine_distance；低于阈值的分块被过滤；
// 相似度降序，并列按 chunk_index 升序、document_id 升序保证确定性；
// 没有分块过阈不是错误，返回空列表。
func (i *Index) Query(ctx context.Context, in QueryInput) (*QueryOutput, error) {
	if !i.Enabled() {
		return nil, ErrVectorDisabled
	}
	if strings.TrimSpace(in.AgentID) == "" {
		return nil, fmt.Errorf("agent_id is required")
	}
	if in.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive")
	}
	if err := i.vector.EnsureChunkCollection(ctx); err != nil {
		metrics.RetrievalQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	out := &QueryOutput{}

	vec := in.QueryVector
	if len(vec) == 0 {
		var err error
		var tokens int64
		vec, tokens, err = i.EmbedQuery(ctx, in.QueryText)
		if err != nil {
			metrics.RetrievalQueriesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		out.EmbeddingTokens = tokens
	}

	fetchK := in.TopK * overfetchFactor
	if fetchK < minFetchK {
		fetchK = minFetchK
	}
	if fetchK > maxFetchK {
		fetchK = maxFetchK
	}

	hits, err := i.vector.SearchChunks(ctx, &VectorSearchParams{
		AgentID:     in.AgentID,
		QueryVector: vec,
		TopK:        fetchK,
	})
	if err != nil {
		metrics.RetrievalQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	matches := make([]ChunkMatch, 0, len(hits))
	for _, h := range hits {
		if h == nil {
			continue
		}
		sim := 1 - float64(h.Distance)
		if sim < in.SimilarityThreshold {
			continue
		}
		matches = append(matches, ChunkMatch{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Content:    h.Content,
			ChunkIndex: h.ChunkIndex,
			Similarity: sim,
		})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		if matches[a].ChunkIndex != matches[b].ChunkIndex {
			return matches[a].ChunkIndex < matches[b].ChunkIndex
		}
		return matches[a].DocumentID < matches[b].DocumentID
	})

	if len(matches) > in.TopK {
		matches = matches[:in.TopK]
	}
	out.Matches = matches

	metrics.RetrievalQueriesTotal.WithLabelValues("ok").Inc()
	metrics.RetrievalChunksReturned.Observe(float64(len(matches)))
	return out, nil
}

// EmbedQuery 将查询文本向量化，返回向量和 token 估算
func (i *Index) EmbedQuery(ctx context.Context, text string) ([]float32, int64, error) {
	if i == nil || i.embedder == nil {
		return nil, 0, ErrVectorDisabled
	}
	q := strings.TrimSpace(text)
	if q == "" {
		return nil, 0, fmt.Errorf("query text is empty")
	}
	v64, err := i.embedder.EmbedStrings(ctx, []string{q})
	if err != nil {
		return nil, 0, err
	}
	if len(v64) == 0 {
		return nil, 0, fmt.Errorf("empty embedding result")
	}
	vec := v64[0]
	out := make([]float32, 0, len(vec))
	for _, x := range vec {
		out = append(out, float32(x))
	}
	return out, estimateTokens(q), nil
}

// estimateTokens 不经 tokenizer 的粗估：平均每 4 字节一个 token
func estimateTokens(text string) int64 {
	n := int64(len(text)+3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
