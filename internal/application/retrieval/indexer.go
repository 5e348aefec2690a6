package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/pkg/metrics"
)

const defaultEmbeddingBatch = 32

// Indexer 将 Agent 文档分块写入向量索引
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorRepository

	embeddingBatchSize int
}

// NewIndexer 创建文档索引器
func NewIndexer(embedder embedding.Embedder, vectorRepo VectorRepository, embeddingBatchSize int) *Indexer {
	bs := embeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	return &Indexer{
		embedder:           embedder,
		vector:             vectorRepo,
		embeddingBatchSize: bs,
	}
}

// Enabled 索引能力是否可用
func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

// IndexDocument 向量化文档分块并写入索引。
// 替换上传时先删除该文档的旧向量，新分块写入后对在途查询最终可见。
func (i *Indexer) IndexDocument(ctx context.Context, doc *entity.AgentDocument) (*IndexStats, error) {
	if !i.Enabled() {
		return nil, ErrVectorDisabled
	}
	if doc == nil || len(doc.Chunks) == 0 {
		return nil, fmt.Errorf("document has no chunks")
	}
	if err := i.vector.EnsureChunkCollection(ctx); err != nil {
		return nil, err
	}
	if err := i.vector.DeleteDocumentChunks(ctx, doc.AgentID, doc.ID); err != nil {
		return nil, err
	}

	stats := &IndexStats{}
	for start := 0; start < len(doc.Chunks); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(doc.Chunks) {
			end = len(doc.Chunks)
		}
		batch := doc.Chunks[start:end]

		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.Content)
		}
		vectors, err := i.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
		}

		records := make([]*VectorChunk, 0, len(batch))
		for j, c := range batch {
			chunkID := strings.TrimSpace(c.ID)
			if chunkID == "" {
				chunkID = uuid.NewString()
				doc.Chunks[start+j].ID = chunkID
			}
			vec := make([]float32, 0, len(vectors[j]))
			for _, x := range vectors[j] {
				vec = append(vec, float32(x))
			}
			records = append(records, &VectorChunk{
				ChunkID:    chunkID,
				AgentID:    doc.AgentID,
				DocumentID: doc.ID,
				ChunkIndex: c.ChunkIndex,
				Content:    c.Content,
				Vector:     vec,
			})
			stats.EmbeddingTokens += estimateTokens(c.Content)
		}

		if err := i.vector.InsertChunks(ctx, records); err != nil {
			return nil, fmt.Errorf("failed to insert chunk vectors: %w", err)
		}
		stats.ChunksIndexed += len(records)
	}

	metrics.EmbeddingTokensUsed.WithLabelValues("index").Add(float64(stats.EmbeddingTokens))
	return stats, nil
}

// RemoveDocument 删除文档的全部向量
func (i *Indexer) RemoveDocument(ctx context.Context, agentID, documentID string) error {
	if i == nil || i.vector == nil {
		return ErrVectorDisabled
	}
	return i.vector.DeleteDocumentChunks(ctx, agentID, documentID)
}
