package milvus

import (
	"context"

	"z-image-ai-api/internal/application/retrieval"
)

// RetrievalVectorRepository 将 Milvus 仓储适配为应用层的向量 port
type RetrievalVectorRepository struct {
	repo *Repository
}

func NewRetrievalVectorRepository(repo *Repository) *RetrievalVectorRepository {
	return &RetrievalVectorRepository{repo: repo}
}

var _ retrieval.VectorRepository = (*RetrievalVectorRepository)(nil)

func (r *RetrievalVectorRepository) EnsureChunkCollection(ctx context.Context) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.EnsureAgentChunksCollection(ctx)
}

func (r *RetrievalVectorRepository) SearchChunks(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorChunkHit, error) {
	if r == nil || r.repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	out, err := r.repo.SearchChunks(ctx, &SearchParams{
		AgentID:     params.AgentID,
		QueryVector: params.QueryVector,
		TopK:        params.TopK,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]*retrieval.VectorChunkHit, 0, len(out))
	for _, h := range out {
		if h == nil {
			continue
		}
		hits = append(hits, &retrieval.VectorChunkHit{
			ChunkID:    h.ID,
			DocumentID: h.DocumentID,
			ChunkIndex: int(h.ChunkIndex),
			Content:    h.Content,
			// COSINE 检索返回相似度，换算为距离供上层统一处理
			Distance: 1 - h.Score,
		})
	}
	return hits, nil
}

func (r *RetrievalVectorRepository) InsertChunks(ctx context.Context, chunks []*retrieval.VectorChunk) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	if len(chunks) == 0 {
		return nil
	}

	records := make([]*ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		records = append(records, &ChunkRecord{
			ID:         c.ChunkID,
			AgentID:    c.AgentID,
			DocumentID: c.DocumentID,
			ChunkIndex: int64(c.ChunkIndex),
			Content:    c.Content,
			Vector:     c.Vector,
		})
	}
	return r.repo.InsertChunks(ctx, records)
}

func (r *RetrievalVectorRepository) DeleteDocumentChunks(ctx context.Context, agentID, documentID string) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.DeleteDocumentChunks(ctx, agentID, documentID)
}
