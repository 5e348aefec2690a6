// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 向量检索仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	AgentID     string
	QueryVector []float32
	TopK        int
}

// SearchResult 检索结果
// Score 为 COSINE 相似度（越大越相似）
type SearchResult struct {
	ID         string
	Score      float32
	DocumentID string
	ChunkIndex int64
	Content    string
}

// ChunkRecord 待插入的分块
type ChunkRecord struct {
	ID         string
	AgentID    string
	DocumentID string
	ChunkIndex int64
	Content    string
	Vector     []float32
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// EnsureAgentChunksCollection 确保 agent_chunks 集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureAgentChunksCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionAgentChunks)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, AgentChunksSchema(r.client.config.EmbeddingDim)); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionAgentChunks)
	}

	// 尝试确保集合已加载（若已加载，Milvus 会返回成功）
	return r.client.LoadCollection(ctx, CollectionAgentChunks)
}

// SearchChunks 按 agent_id 过滤检索分块
func (r *Repository) SearchChunks(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(
			attribute.String("agent_id", params.AgentID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionAgentChunks)
	filter := fmt.Sprintf(`agent_id == "%s"`, params.AgentID)

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		filter,
		[]string{"id", "document_id", "chunk_index", "content"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}
			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = idCol.Data()[i]
			}
			if docCol, ok := result.Fields.GetColumn("document_id").(*entity.ColumnVarChar); ok {
				sr.DocumentID = docCol.Data()[i]
			}
			if idxCol, ok := result.Fields.GetColumn("chunk_index").(*entity.ColumnInt64); ok {
				sr.ChunkIndex = idxCol.Data()[i]
			}
			if contentCol, ok := result.Fields.GetColumn("content").(*entity.ColumnVarChar); ok {
				sr.Content = contentCol.Data()[i]
			}
			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// InsertChunks 插入分块向量
func (r *Repository) InsertChunks(ctx context.Context, records []*ChunkRecord) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertChunks",
		trace.WithAttributes(attribute.Int("count", len(records))))
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	dim := r.client.config.EmbeddingDim
	if dim <= 0 {
		dim = DefaultVectorDimension
	}

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	agentIDs := make([]string, len(records))
	documentIDs := make([]string, len(records))
	chunkIndexes := make([]int64, len(records))
	contents := make([]string, len(records))

	for i, rec := range records {
		ids[i] = rec.ID
		vectors[i] = rec.Vector
		agentIDs[i] = rec.AgentID
		documentIDs[i] = rec.DocumentID
		chunkIndexes[i] = rec.ChunkIndex
		contents[i] = rec.Content
	}

	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", dim, vectors)
	agentCol := entity.NewColumnVarChar("agent_id", agentIDs)
	docCol := entity.NewColumnVarChar("document_id", documentIDs)
	idxCol := entity.NewColumnInt64("chunk_index", chunkIndexes)
	contentCol := entity.NewColumnVarChar("content", contents)

	collName := r.client.CollectionName(CollectionAgentChunks)
	_, err := r.client.milvus.Insert(ctx, collName, "",
		idCol, vectorCol, agentCol, docCol, idxCol, contentCol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return nil
}

// DeleteDocumentChunks 删除文档的全部分块向量
func (r *Repository) DeleteDocumentChunks(ctx context.Context, agentID, documentID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteDocumentChunks",
		trace.WithAttributes(
			attribute.String("agent_id", agentID),
			attribute.String("document_id", documentID),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionAgentChunks)
	filter := fmt.Sprintf(`agent_id == "%s" && document_id == "%s"`, agentID, documentID)

	err := r.client.milvus.Delete(ctx, collName, "", filter)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}
