package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors [][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeVectorRepo struct {
	hits      []*VectorChunkHit
	searchErr error
	ensureErr error

	lastParams *VectorSearchParams
	inserted   []*VectorChunk
	deleted    [][2]string
}

func (f *fakeVectorRepo) EnsureChunkCollection(_ context.Context) error { return f.ensureErr }

func (f *fakeVectorRepo) SearchChunks(_ context.Context, params *VectorSearchParams) ([]*VectorChunkHit, error) {
	f.lastParams = params
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeVectorRepo) InsertChunks(_ context.Context, chunks []*VectorChunk) error {
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeVectorRepo) DeleteDocumentChunks(_ context.Context, agentID, documentID string) error {
	f.deleted = append(f.deleted, [2]string{agentID, documentID})
	return nil
}

func hit(chunkID, docID string, idx int, distance float32) *VectorChunkHit {
	return &VectorChunkHit{ChunkID: chunkID, DocumentID: docID, ChunkIndex: idx, Content: "c-" + chunkID, Distance: distance}
}

func TestIndexQuery_ThresholdAndOrdering(t *testing.T) {
	repo := &fakeVectorRepo{hits: []*VectorChunkHit{
		hit("c1", "doc-b", 3, 0.10), // similarity 0.90
		hit("c2", "doc-a", 1, 0.30), // similarity 0.70
		hit("c3", "doc-a", 0, 0.10), // similarity 0.90, same score as c1 but lower chunk index
		hit("c4", "doc-a", 2, 0.85), // similarity 0.15, filtered out
	}}
	idx := NewIndex(&fakeEmbedder{}, repo)

	out, err := idx.Query(context.Background(), QueryInput{
		AgentID:             "agent-1",
		QueryText:           "style guide",
		TopK:                10,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, out.Matches, 3)

	// Descending similarity; ties break on ascending chunk index
	assert.Equal(t, "c3", out.Matches[0].ChunkID)
	assert.Equal(t, "c1", out.Matches[1].ChunkID)
	assert.Equal(t, "c2", out.Matches[2].ChunkID)
	assert.InDelta(t, 0.9, out.Matches[0].Similarity, 1e-6)
	assert.Positive(t, out.EmbeddingTokens)
}

func TestIndexQuery_TieBreakOnDocumentID(t *testing.T) {
	repo := &fakeVectorRepo{hits: []*VectorChunkHit{
		hit("c1", "doc-b", 0, 0.2),
		hit("c2", "doc-a", 0, 0.2),
	}}
	idx := NewIndex(&fakeEmbedder{}, repo)

	out, err := idx.Query(context.Background(), QueryInput{AgentID: "agent-1", QueryText: "q", TopK: 2})
	require.NoError(t, err)
	require.Len(t, out.Matches, 2)
	assert.Equal(t, "doc-a", out.Matches[0].DocumentID)
	assert.Equal(t, "doc-b", out.Matches[1].DocumentID)
}

func TestIndexQuery_TopKTruncationAndOverfetch(t *testing.T) {
	var hits []*VectorChunkHit
	for i := 0; i < 20; i++ {
		hits = append(hits, hit(string(rune('a'+i)), "doc", i, float32(i)*0.01))
	}
	repo := &fakeVectorRepo{hits: hits}
	idx := NewIndex(&fakeEmbedder{}, repo)

	out, err := idx.Query(context.Background(), QueryInput{AgentID: "agent-1", QueryText: "q", TopK: 3})
	require.NoError(t, err)
	assert.Len(t, out.Matches, 3)
	// The store is asked for more than TopK so filtering cannot starve the result
	assert.GreaterOrEqual(t, repo.lastParams.TopK, 3)
}

func TestIndexQuery_QueryVectorSkipsEmbedding(t *testing.T) {
	repo := &fakeVectorRepo{}
	emb := &fakeEmbedder{}
	idx := NewIndex(emb, repo)

	out, err := idx.Query(context.Background(), QueryInput{
		AgentID:     "agent-1",
		QueryVector: []float32{0.5, 0.5},
		TopK:        5,
	})
	require.NoError(t, err)
	assert.Zero(t, emb.calls)
	assert.Zero(t, out.EmbeddingTokens)
	assert.Empty(t, out.Matches)
}

func TestIndexQuery_InputValidation(t *testing.T) {
	idx := NewIndex(&fakeEmbedder{}, &fakeVectorRepo{})

	_, err := idx.Query(context.Background(), QueryInput{QueryText: "q", TopK: 5})
	assert.Error(t, err, "missing agent_id")

	_, err = idx.Query(context.Background(), QueryInput{AgentID: "a", QueryText: "q"})
	assert.Error(t, err, "non-positive top_k")
}

func TestIndexQuery_Disabled(t *testing.T) {
	var idx *Index
	assert.False(t, idx.Enabled())

	_, err := idx.Query(context.Background(), QueryInput{AgentID: "a", QueryText: "q", TopK: 1})
	assert.ErrorIs(t, err, ErrVectorDisabled)

	idx = NewIndex(&fakeEmbedder{}, nil)
	assert.False(t, idx.Enabled())
}

func TestIndexQuery_SearchError(t *testing.T) {
	repo := &fakeVectorRepo{searchErr: errors.New("milvus down")}
	idx := NewIndex(&fakeEmbedder{}, repo)

	_, err := idx.Query(context.Background(), QueryInput{AgentID: "a", QueryText: "q", TopK: 1})
	assert.Error(t, err)
}

func TestEmbedQuery(t *testing.T) {
	idx := NewIndex(&fakeEmbedder{vectors: [][]float64{{0.25, 0.75}}}, &fakeVectorRepo{})

	vec, tokens, err := idx.EmbedQuery(context.Background(), "warm lighting")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.75}, vec)
	assert.Equal(t, int64(len("warm lighting")+3)/4, tokens)

	_, _, err = idx.EmbedQuery(context.Background(), "   ")
	assert.Error(t, err)
}
