package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest() *GenerationRequest {
	r := NewGenerationRequest("a cat on a windowsill", []string{"judge-1"}, 80, 5)
	r.ID = "req-1"
	return r
}

func TestNewGenerationRequest_Defaults(t *testing.T) {
	r := newTestRequest()

	assert.Equal(t, RequestStatusPending, r.Status)
	assert.Equal(t, 0, r.CurrentIteration)
	require.NotNil(t, r.ImageParams)
	assert.Equal(t, 1, r.ImageParams.ImagesPerGeneration)
	require.NotNil(t, r.Costs)
	assert.NoError(t, r.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GenerationRequest)
	}{
		{"empty brief", func(r *GenerationRequest) { r.Brief = "" }},
		{"no judges", func(r *GenerationRequest) { r.JudgeIDs = nil }},
		{"threshold below range", func(r *GenerationRequest) { r.Threshold = -1 }},
		{"threshold above range", func(r *GenerationRequest) { r.Threshold = 101 }},
		{"zero max iterations", func(r *GenerationRequest) { r.MaxIterations = 0 }},
		{"zero images per generation", func(r *GenerationRequest) { r.ImageParams.ImagesPerGeneration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRequest()
			tt.mutate(r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestStateTransitions_HappyPath(t *testing.T) {
	r := newTestRequest()

	// First iteration enters generating directly from pending
	require.NoError(t, r.MarkGenerating())
	assert.Equal(t, RequestStatusGenerating, r.Status)

	require.NoError(t, r.MarkEvaluating())
	assert.Equal(t, RequestStatusEvaluating, r.Status)

	// Below threshold, loop continues via optimizing
	require.NoError(t, r.MarkOptimizing())
	assert.Equal(t, RequestStatusOptimizing, r.Status)

	require.NoError(t, r.MarkGenerating())
	require.NoError(t, r.MarkEvaluating())

	r.Complete(ReasonSuccess, "img-9")
	assert.Equal(t, RequestStatusCompleted, r.Status)
	assert.True(t, r.IsTerminal())
}

func TestStateTransitions_Invalid(t *testing.T) {
	r := newTestRequest()

	assert.Error(t, r.MarkEvaluating(), "pending cannot skip to evaluating")
	assert.Error(t, r.MarkOptimizing(), "pending cannot skip to optimizing")

	require.NoError(t, r.MarkGenerating())
	assert.Error(t, r.MarkGenerating(), "generating -> generating is not allowed")
	assert.Error(t, r.MarkOptimizing(), "generating cannot skip to optimizing")
}

func TestAppendIteration_Ordering(t *testing.T) {
	r := newTestRequest()

	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 1, AggregateScore: 55}))
	assert.Equal(t, 1, r.CurrentIteration)
	assert.Len(t, r.Iterations, r.CurrentIteration)

	// Skipping an iteration number is rejected
	assert.Error(t, r.AppendIteration(IterationSnapshot{IterationNumber: 3}))
	// Re-appending the same number is rejected
	assert.Error(t, r.AppendIteration(IterationSnapshot{IterationNumber: 1}))

	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 2, AggregateScore: 70}))
	assert.Equal(t, 2, r.CurrentIteration)
	assert.Len(t, r.Iterations, r.CurrentIteration)
}

func TestAppendIteration_FillsCreatedAt(t *testing.T) {
	r := newTestRequest()

	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 1}))
	assert.False(t, r.Iterations[0].CreatedAt.IsZero())

	at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 2, CreatedAt: at}))
	assert.Equal(t, at, r.Iterations[1].CreatedAt)
}

func TestAppendIteration_TerminalRejected(t *testing.T) {
	r := newTestRequest()
	r.Cancel()

	assert.Error(t, r.AppendIteration(IterationSnapshot{IterationNumber: 1}))
}

func TestComplete_FinalImageOnlyOnSuccess(t *testing.T) {
	r := newTestRequest()
	r.Complete(ReasonSuccess, "img-1")

	assert.Equal(t, ReasonSuccess, r.CompletionReason)
	assert.Equal(t, "img-1", r.FinalImageID)
	assert.Equal(t, "img-1", r.BestImageID)
	require.NotNil(t, r.CompletedAt)

	r2 := newTestRequest()
	r2.Complete(ReasonMaxRetriesReached, "img-2")

	assert.Empty(t, r2.FinalImageID, "final image is reserved for threshold success")
	assert.Equal(t, "img-2", r2.BestImageID)

	r3 := newTestRequest()
	r3.Complete(ReasonDiminishingReturns, "img-3")

	assert.Empty(t, r3.FinalImageID)
	assert.Equal(t, "img-3", r3.BestImageID)
}

func TestTerminal_Idempotent(t *testing.T) {
	r := newTestRequest()
	r.Complete(ReasonSuccess, "img-1")
	done := *r.CompletedAt

	// Later terminal calls must not overwrite the first outcome
	r.Fail("boom")
	r.Cancel()
	r.Complete(ReasonMaxRetriesReached, "img-2")

	assert.Equal(t, RequestStatusCompleted, r.Status)
	assert.Equal(t, ReasonSuccess, r.CompletionReason)
	assert.Equal(t, "img-1", r.FinalImageID)
	assert.Equal(t, done, *r.CompletedAt)
}

func TestFail_SetsReasonAndMessage(t *testing.T) {
	r := newTestRequest()
	r.Fail("all judges failed")

	assert.Equal(t, RequestStatusFailed, r.Status)
	assert.Equal(t, ReasonError, r.CompletionReason)
	assert.Equal(t, "all judges failed", r.ErrorMessage)
	assert.Empty(t, r.FinalImageID)
}

func TestRequestCancel(t *testing.T) {
	r := newTestRequest()
	require.NoError(t, r.RequestCancel())
	assert.True(t, r.CancelRequested)
	assert.False(t, r.IsTerminal(), "cancel is cooperative, observed at the next boundary")

	r.Cancel()
	assert.Equal(t, RequestStatusCancelled, r.Status)
	assert.Equal(t, ReasonCancelled, r.CompletionReason)
	assert.Error(t, r.RequestCancel(), "terminal request rejects cancel marks")
}

func TestLastAggregateScores(t *testing.T) {
	r := newTestRequest()
	for i, score := range []float64{50, 62, 71} {
		require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: i + 1, AggregateScore: score}))
	}

	assert.Equal(t, []float64{62, 71}, r.LastAggregateScores(2))
	assert.Equal(t, []float64{50, 62, 71}, r.LastAggregateScores(5), "window larger than history returns all")
	assert.Nil(t, r.LastAggregateScores(0))
	assert.Nil(t, (&GenerationRequest{}).LastAggregateScores(2))
}

func TestBestIteration_TieTakesEarlier(t *testing.T) {
	r := newTestRequest()
	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 1, AggregateScore: 70, BestImageID: "img-a"}))
	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 2, AggregateScore: 70, BestImageID: "img-b"}))
	require.NoError(t, r.AppendIteration(IterationSnapshot{IterationNumber: 3, AggregateScore: 64, BestImageID: "img-c"}))

	best := r.BestIteration()
	require.NotNil(t, best)
	assert.Equal(t, 1, best.IterationNumber)
	assert.Equal(t, "img-a", best.BestImageID)

	assert.Nil(t, (&GenerationRequest{}).BestIteration())
}

func TestAddCosts_Accumulates(t *testing.T) {
	r := newTestRequest()
	r.Costs = nil

	r.AddCosts(CostTotals{LLMTokens: 100, EmbeddingTokens: 10})
	r.AddCosts(CostTotals{LLMTokens: 50, ImageGenerations: 2})

	require.NotNil(t, r.Costs)
	assert.Equal(t, int64(150), r.Costs.LLMTokens)
	assert.Equal(t, int64(10), r.Costs.EmbeddingTokens)
	assert.Equal(t, int64(2), r.Costs.ImageGenerations)
}
