package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-image-ai-api/internal/application/optimizer"
	"z-image-ai-api/internal/application/panel"
	"z-image-ai-api/internal/application/pricing"
	"z-image-ai-api/internal/config"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	wfchain "z-image-ai-api/internal/workflow/chain"
	apperrors "z-image-ai-api/pkg/errors"
)

type fakeRequestRepo struct {
	mu     sync.Mutex
	stored *entity.GenerationRequest

	// cancelAtIteration > 0 flips cancel_requested as soon as that many
	// iterations have been persisted, simulating an API cancel mid-run
	cancelAtIteration int

	// conflictAtUpdate makes the Nth Update fail with a version
	// conflict after applying externalEdit to the stored record
	conflictAtUpdate int
	externalEdit     func(*entity.GenerationRequest)
	updateCalls      int
}

func (f *fakeRequestRepo) Create(_ context.Context, req *entity.GenerationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *req
	f.stored = &cp
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id string) (*entity.GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil || f.stored.ID != id {
		return nil, nil
	}
	cp := *f.stored
	return &cp, nil
}

func (f *fakeRequestRepo) Update(_ context.Context, req *entity.GenerationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.conflictAtUpdate > 0 && f.updateCalls == f.conflictAtUpdate {
		if f.externalEdit != nil && f.stored != nil {
			f.externalEdit(f.stored)
			f.stored.Version++
		}
		return apperrors.ErrVersionConflict.WithDetail(req.ID)
	}
	cancel := f.stored != nil && f.stored.CancelRequested
	cp := *req
	if cancel {
		cp.CancelRequested = true
	}
	if f.cancelAtIteration > 0 && cp.CurrentIteration >= f.cancelAtIteration {
		cp.CancelRequested = true
	}
	f.stored = &cp
	return nil
}

func (f *fakeRequestRepo) SetCancelRequested(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored != nil && f.stored.ID == id {
		f.stored.CancelRequested = true
	}
	return nil
}

func (f *fakeRequestRepo) List(_ context.Context, _ *repository.RequestFilter, _ repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	return &repository.PagedResult[*entity.GenerationRequest]{}, nil
}

func (f *fakeRequestRepo) CountActiveByJudge(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

type fakeImageRepo struct {
	mu     sync.Mutex
	images []*entity.GeneratedImage
	scores map[string]float64
}

func (f *fakeImageRepo) CreateBatch(_ context.Context, images []*entity.GeneratedImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range images {
		img.ID = fmt.Sprintf("img-%d", len(f.images)+1)
		f.images = append(f.images, img)
	}
	return nil
}

func (f *fakeImageRepo) GetByID(_ context.Context, id string) (*entity.GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.images {
		if img.ID == id {
			return img, nil
		}
	}
	return nil, nil
}

func (f *fakeImageRepo) ListByRequest(_ context.Context, requestID string) ([]*entity.GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.GeneratedImage
	for _, img := range f.images {
		if img.RequestID == requestID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeImageRepo) UpdateScore(_ context.Context, id string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scores == nil {
		f.scores = make(map[string]float64)
	}
	f.scores[id] = score
	return nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, params *GenerateParams) ([]*GeneratedCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	count := params.Count
	if count < 1 {
		count = 1
	}
	out := make([]*GeneratedCandidate, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, &GeneratedCandidate{
			URL:      fmt.Sprintf("https://img.example/%d-%d.png", params.IterationNumber, i),
			Width:    1024,
			Height:   1024,
			MimeType: "image/png",
		})
	}
	return out, nil
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []*Event
}

func (f *fakeEventSink) PublishEvent(_ context.Context, evt *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *evt
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeEventSink) byType(t EventType) []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// scoreQueueModel replies with the next queued judge score on every call.
type scoreQueueModel struct {
	mu     sync.Mutex
	scores []float64
	err    error
}

func (m *scoreQueueModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	score := 50.0
	if len(m.scores) > 0 {
		score = m.scores[0]
		m.scores = m.scores[1:]
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: fmt.Sprintf(`{"score": %.1f, "feedback": "push the palette further"}`, score),
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 80, CompletionTokens: 20},
		},
	}, nil
}

func (m *scoreQueueModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

// fixedPromptModel is the optimizer model returning a constant rewritten prompt.
type fixedPromptModel struct {
	prompt string
}

func (m *fixedPromptModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.prompt,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 120, CompletionTokens: 30},
		},
	}, nil
}

func (m *fixedPromptModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type routingFactory struct {
	models map[string]model.BaseChatModel
}

func (f *routingFactory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	m, ok := f.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return m, nil
}

type tierResolver struct{}

func (tierResolver) Resolve(tier string) string { return tier }

type agentMapRepo struct {
	agents map[string]*entity.Agent
}

func (f *agentMapRepo) Create(_ context.Context, _ *entity.Agent) error { return nil }
func (f *agentMapRepo) Update(_ context.Context, _ *entity.Agent) error { return nil }
func (f *agentMapRepo) Delete(_ context.Context, _ string) error        { return nil }

func (f *agentMapRepo) GetByID(_ context.Context, id string) (*entity.Agent, error) {
	return f.agents[id], nil
}

func (f *agentMapRepo) GetByIDs(_ context.Context, ids []string) ([]*entity.Agent, error) {
	out := make([]*entity.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := f.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *agentMapRepo) List(_ context.Context, _ *repository.AgentFilter, _ repository.Pagination) (*repository.PagedResult[*entity.Agent], error) {
	return &repository.PagedResult[*entity.Agent]{}, nil
}

type optimizerConfigStub struct{}

func (optimizerConfigStub) Get(_ context.Context) (*entity.PromptOptimizerConfig, error) {
	return nil, nil
}
func (optimizerConfigStub) Put(_ context.Context, _ *entity.PromptOptimizerConfig) error { return nil }

type harness struct {
	orchestrator *Orchestrator
	requests     *fakeRequestRepo
	images       *fakeImageRepo
	generator    *fakeGenerator
	events       *fakeEventSink
	judgeModel   *scoreQueueModel
}

const rewrittenPrompt = "a lighthouse at dawn, centered, golden hour palette"

func newHarness(t *testing.T, scores []float64, minScoreGain float64) *harness {
	t.Helper()

	judgeModel := &scoreQueueModel{scores: scores}
	factory := &routingFactory{models: map[string]model.BaseChatModel{
		"judge-tier": judgeModel,
		"":           &fixedPromptModel{prompt: rewrittenPrompt},
	}}

	judge := &entity.Agent{
		ID:            "judge-1",
		Name:          "art director",
		SystemPrompt:  "you judge images",
		ScoringWeight: 100,
		ModelTier:     "judge-tier",
		Status:        entity.AgentStatusActive,
		Capabilities:  &entity.Capabilities{CanJudge: true, AgentType: entity.AgentTypeExpert},
	}
	agents := &agentMapRepo{agents: map[string]*entity.Agent{"judge-1": judge}}

	panelSvc := panel.NewPanel(agents, nil, wfchain.NewJudgeChain(factory), tierResolver{}, 0)
	synth := optimizer.NewSynthesizer(optimizerConfigStub{}, wfchain.NewOptimizeChain(factory))

	requests := &fakeRequestRepo{}
	images := &fakeImageRepo{}
	generator := &fakeGenerator{}
	events := &fakeEventSink{}

	table := pricing.NewTable(&config.PricingConfig{
		Version:                "test",
		LLMTokenUSDPer1K:       0.01,
		ImageGenerationUSDEach: 0.04,
	})

	return &harness{
		orchestrator: NewOrchestrator(requests, images, panelSvc, synth, generator, events, table, minScoreGain),
		requests:     requests,
		images:       images,
		generator:    generator,
		events:       events,
		judgeModel:   judgeModel,
	}
}

func seedRequest(h *harness, threshold, maxIterations int) *entity.GenerationRequest {
	req := entity.NewGenerationRequest("a lighthouse at dawn", []string{"judge-1"}, threshold, maxIterations)
	req.ID = "req-1"
	_ = h.requests.Create(context.Background(), req)
	return req
}

func TestRun_SucceedsWhenThresholdReached(t *testing.T) {
	h := newHarness(t, []float64{60, 74, 76}, 2.0)
	seedRequest(h, 75, 5)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCompleted, final.Status)
	assert.Equal(t, entity.ReasonSuccess, final.CompletionReason)
	assert.Equal(t, 3, final.CurrentIteration)
	assert.Len(t, final.Iterations, final.CurrentIteration)

	// SUCCESS exposes both the final and the best image, and they coincide
	assert.NotEmpty(t, final.FinalImageID)
	assert.Equal(t, final.FinalImageID, final.BestImageID)
	assert.Equal(t, final.Iterations[2].BestImageID, final.FinalImageID)

	// First iteration uses the brief, later ones the rewritten prompt
	assert.Equal(t, "a lighthouse at dawn", final.Iterations[0].PromptUsed)
	assert.Equal(t, rewrittenPrompt, final.Iterations[1].PromptUsed)
	assert.Equal(t, 3, h.generator.calls)

	completed := h.events.byType(EventCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, string(entity.ReasonSuccess), completed[0].Reason)
	assert.InDelta(t, 76, completed[0].AggregateScore, 1e-6)
	assert.Len(t, h.events.byType(EventIterationComplete), 3)
}

func TestRun_MaxIterationsReached(t *testing.T) {
	h := newHarness(t, []float64{60, 74}, 2.0)
	seedRequest(h, 90, 2)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCompleted, final.Status)
	assert.Equal(t, entity.ReasonMaxRetriesReached, final.CompletionReason)
	assert.Equal(t, 2, final.CurrentIteration)

	// Below threshold: only the best image is exposed, never final
	assert.Empty(t, final.FinalImageID)
	assert.Equal(t, final.Iterations[1].BestImageID, final.BestImageID)
}

func TestRun_DiminishingReturns(t *testing.T) {
	h := newHarness(t, []float64{60, 61}, 2.0)
	seedRequest(h, 90, 5)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.ReasonDiminishingReturns, final.CompletionReason)
	assert.Equal(t, 2, final.CurrentIteration, "stops after the low-gain iteration")
	assert.Empty(t, final.FinalImageID)
	assert.Equal(t, final.Iterations[1].BestImageID, final.BestImageID, "best overall score is iteration 2")
}

func TestRun_CancelObservedAtBoundary(t *testing.T) {
	h := newHarness(t, []float64{60, 74, 76}, 2.0)
	req := seedRequest(h, 75, 5)
	require.NoError(t, h.requests.SetCancelRequested(context.Background(), req.ID))

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCancelled, final.Status)
	assert.Equal(t, entity.ReasonCancelled, final.CompletionReason)
	assert.Zero(t, h.generator.calls, "cancel lands before any generation work")
}

func TestRun_AllJudgesFailed(t *testing.T) {
	h := newHarness(t, nil, 2.0)
	h.judgeModel.err = errors.New("model overloaded")
	seedRequest(h, 75, 5)

	err := h.orchestrator.Run(context.Background(), "req-1")
	require.Error(t, err)

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusFailed, final.Status)
	assert.Equal(t, entity.ReasonError, final.CompletionReason)
	assert.NotEmpty(t, final.ErrorMessage)

	failed := h.events.byType(EventFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, string(entity.ReasonError), failed[0].Reason)
}

func TestRun_GeneratorFailure(t *testing.T) {
	h := newHarness(t, []float64{60}, 2.0)
	h.generator.err = errors.New("upstream 500")
	seedRequest(h, 75, 5)

	err := h.orchestrator.Run(context.Background(), "req-1")
	require.Error(t, err)
	assert.Equal(t, entity.RequestStatusFailed, h.requests.stored.Status)
}

func TestRun_TerminalRequestIsNoop(t *testing.T) {
	h := newHarness(t, []float64{60}, 2.0)
	req := seedRequest(h, 75, 5)
	req.Complete(entity.ReasonSuccess, "img-old")
	_ = h.requests.Update(context.Background(), req)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))
	assert.Zero(t, h.generator.calls)
	assert.Empty(t, h.events.events)
}

func TestRun_UnknownRequest(t *testing.T) {
	h := newHarness(t, nil, 2.0)

	err := h.orchestrator.Run(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRun_AccumulatesCosts(t *testing.T) {
	h := newHarness(t, []float64{60, 76}, 2.0)
	seedRequest(h, 75, 5)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	require.NotNil(t, final.Costs)
	assert.Equal(t, int64(2), final.Costs.ImageGenerations)
	// 2 judge calls at 100 tokens each, plus one optimizer call at 150
	assert.Equal(t, int64(2*100+150), final.Costs.LLMTokens)
}

func TestRun_CancelBetweenIterations(t *testing.T) {
	h := newHarness(t, []float64{60, 74, 76}, 2.0)
	h.requests.cancelAtIteration = 1
	seedRequest(h, 99, 5)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCancelled, final.Status)
	assert.Equal(t, entity.ReasonCancelled, final.CompletionReason)
	assert.Equal(t, 1, final.CurrentIteration, "cancel lands at the boundary after iteration 1")
	assert.Equal(t, 1, h.generator.calls, "iteration 1 finishes before the flag is observed")
	assert.Equal(t, final.Iterations[0].BestImageID, final.BestImageID)
	require.NotNil(t, final.Costs)
	assert.Equal(t, int64(1), final.Costs.ImageGenerations, "in-flight work keeps its cost")
}

func TestRun_ResumesFromInterruptedState(t *testing.T) {
	h := newHarness(t, []float64{60, 76}, 2.0)
	req := seedRequest(h, 75, 5)

	// Simulate a worker crash mid-generation before any iteration landed
	require.NoError(t, req.MarkGenerating())
	_ = h.requests.Update(context.Background(), req)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCompleted, final.Status)
	assert.Equal(t, entity.ReasonSuccess, final.CompletionReason)
	assert.Equal(t, 2, final.CurrentIteration)
}

func TestRun_ResumeAfterLastIterationLanded(t *testing.T) {
	// Crash window: the last iteration snapshot persisted but the
	// terminal state did not. A re-delivered job must replay the
	// termination decision instead of returning with the request
	// stuck in evaluating.
	h := newHarness(t, nil, 2.0)
	req := seedRequest(h, 90, 1)
	require.NoError(t, req.MarkGenerating())
	require.NoError(t, req.MarkEvaluating())
	require.NoError(t, req.AppendIteration(entity.IterationSnapshot{
		IterationNumber: 1,
		PromptUsed:      req.Brief,
		AggregateScore:  60,
		ImageIDs:        []string{"img-1"},
		BestImageID:     "img-1",
	}))
	_ = h.requests.Update(context.Background(), req)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.True(t, final.IsTerminal())
	assert.Equal(t, entity.RequestStatusCompleted, final.Status)
	assert.Equal(t, entity.ReasonMaxRetriesReached, final.CompletionReason)
	assert.Empty(t, final.FinalImageID)
	assert.Equal(t, "img-1", final.BestImageID)
	assert.Zero(t, h.generator.calls, "no new iteration runs on replay")
}

func TestRun_VersionConflictReappliesOwnedFields(t *testing.T) {
	h := newHarness(t, []float64{80}, 2.0)
	// An operator edits negative_prompts while the orchestrator holds a
	// stale copy; the first persisted write after that edit conflicts.
	h.requests.conflictAtUpdate = 2
	h.requests.externalEdit = func(r *entity.GenerationRequest) {
		r.NegativePrompts = "no text overlays"
	}
	seedRequest(h, 75, 5)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCompleted, final.Status)
	assert.Equal(t, entity.ReasonSuccess, final.CompletionReason)
	assert.Equal(t, "no text overlays", final.NegativePrompts, "the external edit survives the retry")
}

func TestRun_VersionConflictOnTerminalIsFatal(t *testing.T) {
	h := newHarness(t, []float64{80}, 2.0)
	h.requests.conflictAtUpdate = 2
	h.requests.externalEdit = func(r *entity.GenerationRequest) {
		r.Cancel()
	}
	seedRequest(h, 75, 5)

	err := h.orchestrator.Run(context.Background(), "req-1")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeVersionConflict, appErr.Code)
	assert.Equal(t, entity.RequestStatusCancelled, h.requests.stored.Status, "the concurrent terminal write wins")
}

func TestRun_ResumeReplaysThresholdSuccess(t *testing.T) {
	h := newHarness(t, nil, 2.0)
	req := seedRequest(h, 90, 5)
	require.NoError(t, req.MarkGenerating())
	require.NoError(t, req.MarkEvaluating())
	require.NoError(t, req.AppendIteration(entity.IterationSnapshot{
		IterationNumber: 1,
		PromptUsed:      req.Brief,
		AggregateScore:  95,
		ImageIDs:        []string{"img-1"},
		BestImageID:     "img-1",
	}))
	_ = h.requests.Update(context.Background(), req)

	require.NoError(t, h.orchestrator.Run(context.Background(), "req-1"))

	final := h.requests.stored
	assert.Equal(t, entity.RequestStatusCompleted, final.Status)
	assert.Equal(t, entity.ReasonSuccess, final.CompletionReason)
	assert.Equal(t, "img-1", final.FinalImageID)
	assert.Equal(t, "img-1", final.BestImageID)
	assert.Zero(t, h.generator.calls)
}
