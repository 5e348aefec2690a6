package optimizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-image-ai-api/internal/domain/entity"
	wfchain "z-image-ai-api/internal/workflow/chain"
)

type fakeConfigRepo struct {
	cfg *entity.PromptOptimizerConfig
	err error
}

func (f *fakeConfigRepo) Get(_ context.Context) (*entity.PromptOptimizerConfig, error) {
	return f.cfg, f.err
}

func (f *fakeConfigRepo) Put(_ context.Context, cfg *entity.PromptOptimizerConfig) error {
	f.cfg = cfg
	return nil
}

// captureChatModel records the rendered messages and replies with a fixed prompt.
type captureChatModel struct {
	reply    string
	err      error
	messages []*schema.Message
}

func (m *captureChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.messages = msgs
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.reply,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 200, CompletionTokens: 40},
		},
	}, nil
}

func (m *captureChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type singleModelFactory struct {
	model model.BaseChatModel
}

func (f *singleModelFactory) Get(_ context.Context, _ string) (model.BaseChatModel, error) {
	return f.model, nil
}

func previousSnapshot() *entity.IterationSnapshot {
	return &entity.IterationSnapshot{
		IterationNumber: 1,
		PromptUsed:      "a lighthouse at dawn",
		AggregateScore:  58,
		JudgeResults: []entity.JudgeResult{
			{AgentID: "j1", AgentName: "color critic", Score: 50, Feedback: "colors feel muddy", OptimizationWeight: 20},
			{AgentID: "j2", AgentName: "composition critic", Score: 65, Feedback: "subject is off center", OptimizationWeight: 80},
			{AgentID: "j3", AgentName: "silent judge", Score: 60, Feedback: "   ", OptimizationWeight: 90},
		},
	}
}

func newTestSynthesizer(m model.BaseChatModel, repo *fakeConfigRepo) *Synthesizer {
	return NewSynthesizer(repo, wfchain.NewOptimizeChain(&singleModelFactory{model: m}))
}

func TestSynthesize_OrdersFeedbackByWeight(t *testing.T) {
	m := &captureChatModel{reply: "a lighthouse at dawn, centered composition, vivid palette"}
	s := newTestSynthesizer(m, &fakeConfigRepo{})

	out, err := s.Synthesize(context.Background(), &SynthesizeInput{
		RequestID: "req-1",
		Brief:     "a lighthouse at dawn",
		Previous:  previousSnapshot(),
	})
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse at dawn, centered composition, vivid palette", out.Prompt)
	assert.Equal(t, int64(240), out.LLMTokens)

	// Blank feedback is dropped; remaining feedback appears highest weight first
	var rendered string
	for _, msg := range m.messages {
		rendered += msg.Content + "\n"
	}
	assert.NotContains(t, rendered, "silent judge")
	high := strings.Index(rendered, "composition critic")
	low := strings.Index(rendered, "color critic")
	require.GreaterOrEqual(t, high, 0)
	require.GreaterOrEqual(t, low, 0)
	assert.Less(t, high, low)
}

func TestSynthesize_RendersNegativePrompts(t *testing.T) {
	m := &captureChatModel{reply: "a lighthouse at dawn, no people"}
	s := newTestSynthesizer(m, &fakeConfigRepo{})

	_, err := s.Synthesize(context.Background(), &SynthesizeInput{
		RequestID:       "req-1",
		Brief:           "a lighthouse at dawn",
		NegativePrompts: "people, watermarks",
		Previous:        previousSnapshot(),
	})
	require.NoError(t, err)

	var rendered string
	for _, msg := range m.messages {
		rendered += msg.Content + "\n"
	}
	assert.Contains(t, rendered, "people, watermarks")
}

func TestSynthesize_NoNegativePrompts(t *testing.T) {
	m := &captureChatModel{reply: "a lighthouse at dawn"}
	s := newTestSynthesizer(m, &fakeConfigRepo{})

	_, err := s.Synthesize(context.Background(), &SynthesizeInput{
		RequestID: "req-1",
		Brief:     "a lighthouse at dawn",
		Previous:  previousSnapshot(),
	})
	require.NoError(t, err)

	var rendered string
	for _, msg := range m.messages {
		rendered += msg.Content + "\n"
	}
	assert.Contains(t, rendered, "(none)")
}

func TestSynthesize_NoFeedback(t *testing.T) {
	s := newTestSynthesizer(&captureChatModel{reply: "x"}, &fakeConfigRepo{})

	_, err := s.Synthesize(context.Background(), &SynthesizeInput{
		Brief:    "b",
		Previous: &entity.IterationSnapshot{IterationNumber: 1},
	})
	assert.Error(t, err)

	// Judges present but every feedback string blank
	_, err = s.Synthesize(context.Background(), &SynthesizeInput{
		Brief: "b",
		Previous: &entity.IterationSnapshot{
			IterationNumber: 1,
			JudgeResults:    []entity.JudgeResult{{AgentID: "j1", Feedback: "  "}},
		},
	})
	assert.Error(t, err)
}

func TestSynthesize_NilInput(t *testing.T) {
	s := newTestSynthesizer(&captureChatModel{reply: "x"}, &fakeConfigRepo{})

	_, err := s.Synthesize(context.Background(), nil)
	assert.Error(t, err)

	_, err = s.Synthesize(context.Background(), &SynthesizeInput{Brief: "b"})
	assert.Error(t, err, "missing previous snapshot")
}

func TestSynthesize_EmptyModelOutput(t *testing.T) {
	s := newTestSynthesizer(&captureChatModel{reply: "   "}, &fakeConfigRepo{})

	_, err := s.Synthesize(context.Background(), &SynthesizeInput{Brief: "b", Previous: previousSnapshot()})
	assert.Error(t, err)
}

func TestSynthesize_ConfigFallback(t *testing.T) {
	m := &captureChatModel{reply: "refined"}

	// Missing record falls back to defaults rather than failing
	s := newTestSynthesizer(m, &fakeConfigRepo{cfg: nil})
	_, err := s.Synthesize(context.Background(), &SynthesizeInput{Brief: "b", Previous: previousSnapshot()})
	assert.NoError(t, err)

	// Repository errors are surfaced
	s = newTestSynthesizer(m, &fakeConfigRepo{err: errors.New("db down")})
	_, err = s.Synthesize(context.Background(), &SynthesizeInput{Brief: "b", Previous: previousSnapshot()})
	assert.Error(t, err)
}

func TestBuildWeightedFeedbackBlock(t *testing.T) {
	block := wfchain.BuildWeightedFeedbackBlock(nil)
	assert.Equal(t, "(no feedback)", block)
}
