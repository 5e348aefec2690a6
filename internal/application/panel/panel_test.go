package panel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	wfchain "z-image-ai-api/internal/workflow/chain"
	apperrors "z-image-ai-api/pkg/errors"
)

type fakeAgentRepo struct {
	agents map[string]*entity.Agent
}

func (f *fakeAgentRepo) Create(_ context.Context, _ *entity.Agent) error { return nil }
func (f *fakeAgentRepo) Update(_ context.Context, _ *entity.Agent) error { return nil }
func (f *fakeAgentRepo) Delete(_ context.Context, _ string) error        { return nil }

func (f *fakeAgentRepo) GetByID(_ context.Context, id string) (*entity.Agent, error) {
	return f.agents[id], nil
}

func (f *fakeAgentRepo) GetByIDs(_ context.Context, ids []string) ([]*entity.Agent, error) {
	out := make([]*entity.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := f.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgentRepo) List(_ context.Context, _ *repository.AgentFilter, _ repository.Pagination) (*repository.PagedResult[*entity.Agent], error) {
	return &repository.PagedResult[*entity.Agent]{}, nil
}

// fakeChatModel answers every generate call with a fixed verdict JSON.
type fakeChatModel struct {
	score float64
	err   error
}

func (m *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: fmt.Sprintf(`{"score": %.1f, "feedback": "needs warmer light"}`, m.score),
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20},
		},
	}, nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

// fakeFactory maps provider name to a canned chat model.
type fakeFactory struct {
	models map[string]model.BaseChatModel
}

func (f *fakeFactory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	m, ok := f.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return m, nil
}

type tierResolver struct{}

func (tierResolver) Resolve(tier string) string { return tier }

func judgeAgent(id string, weight int) *entity.Agent {
	return &entity.Agent{
		ID:            id,
		Name:          "judge " + id,
		SystemPrompt:  "you judge images",
		ScoringWeight: weight,
		ModelTier:     id,
		Status:        entity.AgentStatusActive,
		Capabilities:  &entity.Capabilities{CanJudge: true, AgentType: entity.AgentTypeExpert},
	}
}

func newTestPanel(repo *fakeAgentRepo, factory *fakeFactory) *Panel {
	return NewPanel(repo, nil, wfchain.NewJudgeChain(factory), tierResolver{}, 0)
}

func TestResolvePanel_FiltersAndDedup(t *testing.T) {
	active := judgeAgent("j1", 50)
	inactive := judgeAgent("j2", 50)
	inactive.Status = entity.AgentStatusInactive
	noJudge := judgeAgent("j3", 50)
	noJudge.Capabilities.CanJudge = false

	repo := &fakeAgentRepo{agents: map[string]*entity.Agent{
		"j1": active, "j2": inactive, "j3": noJudge,
	}}
	p := newTestPanel(repo, &fakeFactory{})

	out, err := p.ResolvePanel(context.Background(), []string{"j1", "j2", "j3", "j1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "j1", out[0].ID)
}

func TestResolvePanel_TeamExpandsOneLevel(t *testing.T) {
	m1 := judgeAgent("m1", 50)
	m2 := judgeAgent("m2", 50)
	nestedTeam := judgeAgent("nested", 50)
	nestedTeam.TeamAgentIDs = []string{"m1"}
	team := judgeAgent("team", 50)
	team.TeamAgentIDs = []string{"m1", "m2", "nested"}

	repo := &fakeAgentRepo{agents: map[string]*entity.Agent{
		"m1": m1, "m2": m2, "nested": nestedTeam, "team": team,
	}}
	p := newTestPanel(repo, &fakeFactory{})

	out, err := p.ResolvePanel(context.Background(), []string{"team", "m1"})
	require.NoError(t, err)

	// Direct members appear once; the nested team is not expanded further
	ids := make([]string, 0, len(out))
	for _, a := range out {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"m1", "m2"}, ids)
}

func TestResolvePanel_UnknownAgent(t *testing.T) {
	p := newTestPanel(&fakeAgentRepo{agents: map[string]*entity.Agent{}}, &fakeFactory{})

	_, err := p.ResolvePanel(context.Background(), []string{"missing"})
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeAgentNotFound, appErr.Code)
}

func TestResolvePanel_EmptyAfterExpansion(t *testing.T) {
	inactive := judgeAgent("j1", 50)
	inactive.Status = entity.AgentStatusInactive
	p := newTestPanel(&fakeAgentRepo{agents: map[string]*entity.Agent{"j1": inactive}}, &fakeFactory{})

	_, err := p.ResolvePanel(context.Background(), []string{"j1"})
	assert.Error(t, err)

	_, err = p.ResolvePanel(context.Background(), nil)
	assert.Error(t, err)
}

func evalInput(judges ...*entity.Agent) *EvaluateInput {
	return &EvaluateInput{
		RequestID:       "req-1",
		Brief:           "a lighthouse at dawn",
		PromptUsed:      "a lighthouse at dawn, painterly",
		IterationNumber: 1,
		ImageURL:        "https://img.example/1.png",
		Judges:          judges,
	}
}

func TestEvaluate_WeightedAggregate(t *testing.T) {
	j1 := judgeAgent("j1", 70)
	j2 := judgeAgent("j2", 30)
	factory := &fakeFactory{models: map[string]model.BaseChatModel{
		"j1": &fakeChatModel{score: 80},
		"j2": &fakeChatModel{score: 60},
	}}
	p := newTestPanel(&fakeAgentRepo{}, factory)

	out, err := p.Evaluate(context.Background(), evalInput(j1, j2))
	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	// (80*70 + 60*30) / 100
	assert.InDelta(t, 74.0, out.AggregateScore, 1e-9)
	assert.Empty(t, out.Failed)
	assert.Equal(t, int64(240), out.LLMTokens, "both judges report 120 tokens")
}

func TestEvaluate_PartialFailureRenormalizes(t *testing.T) {
	j1 := judgeAgent("j1", 70)
	j2 := judgeAgent("j2", 30)
	j3 := judgeAgent("j3", 50)
	factory := &fakeFactory{models: map[string]model.BaseChatModel{
		"j1": &fakeChatModel{score: 90},
		"j2": &fakeChatModel{err: errors.New("model overloaded")},
		"j3": &fakeChatModel{score: 50},
	}}
	p := newTestPanel(&fakeAgentRepo{}, factory)

	out, err := p.Evaluate(context.Background(), evalInput(j1, j2, j3))
	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	// Failed judge drops out: (90*70 + 50*50) / 120
	assert.InDelta(t, (90.0*70+50*50)/120, out.AggregateScore, 1e-9)
	assert.Contains(t, out.Failed, "j2")
}

func TestEvaluate_AllJudgesFailed(t *testing.T) {
	j1 := judgeAgent("j1", 70)
	factory := &fakeFactory{models: map[string]model.BaseChatModel{}}
	p := newTestPanel(&fakeAgentRepo{}, factory)

	_, err := p.Evaluate(context.Background(), evalInput(j1))
	assert.ErrorIs(t, err, apperrors.ErrAllJudgesFailed)
}

func TestEvaluate_ZeroWeightsFallBackToMean(t *testing.T) {
	j1 := judgeAgent("j1", 0)
	j2 := judgeAgent("j2", 0)
	factory := &fakeFactory{models: map[string]model.BaseChatModel{
		"j1": &fakeChatModel{score: 40},
		"j2": &fakeChatModel{score: 60},
	}}
	p := newTestPanel(&fakeAgentRepo{}, factory)

	out, err := p.Evaluate(context.Background(), evalInput(j1, j2))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, out.AggregateScore, 1e-9)
}

func TestEvaluate_InputValidation(t *testing.T) {
	p := newTestPanel(&fakeAgentRepo{}, &fakeFactory{})

	_, err := p.Evaluate(context.Background(), nil)
	assert.Error(t, err)

	_, err = p.Evaluate(context.Background(), evalInput())
	assert.Error(t, err, "empty panel")

	in := evalInput(judgeAgent("j1", 50))
	in.ImageURL = "  "
	_, err = p.Evaluate(context.Background(), in)
	assert.Error(t, err, "blank image url")
}
