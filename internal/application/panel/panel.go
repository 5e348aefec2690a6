// Package panel 实现评审面板：解析评委集合、并发评分、加权聚合
package panel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"z-image-ai-api/internal/application/retrieval"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	wfchain "z-image-ai-api/internal/workflow/chain"
	wfmodel "z-image-ai-api/internal/workflow/model"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
	"z-image-ai-api/pkg/metrics"
)

const defaultJudgeTimeout = 90 * time.Second

// ProviderResolver 将 Agent 的 model_tier 解析为 LLM provider 名称
type ProviderResolver interface {
	Resolve(tier string) string
}

// Panel 评审面板服务
type Panel struct {
	agentRepo repository.AgentRepository
	index     *retrieval.Index
	judge     *wfchain.JudgeChain
	providers ProviderResolver

	judgeTimeout time.Duration
}

func NewPanel(
	agentRepo repository.AgentRepository,
	index *retrieval.Index,
	judge *wfchain.JudgeChain,
	providers ProviderResolver,
	judgeTimeout time.Duration,
) *Panel {
	if judgeTimeout <= 0 {
		judgeTimeout = defaultJudgeTimeout
	}
	return &Panel{
		agentRepo:    agentRepo,
		index:        index,
		judge:        judge,
		providers:    providers,
		judgeTimeout: judgeTimeout,
	}
}

// ResolvePanel 将请求指定的评委 ID 展开为实际评委列表。
// 组合型 Agent 展开一层成员；过滤不可评审与非 ACTIVE 的 Agent；
// 按首次出现顺序去重。展开后为空视为配置错误。
func (p *Panel) ResolvePanel(ctx context.Context, judgeIDs []string) ([]*entity.Agent, error) {
	if len(judgeIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "judge list cannot be empty")
	}

	agents, err := p.agentRepo.GetByIDs(ctx, judgeIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Agent, len(agents))
	for _, a := range agents {
		if a != nil {
			byID[a.ID] = a
		}
	}

	seen := make(map[string]struct{})
	out := make([]*entity.Agent, 0, len(judgeIDs))

	appendJudge := func(a *entity.Agent) {
		if a == nil || !a.CanServeAsJudge() {
			return
		}
		if _, ok := seen[a.ID]; ok {
			return
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}

	// 组合型 Agent 只展开一层，成员再嵌套组合不继续递归
	var memberIDs []string
	for _, id := range judgeIDs {
		a, ok := byID[id]
		if !ok {
			return nil, apperrors.New(apperrors.CodeAgentNotFound, "agent not found").WithDetail(id)
		}
		if a.IsTeam() {
			memberIDs = append(memberIDs, a.TeamAgentIDs...)
			continue
		}
		appendJudge(a)
	}

	if len(memberIDs) > 0 {
		members, err := p.agentRepo.GetByIDs(ctx, memberIDs)
		if err != nil {
			return nil, err
		}
		memberByID := make(map[string]*entity.Agent, len(members))
		for _, m := range members {
			if m != nil {
				memberByID[m.ID] = m
			}
		}
		for _, id := range judgeIDs {
			a, ok := byID[id]
			if !ok || !a.IsTeam() {
				continue
			}
			for _, mid := range a.TeamAgentIDs {
				m := memberByID[mid]
				if m != nil && m.IsTeam() {
					continue
				}
				appendJudge(m)
			}
		}
	}

	if len(out) == 0 {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "judge panel is empty after expansion").WithDetail("no referenced agent is active and able to judge")
	}
	return out, nil
}

// Evaluate 让整个面板对单张候选图并发评分。
// 单个评委失败不终止本轮，聚合分只在成功评委上按权重归一化；
// 全部评委失败返回 ErrAllJudgesFailed。
func (p *Panel) Evaluate(ctx context.Context, in *EvaluateInput) (*EvaluateOutput, error) {
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if len(in.Judges) == 0 {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "judge panel is empty")
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "candidate image url cannot be empty")
	}

	out := &EvaluateOutput{Failed: make(map[string]string)}

	// 检索查询向量整轮只向量化一次，按评委各自的 RAG 配置复用
	var queryVec []float32
	if p.index.Enabled() {
		vec, tokens, err := p.index.EmbedQuery(ctx, in.Brief)
		if err != nil {
			logger.Warn(ctx, "query embedding failed, judging without grounding",
				"request_id", in.RequestID,
				"error", err.Error(),
			)
		} else {
			queryVec = vec
			out.EmbeddingTokens += tokens
		}
	}

	type judgeSlot struct {
		result *entity.JudgeResult
		tokens int64
		errMsg string
	}
	// slots 按下标写入，goroutine 间无共享写竞争
	slots := make([]judgeSlot, len(in.Judges))

	g, gctx := errgroup.WithContext(ctx)
	for idx, agent := range in.Judges {
		idx, agent := idx, agent
		g.Go(func() error {
			jctx, cancel := context.WithTimeout(gctx, p.judgeTimeout)
			defer cancel()

			verdict, tokens, err := p.invokeJudge(jctx, in, agent, queryVec)
			if err != nil {
				metrics.JudgeInvocationsTotal.WithLabelValues(string(agentType(agent)), "error").Inc()
				logger.Warn(gctx, "judge invocation failed",
					"request_id", in.RequestID,
					"agent_id", agent.ID,
					"iteration", in.IterationNumber,
					"error", err.Error(),
				)
				slots[idx] = judgeSlot{errMsg: err.Error(), tokens: tokens}
				return nil
			}

			metrics.JudgeInvocationsTotal.WithLabelValues(string(agentType(agent)), "ok").Inc()
			metrics.JudgeScore.WithLabelValues(string(agentType(agent))).Observe(verdict.Score)
			slots[idx] = judgeSlot{
				result: &entity.JudgeResult{
					AgentID:            agent.ID,
					AgentName:          agent.Name,
					AgentType:          agentType(agent),
					Score:              verdict.Score,
					Feedback:           verdict.Feedback,
					ScoringWeight:      agent.ScoringWeight,
					OptimizationWeight: agent.OptimizationWeight,
				},
				tokens: tokens,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var weightSum, weightedScore float64
	for i, slot := range slots {
		out.LLMTokens += slot.tokens
		if slot.result == nil {
			out.Failed[in.Judges[i].ID] = slot.errMsg
			continue
		}
		out.Results = append(out.Results, *slot.result)
		w := float64(slot.result.ScoringWeight)
		weightSum += w
		weightedScore += slot.result.Score * w
	}

	if len(out.Results) == 0 {
		return nil, apperrors.ErrAllJudgesFailed
	}
	if weightSum > 0 {
		out.AggregateScore = weightedScore / weightSum
	} else {
		// 全部成功评委权重为 0 时退化为简单平均
		var sum float64
		for _, r := range out.Results {
			sum += r.Score
		}
		out.AggregateScore = sum / float64(len(out.Results))
	}
	metrics.AggregateScore.Observe(out.AggregateScore)
	return out, nil
}

func (p *Panel) invokeJudge(ctx context.Context, in *EvaluateInput, agent *entity.Agent, queryVec []float32) (*wfmodel.JudgeVerdict, int64, error) {
	var llmTokens int64

	reference := ""
	if p.index.Enabled() && len(queryVec) > 0 {
		rag := agent.EffectiveRAGConfig()
		res, err := p.index.Query(ctx, retrieval.QueryInput{
			AgentID:             agent.ID,
			QueryVector:         queryVec,
			TopK:                rag.TopK,
			SimilarityThreshold: rag.SimilarityThreshold,
		})
		if err != nil {
			logger.Warn(ctx, "reference retrieval failed, judging without grounding",
				"agent_id", agent.ID,
				"error", err.Error(),
			)
		} else {
			reference = buildReferenceBlock(res.Matches)
		}
	}

	provider := ""
	if p.providers != nil {
		provider = p.providers.Resolve(agent.ModelTier)
	}
	temp := float32(agent.Temperature)
	maxTokens := agent.MaxTokens

	jin := &wfmodel.JudgeEvaluateInput{
		Persona:          judgePersona(agent),
		Categories:       agent.EvaluationCategories,
		ReferenceContext: reference,
		Brief:            in.Brief,
		PromptUsed:       in.PromptUsed,
		IterationNumber:  in.IterationNumber,
		ImageURL:         in.ImageURL,
		Provider:         provider,
		ThinkingLevel:    string(agent.ThinkingLevel),
		Temperature:      &temp,
	}
	if maxTokens > 0 {
		jin.MaxTokens = &maxTokens
	}

	verdict, err := p.judge.Invoke(ctx, jin)
	if err != nil {
		return nil, llmTokens, err
	}
	llmTokens = verdict.Usage.TotalTokens()
	metrics.LLMTokensUsed.WithLabelValues(verdict.Usage.Provider, verdict.Usage.Model, "prompt").
		Add(float64(verdict.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(verdict.Usage.Provider, verdict.Usage.Model, "completion").
		Add(float64(verdict.Usage.CompletionTokens))
	return verdict, llmTokens, nil
}

// judgePersona 优先使用专门的评审提示词，缺省回落到 system_prompt
func judgePersona(a *entity.Agent) string {
	if s := strings.TrimSpace(a.JudgePrompt); s != "" {
		return s
	}
	return strings.TrimSpace(a.SystemPrompt)
}

func agentType(a *entity.Agent) entity.AgentType {
	if a != nil && a.Capabilities != nil && a.Capabilities.AgentType != "" {
		return a.Capabilities.AgentType
	}
	return entity.AgentTypeExpert
}

func buildReferenceBlock(matches []retrieval.ChunkMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(strings.TrimSpace(m.Content))
	}
	return b.String()
}
