// Package optimizer 根据评审反馈合成下一轮生成 prompt
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	wfchain "z-image-ai-api/internal/workflow/chain"
	wfmodel "z-image-ai-api/internal/workflow/model"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
	"z-image-ai-api/pkg/metrics"
)

// SynthesizeInput 以上一轮的不可变快照为输入
type SynthesizeInput struct {
	RequestID       string
	Brief           string
	NegativePrompts string
	Previous        *entity.IterationSnapshot
}

// SynthesizeOutput 下一轮 prompt 与本次调用的 token 消耗
type SynthesizeOutput struct {
	Prompt    string
	LLMTokens int64
}

// Synthesizer 提示词合成器。
// 使用独立于评委的全局优化器模型配置（可在线修改）。
type Synthesizer struct {
	configRepo repository.OptimizerConfigRepository
	chain      *wfchain.OptimizeChain
}

func NewSynthesizer(configRepo repository.OptimizerConfigRepository, chain *wfchain.OptimizeChain) *Synthesizer {
	return &Synthesizer{
		configRepo: configRepo,
		chain:      chain,
	}
}

// Synthesize 基于加权反馈改写 prompt。
// 反馈按 optimization_weight 降序排列，权重高的意见优先被采纳。
func (s *Synthesizer) Synthesize(ctx context.Context, in *SynthesizeInput) (*SynthesizeOutput, error) {
	if in == nil || in.Previous == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if len(in.Previous.JudgeResults) == 0 {
		return nil, apperrors.New(apperrors.CodeOptimizeFailed, "previous iteration has no judge feedback")
	}

	cfg, err := s.resolveConfig(ctx)
	if err != nil {
		return nil, err
	}

	feedback := make([]wfmodel.WeightedFeedback, 0, len(in.Previous.JudgeResults))
	for _, r := range in.Previous.JudgeResults {
		if strings.TrimSpace(r.Feedback) == "" {
			continue
		}
		feedback = append(feedback, wfmodel.WeightedFeedback{
			AgentName: r.AgentName,
			Weight:    float64(r.OptimizationWeight),
			Score:     r.Score,
			Feedback:  r.Feedback,
		})
	}
	sort.SliceStable(feedback, func(a, b int) bool {
		return feedback[a].Weight > feedback[b].Weight
	})
	if len(feedback) == 0 {
		return nil, apperrors.New(apperrors.CodeOptimizeFailed, "previous iteration feedback is empty")
	}

	temp := float32(cfg.Temperature)
	oin := &wfmodel.PromptOptimizeInput{
		Brief:           in.Brief,
		PreviousPrompt:  in.Previous.PromptUsed,
		NegativePrompts: in.NegativePrompts,
		AggregateScore:  in.Previous.AggregateScore,
		Feedback:        feedback,
		Provider:        cfg.Provider,
		Model:           cfg.Model,
		Temperature:     &temp,
	}
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		oin.MaxTokens = &mt
	}

	out, err := s.chain.Invoke(ctx, oin)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOptimizeFailed, "prompt optimization failed")
	}
	if strings.TrimSpace(out.Prompt) == "" {
		return nil, apperrors.New(apperrors.CodeOptimizeFailed, "optimizer returned empty prompt")
	}

	metrics.LLMTokensUsed.WithLabelValues(out.Usage.Provider, out.Usage.Model, "prompt").
		Add(float64(out.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(out.Usage.Provider, out.Usage.Model, "completion").
		Add(float64(out.Usage.CompletionTokens))

	logger.Debug(ctx, "prompt synthesized",
		"request_id", in.RequestID,
		"iteration", in.Previous.IterationNumber,
		"feedback_count", len(feedback),
	)
	return &SynthesizeOutput{
		Prompt:    out.Prompt,
		LLMTokens: out.Usage.TotalTokens(),
	}, nil
}

// resolveConfig 读取全局优化器配置，缺失时回落到默认值
func (s *Synthesizer) resolveConfig(ctx context.Context) (*entity.PromptOptimizerConfig, error) {
	if s.configRepo == nil {
		return entity.DefaultPromptOptimizerConfig(), nil
	}
	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return entity.DefaultPromptOptimizerConfig(), nil
	}
	return cfg, nil
}
