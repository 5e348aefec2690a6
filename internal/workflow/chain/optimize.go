package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	wfmodel "z-image-ai-api/internal/workflow/model"
	workflowport "z-image-ai-api/internal/workflow/port"
	workflowprompt "z-image-ai-api/internal/workflow/prompt"
)

// OptimizeChain 根据加权评委反馈改写下一轮生成 prompt。
// 输出为纯文本 prompt，不做 JSON 约束。
type OptimizeChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.PromptOptimizeInput, *wfmodel.PromptOptimizeOutput]
	chainErr  error
}

func NewOptimizeChain(factory workflowport.ChatModelFactory) *OptimizeChain {
	return &OptimizeChain{factory: factory}
}

func (c *OptimizeChain) Invoke(ctx context.Context, in *wfmodel.PromptOptimizeInput) (*wfmodel.PromptOptimizeOutput, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

type optimizeChainState struct {
	In       *wfmodel.PromptOptimizeInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *OptimizeChain) getChain() (compose.Runnable[*wfmodel.PromptOptimizeInput, *wfmodel.PromptOptimizeOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *OptimizeChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.PromptOptimizeInput, *wfmodel.PromptOptimizeOutput], error) {
	chain := compose.NewChain[*wfmodel.PromptOptimizeInput, *wfmodel.PromptOptimizeOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.PromptOptimizeInput) (*optimizeChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			msgs, err := formatOptimizeMessages(ctx, in)
			if err != nil {
				return nil, err
			}
			return &optimizeChainState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("optimize.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *optimizeChainState) (*optimizeChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			if c.factory == nil {
				return nil, fmt.Errorf("llm factory not configured")
			}

			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(st.In.Provider))
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildOptimizeModelOptions(st.In)...)
			if err != nil {
				return nil, err
			}
			if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("optimize.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *optimizeChainState) (*wfmodel.PromptOptimizeOutput, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}

			out := &wfmodel.PromptOptimizeOutput{
				Prompt: strings.TrimSpace(st.OutMsg.Content),
				Usage: wfmodel.LLMUsageMeta{
					Provider:    strings.TrimSpace(st.In.Provider),
					Model:       strings.TrimSpace(st.In.Model),
					GeneratedAt: time.Now(),
				},
			}
			if st.OutMsg.ResponseMeta != nil && st.OutMsg.ResponseMeta.Usage != nil {
				out.Usage.PromptTokens = st.OutMsg.ResponseMeta.Usage.PromptTokens
				out.Usage.CompletionTokens = st.OutMsg.ResponseMeta.Usage.CompletionTokens
			}
			return out, nil
		}),
		compose.WithNodeName("optimize.finalize"),
	)

	return chain.Compile(ctx)
}

func formatOptimizeMessages(ctx context.Context, in *wfmodel.PromptOptimizeInput) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptPromptOptimizeV1)
	if err != nil {
		return nil, err
	}
	negative := strings.TrimSpace(in.NegativePrompts)
	if negative == "" {
		negative = "(none)"
	}
	vars := map[string]any{
		"brief":             strings.TrimSpace(in.Brief),
		"previous_prompt":   strings.TrimSpace(in.PreviousPrompt),
		"negative_prompts":  negative,
		"aggregate_score":   fmt.Sprintf("%.1f", in.AggregateScore),
		"weighted_feedback": BuildWeightedFeedbackBlock(in.Feedback),
	}
	return tpl.Format(ctx, vars)
}

// BuildWeightedFeedbackBlock 将评委反馈按优化权重降序拼装为模板文本。
func BuildWeightedFeedbackBlock(items []wfmodel.WeightedFeedback) string {
	if len(items) == 0 {
		return "(no feedback)"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[weight %.0f] %s (score %.0f/100):\n%s",
			it.Weight, strings.TrimSpace(it.AgentName), it.Score, strings.TrimSpace(it.Feedback))
	}
	return b.String()
}

func buildOptimizeModelOptions(in *wfmodel.PromptOptimizeInput) []model.Option {
	opts := make([]model.Option, 0, 3)
	if in == nil {
		return opts
	}

	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}
	return opts
}
