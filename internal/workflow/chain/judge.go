package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	wfmodel "z-image-ai-api/internal/workflow/model"
	wfnode "z-image-ai-api/internal/workflow/node"
	workflowport "z-image-ai-api/internal/workflow/port"
	workflowprompt "z-image-ai-api/internal/workflow/prompt"
	"z-image-ai-api/pkg/logger"
)

// JudgeChain 负责单个评委对单张图片的一次评分调用。
// 输出为严格的 {score, feedback} JSON，解析失败视为该评委失败。
type JudgeChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.JudgeEvaluateInput, *wfmodel.JudgeVerdict]
	chainErr  error
}

func NewJudgeChain(factory workflowport.ChatModelFactory) *JudgeChain {
	return &JudgeChain{factory: factory}
}

func (c *JudgeChain) Invoke(ctx context.Context, in *wfmodel.JudgeEvaluateInput) (*wfmodel.JudgeVerdict, error) {
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

type judgeChainState struct {
	In       *wfmodel.JudgeEvaluateInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *JudgeChain) getChain() (compose.Runnable[*wfmodel.JudgeEvaluateInput, *wfmodel.JudgeVerdict], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *JudgeChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.JudgeEvaluateInput, *wfmodel.JudgeVerdict], error) {
	chain := compose.NewChain[*wfmodel.JudgeEvaluateInput, *wfmodel.JudgeVerdict]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.JudgeEvaluateInput) (*judgeChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			msgs, err := formatJudgeMessages(ctx, in)
			if err != nil {
				return nil, err
			}
			return &judgeChainState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("judge.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *judgeChainState) (*judgeChainState, error) {
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

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildJudgeModelOptions(st.In, true)...)
			if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"provider", strings.TrimSpace(st.In.Provider),
					"model", strings.TrimSpace(st.In.Model),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildJudgeModelOptions(st.In, false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("judge.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *judgeChainState) (*wfmodel.JudgeVerdict, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return parseJudgeVerdict(st)
		}),
		compose.WithNodeName("judge.parse"),
	)

	return chain.Compile(ctx)
}

var defaultPromptRegistry = workflowprompt.NewRegistry()

func formatJudgeMessages(ctx context.Context, in *wfmodel.JudgeEvaluateInput) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptJudgeEvalV1)
	if err != nil {
		return nil, err
	}

	categories := strings.Join(in.Categories, ", ")
	if categories == "" {
		categories = "overall quality and fidelity to the brief"
	}
	reference := strings.TrimSpace(in.ReferenceContext)
	if reference == "" {
		reference = "(no reference material)"
	}

	vars := map[string]any{
		"persona":           strings.TrimSpace(in.Persona),
		"categories":        categories,
		"reference_context": reference,
		"brief":             strings.TrimSpace(in.Brief),
		"prompt_used":       strings.TrimSpace(in.PromptUsed),
		"iteration_number":  in.IterationNumber,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, err
	}

	// 将被评图片以多模态形式附加到最后一条 user 消息
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] == nil || msgs[i].Role != schema.User {
			continue
		}
		msgs[i].MultiContent = []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: msgs[i].Content},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:    strings.TrimSpace(in.ImageURL),
					Detail: schema.ImageURLDetailAuto,
				},
			},
		}
		msgs[i].Content = ""
		break
	}
	return msgs, nil
}

func parseJudgeVerdict(st *judgeChainState) (*wfmodel.JudgeVerdict, error) {
	raw := wfnode.ExtractJSONObject(st.OutMsg.Content)
	var verdict wfmodel.JudgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("parse judge verdict: %w", err)
	}
	if verdict.Score < 0 || verdict.Score > 100 {
		return nil, fmt.Errorf("judge score out of range: %.2f", verdict.Score)
	}

	verdict.Usage = wfmodel.LLMUsageMeta{
		Provider:    strings.TrimSpace(st.In.Provider),
		Model:       strings.TrimSpace(st.In.Model),
		GeneratedAt: time.Now(),
	}
	if st.OutMsg.ResponseMeta != nil && st.OutMsg.ResponseMeta.Usage != nil {
		verdict.Usage.PromptTokens = st.OutMsg.ResponseMeta.Usage.PromptTokens
		verdict.Usage.CompletionTokens = st.OutMsg.ResponseMeta.Usage.CompletionTokens
	}
	return &verdict, nil
}

func buildJudgeModelOptions(in *wfmodel.JudgeEvaluateInput, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 4)
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

	if enableSchema {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   "judge_verdict",
					"strict": false,
					"schema": judgeVerdictJSONSchema(),
				},
			},
		}))
	}

	return opts
}

func judgeVerdictJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"score", "feedback"},
		"properties": map[string]any{
			"score":    map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"feedback": map[string]any{"type": "string"},
		},
	}
}
