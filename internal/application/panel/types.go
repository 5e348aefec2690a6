package panel

import "z-image-ai-api/internal/domain/entity"

// EvaluateInput 一次面板评审的输入：固定面板 + 单张候选图
type EvaluateInput struct {
	RequestID       string
	Brief           string
	PromptUsed      string
	IterationNumber int
	ImageURL        string

	Judges []*entity.Agent
}

// EvaluateOutput 面板评审结果。
// AggregateScore 只在成功评委上重新归一化权重后计算。
type EvaluateOutput struct {
	Results        []entity.JudgeResult
	AggregateScore float64

	LLMTokens       int64
	EmbeddingTokens int64

	// Failed 记录失败评委的 AgentID -> 错误描述，供日志与排障
	Failed map[string]string
}
