package model

import "time"

type LLMUsageMeta struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	GeneratedAt      time.Time
}

func (m LLMUsageMeta) TotalTokens() int64 {
	return int64(m.PromptTokens + m.CompletionTokens)
}
