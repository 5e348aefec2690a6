// Package entity 定义领域实体
package entity

// CostTotals 资源用量累计
// 金额估算由 pricing 包按价格表纯函数计算，不单独落库
type CostTotals struct {
	LLMTokens        int64 `json:"llm_tokens"`
	EmbeddingTokens  int64 `json:"embedding_tokens"`
	ImageGenerations int64 `json:"image_generations"`
}

// AddLLMTokens 累计 LLM token 用量
func (c *CostTotals) AddLLMTokens(n int64) {
	if n > 0 {
		c.LLMTokens += n
	}
}

// AddEmbeddingTokens 累计 Embedding token 用量
func (c *CostTotals) AddEmbeddingTokens(n int64) {
	if n > 0 {
		c.EmbeddingTokens += n
	}
}

// AddImageGenerations 累计图像生成次数
func (c *CostTotals) AddImageGenerations(n int64) {
	if n > 0 {
		c.ImageGenerations += n
	}
}

// Merge 合并另一份用量
func (c *CostTotals) Merge(other CostTotals) {
	c.LLMTokens += other.LLMTokens
	c.EmbeddingTokens += other.EmbeddingTokens
	c.ImageGenerations += other.ImageGenerations
}
