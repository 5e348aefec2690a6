// Package pricing 提供版本化价格表与成本估算
package pricing

import (
	"z-image-ai-api/internal/config"
	"z-image-ai-api/internal/domain/entity"
)

// Table 版本化价格表
// 金额估算是用量的纯函数，避免与累计值产生漂移
type Table struct {
	Version                string
	LLMTokenUSDPer1K       float64
	EmbeddingTokenUSDPer1K float64
	ImageGenerationUSDEach float64
}

// NewTable 从配置构建价格表
func NewTable(cfg *config.PricingConfig) *Table {
	if cfg == nil {
		return &Table{Version: "unset"}
	}
	return &Table{
		Version:                cfg.Version,
		LLMTokenUSDPer1K:       cfg.LLMTokenUSDPer1K,
		EmbeddingTokenUSDPer1K: cfg.EmbeddingTokenUSDPer1K,
		ImageGenerationUSDEach: cfg.ImageGenerationUSDEach,
	}
}

// EstimateTotal 按当前价格表估算总成本（USD）
func (t *Table) EstimateTotal(totals entity.CostTotals) float64 {
	if t == nil {
		return 0
	}
	return float64(totals.LLMTokens)/1000*t.LLMTokenUSDPer1K +
		float64(totals.EmbeddingTokens)/1000*t.EmbeddingTokenUSDPer1K +
		float64(totals.ImageGenerations)*t.ImageGenerationUSDEach
}

// EstimateBreakdown 按资源类型拆分的成本估算
func (t *Table) EstimateBreakdown(totals entity.CostTotals) map[string]float64 {
	if t == nil {
		return nil
	}
	return map[string]float64{
		"llm_tokens":        float64(totals.LLMTokens) / 1000 * t.LLMTokenUSDPer1K,
		"embedding_tokens":  float64(totals.EmbeddingTokens) / 1000 * t.EmbeddingTokenUSDPer1K,
		"image_generations": float64(totals.ImageGenerations) * t.ImageGenerationUSDEach,
	}
}
