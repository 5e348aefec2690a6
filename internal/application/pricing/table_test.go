package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-image-ai-api/internal/config"
	"z-image-ai-api/internal/domain/entity"
)

func testTable() *Table {
	return NewTable(&config.PricingConfig{
		Version:                "2025-08",
		LLMTokenUSDPer1K:       0.01,
		EmbeddingTokenUSDPer1K: 0.0001,
		ImageGenerationUSDEach: 0.04,
	})
}

func TestEstimateTotal(t *testing.T) {
	table := testTable()

	totals := entity.CostTotals{
		LLMTokens:        2000,
		EmbeddingTokens:  10000,
		ImageGenerations: 3,
	}

	// 2000/1000*0.01 + 10000/1000*0.0001 + 3*0.04
	assert.InDelta(t, 0.02+0.001+0.12, table.EstimateTotal(totals), 1e-9)
	assert.Zero(t, table.EstimateTotal(entity.CostTotals{}))
}

func TestEstimateBreakdown_SumsToTotal(t *testing.T) {
	table := testTable()
	totals := entity.CostTotals{LLMTokens: 1500, EmbeddingTokens: 500, ImageGenerations: 2}

	breakdown := table.EstimateBreakdown(totals)
	require.Len(t, breakdown, 3)

	var sum float64
	for _, v := range breakdown {
		sum += v
	}
	assert.InDelta(t, table.EstimateTotal(totals), sum, 1e-9)
}

func TestNewTable_NilConfig(t *testing.T) {
	table := NewTable(nil)
	require.NotNil(t, table)
	assert.Equal(t, "unset", table.Version)
	assert.Zero(t, table.EstimateTotal(entity.CostTotals{LLMTokens: 1000}))
}

func TestEstimate_NilTable(t *testing.T) {
	var table *Table
	assert.Zero(t, table.EstimateTotal(entity.CostTotals{LLMTokens: 1000}))
	assert.Nil(t, table.EstimateBreakdown(entity.CostTotals{}))
}
