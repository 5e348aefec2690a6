// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"z-image-ai-api/internal/domain/entity"
)

// PutOptimizerConfigRequest 更新提示词优化器配置请求
type PutOptimizerConfigRequest struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model" binding:"required"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// ToEntity 转换为领域实体（单例记录）
func (r *PutOptimizerConfigRequest) ToEntity() *entity.PromptOptimizerConfig {
	cfg := entity.DefaultPromptOptimizerConfig()
	cfg.Provider = r.Provider
	cfg.Model = r.Model
	if r.Temperature != nil {
		cfg.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		cfg.MaxTokens = *r.MaxTokens
	}
	return cfg
}
