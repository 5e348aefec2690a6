// Package entity 定义领域实体
package entity

import "time"

// OptimizerConfigID 单例记录的固定主键
const OptimizerConfigID = "default"

// PromptOptimizerConfig 提示词优化器配置
// 进程级单条记录，启动时加载一次并显式传入 Synthesizer，不经全局查找
type PromptOptimizerConfig struct {
	ID          string    `json:"id" gorm:"type:varchar(32);primaryKey"`
	Provider    string    `json:"provider" gorm:"type:varchar(64)"`
	Model       string    `json:"model" gorm:"type:varchar(128);not null"`
	Temperature float64   `json:"temperature" gorm:"default:0.7"`
	MaxTokens   int       `json:"max_tokens" gorm:"default:1024"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PromptOptimizerConfig) TableName() string {
	return "prompt_optimizer_configs"
}

// DefaultPromptOptimizerConfig 默认优化器配置
func DefaultPromptOptimizerConfig() *PromptOptimizerConfig {
	return &PromptOptimizerConfig{
		ID:          OptimizerConfigID,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}
