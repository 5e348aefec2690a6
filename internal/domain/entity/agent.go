// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// AgentType Agent 类型
type AgentType string

const (
	AgentTypeExpert   AgentType = "EXPERT"
	AgentTypeAudience AgentType = "AUDIENCE"
)

// AgentStatus Agent 状态
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "ACTIVE"
	AgentStatusInactive AgentStatus = "INACTIVE"
)

// ThinkingLevel 推理强度
type ThinkingLevel string

const (
	ThinkingLevelLow    ThinkingLevel = "low"
	ThinkingLevelMedium ThinkingLevel = "medium"
	ThinkingLevelHigh   ThinkingLevel = "high"
)

// RAGConfig 检索增强配置
type RAGConfig struct {
	TopK                int     `json:"top_k,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// 检索默认值：RAGConfig 缺省或字段为零值时生效
const (
	DefaultRAGTopK                = 5
	DefaultRAGSimilarityThreshold = 0.7
)

// Capabilities Agent 能力标记
type Capabilities struct {
	CanJudge  bool      `json:"can_judge"`
	AgentType AgentType `json:"agent_type"`
}

// Agent 评审/优化人格实体
type Agent struct {
	ID                   string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name                 string         `json:"name" gorm:"type:varchar(255);not null"`
	Description          string         `json:"description,omitempty" gorm:"type:text"`
	SystemPrompt         string         `json:"system_prompt" gorm:"type:text"`
	JudgePrompt          string         `json:"judge_prompt" gorm:"type:text"`
	EvaluationCategories pq.StringArray `json:"evaluation_categories,omitempty" gorm:"type:text[]"`
	OptimizationWeight   int            `json:"optimization_weight" gorm:"default:50"`
	ScoringWeight        int            `json:"scoring_weight" gorm:"default:50"`
	RAGConfig            *RAGConfig     `json:"rag_config,omitempty" gorm:"type:jsonb;serializer:json"`
	Capabilities         *Capabilities  `json:"capabilities" gorm:"type:jsonb;serializer:json"`
	ModelTier            string         `json:"model_tier,omitempty" gorm:"type:varchar(50)"`
	ThinkingLevel        ThinkingLevel  `json:"thinking_level,omitempty" gorm:"type:varchar(20)"`
	Temperature          float64        `json:"temperature" gorm:"default:0.7"`
	MaxTokens            int            `json:"max_tokens" gorm:"default:2048"`
	Status               AgentStatus    `json:"status" gorm:"type:varchar(20);default:'ACTIVE'"`
	TeamAgentIDs         pq.StringArray `json:"team_agent_ids,omitempty" gorm:"type:text[]"`
	CreatedAt            time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Agent) TableName() string {
	return "agents"
}

// CanServeAsJudge 检查是否可进入评审面板
func (a *Agent) CanServeAsJudge() bool {
	if a == nil || a.Status != AgentStatusActive {
		return false
	}
	return a.Capabilities != nil && a.Capabilities.CanJudge
}

// IsTeam 是否为组合型 Agent（评审时展开为成员）
func (a *Agent) IsTeam() bool {
	return a != nil && len(a.TeamAgentIDs) > 0
}

// EffectiveRAGConfig 返回应用默认值后的检索配置
func (a *Agent) EffectiveRAGConfig() RAGConfig {
	out := RAGConfig{
		TopK:                DefaultRAGTopK,
		SimilarityThreshold: DefaultRAGSimilarityThreshold,
	}
	if a == nil || a.RAGConfig == nil {
		return out
	}
	if a.RAGConfig.TopK > 0 {
		out.TopK = a.RAGConfig.TopK
	}
	if a.RAGConfig.SimilarityThreshold > 0 {
		out.SimilarityThreshold = a.RAGConfig.SimilarityThreshold
	}
	return out
}
