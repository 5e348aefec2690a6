// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"z-image-ai-api/internal/domain/entity"
)

// RAGConfigDTO 检索增强配置
type RAGConfigDTO struct {
	TopK                int     `json:"top_k,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// CapabilitiesDTO Agent 能力标记
type CapabilitiesDTO struct {
	CanJudge  bool   `json:"can_judge"`
	AgentType string `json:"agent_type"`
}

// CreateAgentRequest 创建 Agent 请求
type CreateAgentRequest struct {
	Name                 string           `json:"name" binding:"required"`
	Description          string           `json:"description,omitempty"`
	SystemPrompt         string           `json:"system_prompt,omitempty"`
	JudgePrompt          string           `json:"judge_prompt,omitempty"`
	EvaluationCategories []string         `json:"evaluation_categories,omitempty"`
	OptimizationWeight   *int             `json:"optimization_weight,omitempty"`
	ScoringWeight        *int             `json:"scoring_weight,omitempty"`
	RAGConfig            *RAGConfigDTO    `json:"rag_config,omitempty"`
	Capabilities         *CapabilitiesDTO `json:"capabilities,omitempty"`
	ModelTier            string           `json:"model_tier,omitempty"`
	ThinkingLevel        string           `json:"thinking_level,omitempty"`
	Temperature          *float64         `json:"temperature,omitempty"`
	MaxTokens            *int             `json:"max_tokens,omitempty"`
	TeamAgentIDs         []string         `json:"team_agent_ids,omitempty"`
}

// ToEntity 转换为领域实体
func (r *CreateAgentRequest) ToEntity() *entity.Agent {
	a := &entity.Agent{
		Name:                 r.Name,
		Description:          r.Description,
		SystemPrompt:         r.SystemPrompt,
		JudgePrompt:          r.JudgePrompt,
		EvaluationCategories: r.EvaluationCategories,
		OptimizationWeight:   50,
		ScoringWeight:        50,
		ModelTier:            r.ModelTier,
		ThinkingLevel:        entity.ThinkingLevel(r.ThinkingLevel),
		Temperature:          0.7,
		MaxTokens:            2048,
		Status:               entity.AgentStatusActive,
		TeamAgentIDs:         r.TeamAgentIDs,
	}
	if r.OptimizationWeight != nil {
		a.OptimizationWeight = *r.OptimizationWeight
	}
	if r.ScoringWeight != nil {
		a.ScoringWeight = *r.ScoringWeight
	}
	if r.Temperature != nil {
		a.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		a.MaxTokens = *r.MaxTokens
	}
	if r.RAGConfig != nil {
		a.RAGConfig = &entity.RAGConfig{
			TopK:                r.RAGConfig.TopK,
			SimilarityThreshold: r.RAGConfig.SimilarityThreshold,
		}
	}
	if r.Capabilities != nil {
		a.Capabilities = &entity.Capabilities{
			CanJudge:  r.Capabilities.CanJudge,
			AgentType: entity.AgentType(r.Capabilities.AgentType),
		}
	}
	return a
}

// UpdateAgentRequest 更新 Agent 请求；nil 字段保持不变
type UpdateAgentRequest struct {
	Name                 *string          `json:"name,omitempty"`
	Description          *string          `json:"description,omitempty"`
	SystemPrompt         *string          `json:"system_prompt,omitempty"`
	JudgePrompt          *string          `json:"judge_prompt,omitempty"`
	EvaluationCategories []string         `json:"evaluation_categories,omitempty"`
	OptimizationWeight   *int             `json:"optimization_weight,omitempty"`
	ScoringWeight        *int             `json:"scoring_weight,omitempty"`
	RAGConfig            *RAGConfigDTO    `json:"rag_config,omitempty"`
	Capabilities         *CapabilitiesDTO `json:"capabilities,omitempty"`
	ModelTier            *string          `json:"model_tier,omitempty"`
	ThinkingLevel        *string          `json:"thinking_level,omitempty"`
	Temperature          *float64         `json:"temperature,omitempty"`
	MaxTokens            *int             `json:"max_tokens,omitempty"`
	Status               *string          `json:"status,omitempty"`
	TeamAgentIDs         []string         `json:"team_agent_ids,omitempty"`
}

// ApplyTo 将非 nil 字段合并进现有实体
func (r *UpdateAgentRequest) ApplyTo(a *entity.Agent) {
	if r.Name != nil {
		a.Name = *r.Name
	}
	if r.Description != nil {
		a.Description = *r.Description
	}
	if r.SystemPrompt != nil {
		a.SystemPrompt = *r.SystemPrompt
	}
	if r.JudgePrompt != nil {
		a.JudgePrompt = *r.JudgePrompt
	}
	if r.EvaluationCategories != nil {
		a.EvaluationCategories = r.EvaluationCategories
	}
	if r.OptimizationWeight != nil {
		a.OptimizationWeight = *r.OptimizationWeight
	}
	if r.ScoringWeight != nil {
		a.ScoringWeight = *r.ScoringWeight
	}
	if r.RAGConfig != nil {
		a.RAGConfig = &entity.RAGConfig{
			TopK:                r.RAGConfig.TopK,
			SimilarityThreshold: r.RAGConfig.SimilarityThreshold,
		}
	}
	if r.Capabilities != nil {
		a.Capabilities = &entity.Capabilities{
			CanJudge:  r.Capabilities.CanJudge,
			AgentType: entity.AgentType(r.Capabilities.AgentType),
		}
	}
	if r.ModelTier != nil {
		a.ModelTier = *r.ModelTier
	}
	if r.ThinkingLevel != nil {
		a.ThinkingLevel = entity.ThinkingLevel(*r.ThinkingLevel)
	}
	if r.Temperature != nil {
		a.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		a.MaxTokens = *r.MaxTokens
	}
	if r.Status != nil {
		a.Status = entity.AgentStatus(*r.Status)
	}
	if r.TeamAgentIDs != nil {
		a.TeamAgentIDs = r.TeamAgentIDs
	}
}

// AgentListResponse Agent 列表响应
type AgentListResponse struct {
	Agents []*entity.Agent `json:"agents"`
}
