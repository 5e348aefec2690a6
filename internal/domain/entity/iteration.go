// Package entity 定义领域实体
package entity

import "time"

// JudgeResult 单个评审 Agent 的评审结果
type JudgeResult struct {
	AgentID            string    `json:"agent_id"`
	AgentName          string    `json:"agent_name,omitempty"`
	AgentType          AgentType `json:"agent_type,omitempty"`
	Score              float64   `json:"score"`
	Feedback           string    `json:"feedback,omitempty"`
	ScoringWeight      int       `json:"scoring_weight"`
	OptimizationWeight int       `json:"optimization_weight"`
}

// IterationSnapshot 单轮循环的不可变记录
type IterationSnapshot struct {
	IterationNumber int           `json:"iteration_number"`
	PromptUsed      string        `json:"prompt_used"`
	JudgeResults    []JudgeResult `json:"judge_results"`
	AggregateScore  float64       `json:"aggregate_score"`
	ImageIDs        []string      `json:"image_ids"`
	BestImageID     string        `json:"best_image_id"`
	CreatedAt       time.Time     `json:"created_at"`
}
