// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RequestStatus 生成请求状态
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusOptimizing RequestStatus = "optimizing"
	RequestStatusGenerating RequestStatus = "generating"
	RequestStatusEvaluating RequestStatus = "evaluating"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// CompletionReason 终态分类
type CompletionReason string

const (
	ReasonSuccess            CompletionReason = "SUCCESS"
	ReasonMaxRetriesReached  CompletionReason = "MAX_RETRIES_REACHED"
	ReasonDiminishingReturns CompletionReason = "DIMINISHING_RETURNS"
	ReasonCancelled          CompletionReason = "CANCELLED"
	ReasonError              CompletionReason = "ERROR"
)

// ImageParams 图像生成参数
type ImageParams struct {
	ImagesPerGeneration int    `json:"images_per_generation"`
	Model               string `json:"model,omitempty"`
	Size                string `json:"size,omitempty"`
	Quality             string `json:"quality,omitempty"`
	Style               string `json:"style,omitempty"`
}

// GenerationRequest 图像精炼工作单元
type GenerationRequest struct {
	ID                 string              `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID          string              `json:"project_id,omitempty" gorm:"type:uuid;index"`
	Brief              string              `json:"brief" gorm:"type:text;not null"`
	ReferenceImageURLs pq.StringArray      `json:"reference_image_urls,omitempty" gorm:"type:text[]"`
	NegativePrompts    string              `json:"negative_prompts,omitempty" gorm:"type:text"`
	JudgeIDs           pq.StringArray      `json:"judge_ids" gorm:"type:text[];not null"`
	ImageParams        *ImageParams        `json:"image_params" gorm:"type:jsonb;serializer:json"`
	Threshold          int                 `json:"threshold" gorm:"not null"`
	MaxIterations      int                 `json:"max_iterations" gorm:"not null"`
	Status             RequestStatus       `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	CurrentIteration   int                 `json:"current_iteration" gorm:"default:0"`
	FinalImageID       string              `json:"final_image_id,omitempty" gorm:"type:uuid"`
	BestImageID        string              `json:"best_image_id,omitempty" gorm:"type:uuid"`
	CompletionReason   CompletionReason    `json:"completion_reason,omitempty" gorm:"type:varchar(32)"`
	Iterations         []IterationSnapshot `json:"iterations" gorm:"type:jsonb;serializer:json"`
	Costs              *CostTotals         `json:"costs" gorm:"type:jsonb;serializer:json"`
	ErrorMessage       string              `json:"error_message,omitempty" gorm:"type:text"`
	CancelRequested    bool                `json:"cancel_requested" gorm:"default:false"`
	Version            int                 `json:"version" gorm:"default:1"`
	CreatedAt          time.Time           `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time           `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (GenerationRequest) TableName() string {
	return "generation_requests"
}

// NewGenerationRequest 创建新的生成请求
func NewGenerationRequest(brief string, judgeIDs []string, threshold, maxIterations int) *GenerationRequest {
	return &GenerationRequest{
		Brief:            brief,
		JudgeIDs:         judgeIDs,
		Threshold:        threshold,
		MaxIterations:    maxIterations,
		Status:           RequestStatusPending,
		CurrentIteration: 0,
		ImageParams:      &ImageParams{ImagesPerGeneration: 1},
		Costs:            &CostTotals{},
	}
}

// Validate 校验请求字段；进入 pending 之前的守门检查
func (r *GenerationRequest) Validate() error {
	if r.Brief == "" {
		return fmt.Errorf("brief is required")
	}
	if len(r.JudgeIDs) == 0 {
		return fmt.Errorf("judge_ids must not be empty")
	}
	if r.Threshold < 0 || r.Threshold > 100 {
		return fmt.Errorf("threshold must be within [0,100], got %d", r.Threshold)
	}
	if r.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", r.MaxIterations)
	}
	if r.ImageParams == nil || r.ImageParams.ImagesPerGeneration < 1 {
		return fmt.Errorf("image_params.images_per_generation must be >= 1")
	}
	return nil
}

// IsTerminal 是否处于终态
func (r *GenerationRequest) IsTerminal() bool {
	switch r.Status {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// MarkGenerating 进入图像生成阶段
// 首轮从 pending 直接进入（跳过 optimizing），后续轮次从 optimizing 进入
func (r *GenerationRequest) MarkGenerating() error {
	switch r.Status {
	case RequestStatusPending, RequestStatusOptimizing:
		r.Status = RequestStatusGenerating
		return nil
	default:
		return fmt.Errorf("cannot transition %s -> generating", r.Status)
	}
}

// MarkEvaluating 进入评审阶段
func (r *GenerationRequest) MarkEvaluating() error {
	if r.Status != RequestStatusGenerating {
		return fmt.Errorf("cannot transition %s -> evaluating", r.Status)
	}
	r.Status = RequestStatusEvaluating
	return nil
}

// MarkOptimizing 进入提示词优化阶段
func (r *GenerationRequest) MarkOptimizing() error {
	if r.Status != RequestStatusEvaluating {
		return fmt.Errorf("cannot transition %s -> optimizing", r.Status)
	}
	r.Status = RequestStatusOptimizing
	return nil
}

// AppendIteration 追加一轮迭代快照
// 迭代号必须严格递增；追加后 len(Iterations) == CurrentIteration 恒成立
func (r *GenerationRequest) AppendIteration(snap IterationSnapshot) error {
	if r.IsTerminal() {
		return fmt.Errorf("request %s is terminal", r.ID)
	}
	if snap.IterationNumber != r.CurrentIteration+1 {
		return fmt.Errorf("iteration number %d out of order, expected %d", snap.IterationNumber, r.CurrentIteration+1)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	r.Iterations = append(r.Iterations, snap)
	r.CurrentIteration = snap.IterationNumber
	return nil
}

// AddCosts 累计用量
func (r *GenerationRequest) AddCosts(delta CostTotals) {
	if r.Costs == nil {
		r.Costs = &CostTotals{}
	}
	r.Costs.Merge(delta)
}

// Complete 以指定原因进入 completed 终态
// FinalImageID 仅在 SUCCESS 时设置；其余完成原因通过 BestImageID 暴露最优结果。
// 对已终态的请求重复调用是无操作。
func (r *GenerationRequest) Complete(reason CompletionReason, finalImageID string) {
	if r.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	r.Status = RequestStatusCompleted
	r.CompletionReason = reason
	r.CompletedAt = &now
	if reason == ReasonSuccess {
		r.FinalImageID = finalImageID
	}
	if finalImageID != "" {
		r.BestImageID = finalImageID
	}
}

// Fail 以不可恢复错误进入 failed 终态；重复调用是无操作
func (r *GenerationRequest) Fail(errMsg string) {
	if r.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	r.Status = RequestStatusFailed
	r.CompletionReason = ReasonError
	r.ErrorMessage = errMsg
	r.CompletedAt = &now
}

// Cancel 进入 cancelled 终态；重复调用是无操作
func (r *GenerationRequest) Cancel() {
	if r.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	r.Status = RequestStatusCancelled
	r.CompletionReason = ReasonCancelled
	r.CompletedAt = &now
}

// RequestCancel 标记协作式取消；在下一个迭代边界被观察到
func (r *GenerationRequest) RequestCancel() error {
	if r.IsTerminal() {
		return fmt.Errorf("request %s is terminal", r.ID)
	}
	r.CancelRequested = true
	return nil
}

// LastAggregateScores 返回最近 n 轮的聚合分（按迭代顺序）
func (r *GenerationRequest) LastAggregateScores(n int) []float64 {
	if n <= 0 || len(r.Iterations) == 0 {
		return nil
	}
	start := len(r.Iterations) - n
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, n)
	for _, it := range r.Iterations[start:] {
		out = append(out, it.AggregateScore)
	}
	return out
}

// BestIteration 返回聚合分最高的一轮；并列时取较早一轮
func (r *GenerationRequest) BestIteration() *IterationSnapshot {
	var best *IterationSnapshot
	for i := range r.Iterations {
		it := &r.Iterations[i]
		if best == nil || it.AggregateScore > best.AggregateScore {
			best = it
		}
	}
	return best
}
