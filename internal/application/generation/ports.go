package generation

import (
	"context"
	"time"
)

// GenerateParams 单轮图像生成参数
type GenerateParams struct {
	RequestID       string
	IterationNumber int
	Prompt          string
	NegativePrompt  string
	ReferenceURLs   []string

	Count   int
	Model   string
	Size    string
	Quality string
	Style   string
}

// GeneratedCandidate 生成器返回的单张候选图
type GeneratedCandidate struct {
	URL       string
	Width     int
	Height    int
	MimeType  string
	SizeBytes int64
}

// ImageGenerator 图像生成端口；实现方负责瞬时错误的重试
type ImageGenerator interface {
	Generate(ctx context.Context, params *GenerateParams) ([]*GeneratedCandidate, error)
}

// EventType 精炼过程事件类型
type EventType string

const (
	EventStatusChange      EventType = "STATUS_CHANGE"
	EventIterationComplete EventType = "ITERATION_COMPLETE"
	EventCompleted         EventType = "COMPLETED"
	EventFailed            EventType = "FAILED"
)

// Event 精炼过程事件。
// (RequestID, IterationNumber, Type) 构成去重键（STATUS_CHANGE 另含状态值），
// 发布端保证至多一次投递。
type Event struct {
	RequestID       string    `json:"request_id"`
	IterationNumber int       `json:"iteration_number"`
	Type            EventType `json:"type"`
	Status          string    `json:"status,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	AggregateScore  float64   `json:"aggregate_score,omitempty"`
	Message         string    `json:"message,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EventPublisher 过程事件发布端口。
// 发布失败不阻断精炼流程，实现方自行记录日志。
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt *Event) error
}

// JobEnqueuer 精炼任务入队端口
type JobEnqueuer interface {
	PublishRefineJob(ctx context.Context, requestID string) error
}
