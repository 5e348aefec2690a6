// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-image-ai-api/internal/application/generation"
	"z-image-ai-api/pkg/logger"
)

// 事件去重键的保留时间，覆盖请求的完整生命周期即可
const defaultEventDedupTTL = 24 * time.Hour

// EventPublisher 精炼过程事件发布器。
// 以 (request_id, iteration, type) 为去重键（STATUS_CHANGE 额外纳入状态），
// 借助 SETNX 保证同一事件至多发布一次；
// 崩溃恢复后重放同一迭代边界不会产生重复事件。
type EventPublisher struct {
	client   *redis.Client
	producer *Producer
	dedupTTL time.Duration
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(client *redis.Client, producer *Producer) *EventPublisher {
	return &EventPublisher{
		client:   client,
		producer: producer,
		dedupTTL: defaultEventDedupTTL,
	}
}

// PublishEvent 发布精炼过程事件
func (p *EventPublisher) PublishEvent(ctx context.Context, evt *generation.Event) error {
	ctx, span := tracer.Start(ctx, "events.Publish",
		trace.WithAttributes(
			attribute.String("event.request_id", evt.RequestID),
			attribute.Int("event.iteration", evt.IterationNumber),
			attribute.String("event.type", string(evt.Type)),
		))
	defer span.End()

	dedupKey := eventDedupKey(evt)
	ok, err := p.client.SetNX(ctx, dedupKey, 1, p.dedupTTL).Result()
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "event dedup check failed, publishing anyway",
			"request_id", evt.RequestID, "type", evt.Type, "error", err.Error())
	} else if !ok {
		span.SetAttributes(attribute.Bool("event.duplicate", true))
		return nil
	}

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	msg, err := NewMessage(dedupKey, MsgTypeRefineEvent, "", evt)
	if err != nil {
		span.RecordError(err)
		return err
	}
	msg.SetMetadata("request_id", evt.RequestID)

	if _, err := p.producer.Publish(ctx, StreamRefineEvents, msg); err != nil {
		logger.Warn(ctx, "failed to publish refine event",
			"request_id", evt.RequestID, "type", evt.Type, "error", err.Error())
		return err
	}
	return nil
}

// eventDedupKey 构造事件去重键。
// 同一迭代会经历多次状态变更（optimizing → generating → evaluating），
// STATUS_CHANGE 需把状态纳入键，否则同轮的后续状态被 SETNX 吞掉；
// 其余类型每轮至多一次，(request, iteration, type) 已足够。
func eventDedupKey(evt *generation.Event) string {
	if evt.Type == generation.EventStatusChange {
		return fmt.Sprintf("evt:%s:%d:%s:%s", evt.RequestID, evt.IterationNumber, evt.Type, evt.Status)
	}
	return fmt.Sprintf("evt:%s:%d:%s", evt.RequestID, evt.IterationNumber, evt.Type)
}

var _ generation.EventPublisher = (*EventPublisher)(nil)
var _ generation.JobEnqueuer = (*Producer)(nil)
