// Package generation 实现图像精炼主循环：生成 -> 评审 -> 终止判定 -> 提示词优化
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"z-image-ai-api/internal/application/optimizer"
	"z-image-ai-api/internal/application/panel"
	"z-image-ai-api/internal/application/pricing"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
	"z-image-ai-api/pkg/metrics"
)

const defaultMinScoreGain = 2.0

// Orchestrator 驱动单个生成请求的完整精炼循环。
// 所有状态变更都立即持久化，worker 崩溃后可从上次边界恢复。
type Orchestrator struct {
	requestRepo repository.RequestRepository
	imageRepo   repository.ImageRepository

	panel       *panel.Panel
	synthesizer *optimizer.Synthesizer
	generator   ImageGenerator
	events      EventPublisher
	pricing     *pricing.Table

	minScoreGain float64
}

func NewOrchestrator(
	requestRepo repository.RequestRepository,
	imageRepo repository.ImageRepository,
	panelSvc *panel.Panel,
	synthesizer *optimizer.Synthesizer,
	generator ImageGenerator,
	events EventPublisher,
	pricingTable *pricing.Table,
	minScoreGain float64,
) *Orchestrator {
	if minScoreGain <= 0 {
		minScoreGain = defaultMinScoreGain
	}
	return &Orchestrator{
		requestRepo:  requestRepo,
		imageRepo:    imageRepo,
		panel:        panelSvc,
		synthesizer:  synthesizer,
		generator:    generator,
		events:       events,
		pricing:      pricingTable,
		minScoreGain: minScoreGain,
	}
}

// Run 执行精炼循环直至终态。
// 对已终态的请求是无操作（消息重投递安全）；非终态中间状态视为
// 上次运行中断，从当前迭代边界继续。
func (o *Orchestrator) Run(ctx context.Context, requestID string) error {
	start := time.Now()

	req, err := o.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return apperrors.ErrRequestNotFound.WithDetail(requestID)
	}
	if req.IsTerminal() {
		logger.Info(ctx, "request already terminal, skipping", "request_id", requestID, "status", string(req.Status))
		return nil
	}

	// 中断恢复：将中间状态归位到迭代边界。
	// 尚无完成迭代时回到 pending，否则回到 evaluating（下轮从优化阶段继续）。
	if req.Status != entity.RequestStatusPending {
		if req.CurrentIteration == 0 {
			req.Status = entity.RequestStatusPending
		} else {
			req.Status = entity.RequestStatusEvaluating
		}
	}

	// 面板在请求生命周期内固定，循环前解析一次
	judges, err := o.panel.ResolvePanel(ctx, req.JudgeIDs)
	if err != nil {
		return o.fail(ctx, req, fmt.Sprintf("resolve judge panel: %v", err))
	}

	err = o.runLoop(ctx, req, judges)

	reason := string(req.CompletionReason)
	if reason == "" {
		reason = "unknown"
	}
	metrics.RefinementRequestsTotal.WithLabelValues(reason).Inc()
	metrics.RefinementIterations.WithLabelValues(reason).Observe(float64(req.CurrentIteration))
	metrics.RefinementDuration.WithLabelValues(reason).Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) runLoop(ctx context.Context, req *entity.GenerationRequest, judges []*entity.Agent) error {
	prompt := req.Brief
	if last := lastSnapshot(req); last != nil {
		prompt = last.PromptUsed

		// 恢复运行先重放上一轮的终止判定：崩溃可能发生在快照
		// 落盘之后、终态落盘之前，否则请求会卡在非终态
		if done, err := o.checkTermination(ctx, req, last); err != nil || done {
			return err
		}
	}

	for req.CurrentIteration < req.MaxIterations {
		cancelled, err := o.observeCancel(ctx, req)
		if err != nil {
			return err
		}
		if cancelled {
			return nil
		}

		// 第一轮直接用 brief；后续轮次先进入优化阶段改写 prompt
		if req.CurrentIteration > 0 {
			if err := req.MarkOptimizing(); err != nil {
				return o.fail(ctx, req, err.Error())
			}
			if err := o.persist(ctx, req); err != nil {
				return err
			}
			o.publishStatus(ctx, req)

			out, err := o.synthesizer.Synthesize(ctx, &optimizer.SynthesizeInput{
				RequestID:       req.ID,
				Brief:           req.Brief,
				NegativePrompts: req.NegativePrompts,
				Previous:        lastSnapshot(req),
			})
			if err != nil {
				return o.fail(ctx, req, fmt.Sprintf("synthesize prompt: %v", err))
			}
			prompt = out.Prompt
			req.AddCosts(entity.CostTotals{LLMTokens: out.LLMTokens})
		}

		if err := req.MarkGenerating(); err != nil {
			return o.fail(ctx, req, err.Error())
		}
		if err := o.persist(ctx, req); err != nil {
			return err
		}
		o.publishStatus(ctx, req)

		images, err := o.generateImages(ctx, req, prompt)
		if err != nil {
			return o.fail(ctx, req, fmt.Sprintf("generate images: %v", err))
		}
		req.AddCosts(entity.CostTotals{ImageGenerations: int64(len(images))})
		o.recordCost(entity.CostTotals{ImageGenerations: int64(len(images))})

		if err := req.MarkEvaluating(); err != nil {
			return o.fail(ctx, req, err.Error())
		}
		if err := o.persist(ctx, req); err != nil {
			return err
		}
		o.publishStatus(ctx, req)

		snap, err := o.evaluateCandidates(ctx, req, judges, prompt, images)
		if err != nil {
			return o.fail(ctx, req, fmt.Sprintf("evaluate candidates: %v", err))
		}

		if err := req.AppendIteration(*snap); err != nil {
			return o.fail(ctx, req, err.Error())
		}
		if err := o.persist(ctx, req); err != nil {
			return err
		}
		o.publish(ctx, &Event{
			RequestID:       req.ID,
			IterationNumber: snap.IterationNumber,
			Type:            EventIterationComplete,
			Status:          string(req.Status),
			AggregateScore:  snap.AggregateScore,
		})

		logger.Info(ctx, "iteration complete",
			"request_id", req.ID,
			"iteration", snap.IterationNumber,
			"aggregate_score", snap.AggregateScore,
			"candidates", len(snap.ImageIDs),
		)

		if done, err := o.checkTermination(ctx, req, snap); err != nil || done {
			return err
		}
	}
	return nil
}

// observeCancel 在迭代边界重新读取取消标记
func (o *Orchestrator) observeCancel(ctx context.Context, req *entity.GenerationRequest) (bool, error) {
	fresh, err := o.requestRepo.GetByID(ctx, req.ID)
	if err != nil {
		return false, err
	}
	if fresh == nil {
		return false, apperrors.ErrRequestNotFound.WithDetail(req.ID)
	}
	req.CancelRequested = fresh.CancelRequested
	if !req.CancelRequested {
		return false, nil
	}

	req.Cancel()
	if best := req.BestIteration(); best != nil {
		req.BestImageID = best.BestImageID
	}
	if err := o.persist(ctx, req); err != nil {
		return false, err
	}
	o.publish(ctx, &Event{
		RequestID:       req.ID,
		IterationNumber: req.CurrentIteration,
		Type:            EventCompleted,
		Status:          string(req.Status),
		Reason:          string(entity.ReasonCancelled),
	})
	logger.Info(ctx, "request cancelled", "request_id", req.ID, "iteration", req.CurrentIteration)
	return true, nil
}

func (o *Orchestrator) generateImages(ctx context.Context, req *entity.GenerationRequest, prompt string) ([]*entity.GeneratedImage, error) {
	params := &GenerateParams{
		RequestID:       req.ID,
		IterationNumber: req.CurrentIteration + 1,
		Prompt:          prompt,
		NegativePrompt:  req.NegativePrompts,
		ReferenceURLs:   req.ReferenceImageURLs,
		Count:           1,
	}
	if p := req.ImageParams; p != nil {
		if p.ImagesPerGeneration > 0 {
			params.Count = p.ImagesPerGeneration
		}
		params.Model = p.Model
		params.Size = p.Size
		params.Quality = p.Quality
		params.Style = p.Style
	}

	candidates, err := o.generator.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperrors.ErrGenerationFailed.WithDetail("generator returned no images")
	}

	images := make([]*entity.GeneratedImage, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || strings.TrimSpace(c.URL) == "" {
			continue
		}
		images = append(images, &entity.GeneratedImage{
			RequestID:       req.ID,
			IterationNumber: params.IterationNumber,
			URL:             c.URL,
			Width:           c.Width,
			Height:          c.Height,
			MimeType:        c.MimeType,
			SizeBytes:       c.SizeBytes,
		})
	}
	if len(images) == 0 {
		return nil, apperrors.ErrGenerationFailed.WithDetail("generator returned no usable images")
	}
	if err := o.imageRepo.CreateBatch(ctx, images); err != nil {
		return nil, err
	}
	return images, nil
}

// evaluateCandidates 让固定面板对每张候选图评分，以聚合分最高者作为本轮结果。
// 单张候选图评审失败不终止本轮；所有候选图均失败时本轮失败。
func (o *Orchestrator) evaluateCandidates(
	ctx context.Context,
	req *entity.GenerationRequest,
	judges []*entity.Agent,
	prompt string,
	images []*entity.GeneratedImage,
) (*entity.IterationSnapshot, error) {
	iteration := req.CurrentIteration + 1

	var best *panel.EvaluateOutput
	var bestImage *entity.GeneratedImage
	var lastErr error
	imageIDs := make([]string, 0, len(images))

	for _, img := range images {
		imageIDs = append(imageIDs, img.ID)

		out, err := o.panel.Evaluate(ctx, &panel.EvaluateInput{
			RequestID:       req.ID,
			Brief:           req.Brief,
			PromptUsed:      prompt,
			IterationNumber: iteration,
			ImageURL:        img.URL,
			Judges:          judges,
		})
		if err != nil {
			lastErr = err
			logger.Warn(ctx, "candidate evaluation failed",
				"request_id", req.ID,
				"image_id", img.ID,
				"iteration", iteration,
				"error", err.Error(),
			)
			continue
		}

		req.AddCosts(entity.CostTotals{
			LLMTokens:       out.LLMTokens,
			EmbeddingTokens: out.EmbeddingTokens,
		})
		o.recordCost(entity.CostTotals{
			LLMTokens:       out.LLMTokens,
			EmbeddingTokens: out.EmbeddingTokens,
		})

		img.AggregateScore = out.AggregateScore
		if err := o.imageRepo.UpdateScore(ctx, img.ID, out.AggregateScore); err != nil {
			logger.Warn(ctx, "failed to persist candidate score", "image_id", img.ID, "error", err.Error())
		}

		if best == nil || out.AggregateScore > best.AggregateScore {
			best = out
			bestImage = img
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, apperrors.ErrAllJudgesFailed
	}

	return &entity.IterationSnapshot{
		IterationNumber: iteration,
		PromptUsed:      prompt,
		JudgeResults:    best.Results,
		AggregateScore:  best.AggregateScore,
		ImageIDs:        imageIDs,
		BestImageID:     bestImage.ID,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// checkTermination 在每轮评审后判定终止条件，优先级：
// 达标 > 轮次耗尽 > 收益递减
func (o *Orchestrator) checkTermination(ctx context.Context, req *entity.GenerationRequest, snap *entity.IterationSnapshot) (bool, error) {
	if snap.AggregateScore >= float64(req.Threshold) {
		return true, o.complete(ctx, req, entity.ReasonSuccess, snap.BestImageID)
	}

	if req.CurrentIteration >= req.MaxIterations {
		return true, o.complete(ctx, req, entity.ReasonMaxRetriesReached, o.overallBestImageID(req))
	}

	if scores := req.LastAggregateScores(2); len(scores) == 2 {
		if gain := scores[1] - scores[0]; gain < o.minScoreGain {
			logger.Info(ctx, "score gain below threshold, stopping early",
				"request_id", req.ID,
				"gain", gain,
				"min_score_gain", o.minScoreGain,
			)
			return true, o.complete(ctx, req, entity.ReasonDiminishingReturns, o.overallBestImageID(req))
		}
	}
	return false, nil
}

func (o *Orchestrator) overallBestImageID(req *entity.GenerationRequest) string {
	if best := req.BestIteration(); best != nil {
		return best.BestImageID
	}
	return ""
}

func (o *Orchestrator) complete(ctx context.Context, req *entity.GenerationRequest, reason entity.CompletionReason, imageID string) error {
	req.Complete(reason, imageID)
	if err := o.persist(ctx, req); err != nil {
		return err
	}
	o.publish(ctx, &Event{
		RequestID:       req.ID,
		IterationNumber: req.CurrentIteration,
		Type:            EventCompleted,
		Status:          string(req.Status),
		Reason:          string(reason),
		AggregateScore:  lastAggregateScore(req),
	})
	logger.Info(ctx, "refinement finished",
		"request_id", req.ID,
		"reason", string(reason),
		"iterations", req.CurrentIteration,
		"final_image_id", req.FinalImageID,
		"best_image_id", req.BestImageID,
	)
	return nil
}

// fail 将请求置为 failed 终态；原始错误通过事件与返回值双路暴露
func (o *Orchestrator) fail(ctx context.Context, req *entity.GenerationRequest, msg string) error {
	req.Fail(msg)
	if best := req.BestIteration(); best != nil {
		req.BestImageID = best.BestImageID
	}
	if err := o.persist(ctx, req); err != nil {
		logger.Error(ctx, "failed to persist failed state", err, "request_id", req.ID)
	}
	o.publish(ctx, &Event{
		RequestID:       req.ID,
		IterationNumber: req.CurrentIteration,
		Type:            EventFailed,
		Status:          string(req.Status),
		Reason:          string(entity.ReasonError),
		Message:         msg,
	})
	logger.Error(ctx, "refinement failed", fmt.Errorf("%s", msg), "request_id", req.ID)
	return apperrors.Wrap(fmt.Errorf("%s", msg), apperrors.CodeGenerationFailed, "refinement failed")
}

// persist 落盘编排器状态。版本冲突说明外部写入了无关字段：
// 重读记录并仅回放编排器拥有的字段后重试一次；冲突方已终态则放弃。
func (o *Orchestrator) persist(ctx context.Context, req *entity.GenerationRequest) error {
	err := o.requestRepo.Update(ctx, req)
	if !isVersionConflict(err) {
		return err
	}

	fresh, gerr := o.requestRepo.GetByID(ctx, req.ID)
	if gerr != nil {
		return gerr
	}
	if fresh == nil {
		return apperrors.ErrRequestNotFound.WithDetail(req.ID)
	}
	if fresh.IsTerminal() {
		return err
	}
	applyOwnedFields(fresh, req)
	*req = *fresh
	logger.Warn(ctx, "version conflict, reapplied orchestrator fields", "request_id", req.ID, "version", req.Version)
	return o.requestRepo.Update(ctx, req)
}

func isVersionConflict(err error) bool {
	appErr := apperrors.AsAppError(err)
	return appErr != nil && appErr.Code == apperrors.CodeVersionConflict
}

// applyOwnedFields 把编排器独占的字段从 src 回放到 dst，
// 其余字段（取消标记、用户可编辑字段）保留 dst 的外部写入
func applyOwnedFields(dst, src *entity.GenerationRequest) {
	dst.Status = src.Status
	dst.CurrentIteration = src.CurrentIteration
	dst.Iterations = src.Iterations
	dst.Costs = src.Costs
	dst.FinalImageID = src.FinalImageID
	dst.BestImageID = src.BestImageID
	dst.CompletionReason = src.CompletionReason
	dst.ErrorMessage = src.ErrorMessage
	dst.CompletedAt = src.CompletedAt
}

func (o *Orchestrator) publishStatus(ctx context.Context, req *entity.GenerationRequest) {
	o.publish(ctx, &Event{
		RequestID:       req.ID,
		IterationNumber: req.CurrentIteration + 1,
		Type:            EventStatusChange,
		Status:          string(req.Status),
	})
}

func (o *Orchestrator) publish(ctx context.Context, evt *Event) {
	if o.events == nil || evt == nil {
		return
	}
	evt.OccurredAt = time.Now().UTC()
	if err := o.events.PublishEvent(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to publish refine event",
			"request_id", evt.RequestID,
			"event_type", string(evt.Type),
			"error", err.Error(),
		)
	}
}

func (o *Orchestrator) recordCost(delta entity.CostTotals) {
	if o.pricing == nil {
		return
	}
	for kind, usd := range o.pricing.EstimateBreakdown(delta) {
		if usd > 0 {
			metrics.EstimatedCostUSD.WithLabelValues(kind).Add(usd)
		}
	}
}

func lastSnapshot(req *entity.GenerationRequest) *entity.IterationSnapshot {
	if len(req.Iterations) == 0 {
		return nil
	}
	return &req.Iterations[len(req.Iterations)-1]
}

func lastAggregateScore(req *entity.GenerationRequest) float64 {
	if snap := lastSnapshot(req); snap != nil {
		return snap.AggregateScore
	}
	return 0
}
