package generation

import (
	"context"
	"fmt"
	"strings"

	"z-image-ai-api/internal/application/panel"
	"z-image-ai-api/internal/application/pricing"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	apperrors "z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
)

// CreateRequestInput 创建生成请求的输入
type CreateRequestInput struct {
	ProjectID           string
	Brief               string
	NegativePrompts     string
	ReferenceImageURLs  []string
	JudgeIDs            []string
	Threshold           int
	MaxIterations       int
	ImagesPerGeneration int
	Model               string
	Size                string
	Quality             string
	Style               string
}

// RequestView 请求详情视图：请求本体加派生的成本估算
type RequestView struct {
	Request          *entity.GenerationRequest `json:"request"`
	EstimatedCostUSD float64                   `json:"estimated_cost_usd"`
	PricingVersion   string                    `json:"pricing_version"`
}

// Service 面向接口层的生成请求应用服务
type Service struct {
	requestRepo repository.RequestRepository
	imageRepo   repository.ImageRepository
	panel       *panel.Panel
	jobs        JobEnqueuer
	pricing     *pricing.Table

	maxIterationsCap       int
	maxImagesPerGeneration int
}

func NewService(
	requestRepo repository.RequestRepository,
	imageRepo repository.ImageRepository,
	panelSvc *panel.Panel,
	jobs JobEnqueuer,
	pricingTable *pricing.Table,
	maxIterationsCap int,
	maxImagesPerGeneration int,
) *Service {
	if maxIterationsCap <= 0 {
		maxIterationsCap = 20
	}
	if maxImagesPerGeneration <= 0 {
		maxImagesPerGeneration = 4
	}
	return &Service{
		requestRepo:            requestRepo,
		imageRepo:              imageRepo,
		panel:                  panelSvc,
		jobs:                   jobs,
		pricing:                pricingTable,
		maxIterationsCap:       maxIterationsCap,
		maxImagesPerGeneration: maxImagesPerGeneration,
	}
}

// CreateRequest 校验并持久化请求，随后入队异步精炼任务。
// 评委面板在创建时就展开校验，配置错误尽早暴露给调用方。
func (s *Service) CreateRequest(ctx context.Context, in *CreateRequestInput) (*entity.GenerationRequest, error) {
	if in == nil {
		return nil, apperrors.ErrInvalidParam
	}

	req := entity.NewGenerationRequest(strings.TrimSpace(in.Brief), in.JudgeIDs, in.Threshold, in.MaxIterations)
	req.ProjectID = strings.TrimSpace(in.ProjectID)
	req.NegativePrompts = strings.TrimSpace(in.NegativePrompts)
	req.ReferenceImageURLs = in.ReferenceImageURLs
	req.ImageParams = &entity.ImageParams{
		ImagesPerGeneration: in.ImagesPerGeneration,
		Model:               in.Model,
		Size:                in.Size,
		Quality:             in.Quality,
		Style:               in.Style,
	}
	if req.ImageParams.ImagesPerGeneration < 1 {
		req.ImageParams.ImagesPerGeneration = 1
	}

	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidationFailed, "request validation failed")
	}
	if req.MaxIterations > s.maxIterationsCap {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "max_iterations exceeds cap").
			WithDetail(fmt.Sprintf("cap=%d", s.maxIterationsCap))
	}
	if req.ImageParams.ImagesPerGeneration > s.maxImagesPerGeneration {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "images_per_generation exceeds cap").
			WithDetail(fmt.Sprintf("cap=%d", s.maxImagesPerGeneration))
	}

	// 面板展开失败（评委不存在/均不可评审）在创建期拒绝
	if _, err := s.panel.ResolvePanel(ctx, req.JudgeIDs); err != nil {
		return nil, err
	}

	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	if err := s.jobs.PublishRefineJob(ctx, req.ID); err != nil {
		// 入队失败请求保持 pending，由补偿扫描或人工重新入队
		logger.Error(ctx, "failed to enqueue refine job", err, "request_id", req.ID)
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "enqueue refine job failed")
	}

	logger.Info(ctx, "generation request created",
		"request_id", req.ID,
		"judge_count", len(req.JudgeIDs),
		"threshold", req.Threshold,
		"max_iterations", req.MaxIterations,
	)
	return req, nil
}

// GetRequest 返回请求详情与按当前价格表折算的成本估算
func (s *Service) GetRequest(ctx context.Context, id string) (*RequestView, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.ErrRequestNotFound.WithDetail(id)
	}

	view := &RequestView{Request: req}
	if s.pricing != nil && req.Costs != nil {
		view.EstimatedCostUSD = s.pricing.EstimateTotal(*req.Costs)
		view.PricingVersion = s.pricing.Version
	}
	return view, nil
}

// ListRequests 分页列出请求
func (s *Service) ListRequests(ctx context.Context, filter *repository.RequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	return s.requestRepo.List(ctx, filter, pagination)
}

// ListImages 列出请求的全部候选图
func (s *Service) ListImages(ctx context.Context, requestID string) ([]*entity.GeneratedImage, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.ErrRequestNotFound.WithDetail(requestID)
	}
	return s.imageRepo.ListByRequest(ctx, requestID)
}

// CancelRequest 协作式取消：只翻转取消标记，循环在下一个迭代边界收敛。
// 终态请求返回冲突错误。
func (s *Service) CancelRequest(ctx context.Context, id string) error {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		return apperrors.ErrRequestNotFound.WithDetail(id)
	}
	if req.IsTerminal() {
		return apperrors.ErrRequestTerminal.WithDetail(string(req.Status))
	}
	if req.CancelRequested {
		return nil
	}
	if err := s.requestRepo.SetCancelRequested(ctx, id); err != nil {
		return err
	}
	logger.Info(ctx, "cancel requested", "request_id", id, "iteration", req.CurrentIteration)
	return nil
}
