// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-image-ai-api/internal/application/generation"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	"z-image-ai-api/internal/interfaces/http/dto"
)

// GenerationHandler 生成请求处理器
type GenerationHandler struct {
	svc *generation.Service
}

// NewGenerationHandler 创建生成请求处理器
func NewGenerationHandler(svc *generation.Service) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

// CreateRequest 创建生成请求
// @Summary 创建图像生成请求
// @Description 校验面板并创建请求，异步开始精炼循环
// @Tags Requests
// @Accept json
// @Produce json
// @Param request body dto.CreateGenerationRequest true "生成请求"
// @Success 202 {object} dto.Response[entity.GenerationRequest]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "评审 Agent 不存在"
// @Router /v1/requests [post]
func (h *GenerationHandler) CreateRequest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := h.svc.CreateRequest(ctx, req.ToCreateInput())
	if err != nil {
		respondError(ctx, c, err, "failed to create generation request")
		return
	}

	dto.Accepted(c, created)
}

// GetRequest 获取生成请求详情
// @Summary 获取生成请求详情
// @Description 返回请求、全部迭代快照与成本估算
// @Tags Requests
// @Produce json
// @Param rid path string true "请求 ID"
// @Success 200 {object} dto.Response[dto.GenerationRequestResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/requests/{rid} [get]
func (h *GenerationHandler) GetRequest(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := dto.BindRequestID(c)

	view, err := h.svc.GetRequest(ctx, requestID)
	if err != nil {
		respondError(ctx, c, err, "failed to get generation request")
		return
	}

	dto.Success(c, &dto.GenerationRequestResponse{
		Request:          view.Request,
		EstimatedCostUSD: view.EstimatedCostUSD,
		PricingVersion:   view.PricingVersion,
	})
}

// ListRequests 获取生成请求列表
// @Summary 获取生成请求列表
// @Tags Requests
// @Produce json
// @Param project_id query string false "项目 ID"
// @Param status query string false "请求状态"
// @Success 200 {object} dto.Response[dto.GenerationRequestListResponse]
// @Router /v1/requests [get]
func (h *GenerationHandler) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)

	var filter *repository.RequestFilter
	projectID := c.Query("project_id")
	status := c.Query("status")
	if projectID != "" || status != "" {
		filter = &repository.RequestFilter{
			ProjectID: projectID,
			Status:    entity.RequestStatus(status),
		}
	}

	result, err := h.svc.ListRequests(ctx, filter, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(ctx, c, err, "failed to list generation requests")
		return
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, &dto.GenerationRequestListResponse{Requests: result.Items}, meta)
}

// CancelRequest 请求取消精炼
// @Summary 取消生成请求
// @Description 协作式取消：标记在下一个迭代边界被编排器观察到
// @Tags Requests
// @Produce json
// @Param rid path string true "请求 ID"
// @Success 200 {object} dto.Response[dto.CancelRequestResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "请求已终态"
// @Router /v1/requests/{rid} [delete]
func (h *GenerationHandler) CancelRequest(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := dto.BindRequestID(c)

	if err := h.svc.CancelRequest(ctx, requestID); err != nil {
		respondError(ctx, c, err, "failed to cancel generation request")
		return
	}

	dto.Success(c, &dto.CancelRequestResponse{
		ID:              requestID,
		CancelRequested: true,
	})
}

// ListImages 获取请求的全部候选图像
// @Summary 获取候选图像列表
// @Tags Requests
// @Produce json
// @Param rid path string true "请求 ID"
// @Success 200 {object} dto.Response[dto.ImageListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/requests/{rid}/images [get]
func (h *GenerationHandler) ListImages(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := dto.BindRequestID(c)

	images, err := h.svc.ListImages(ctx, requestID)
	if err != nil {
		respondError(ctx, c, err, "failed to list images")
		return
	}

	dto.Success(c, &dto.ImageListResponse{Images: images})
}
