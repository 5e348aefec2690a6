// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	"z-image-ai-api/internal/interfaces/http/dto"
)

// OptimizerHandler 提示词优化器配置处理器
type OptimizerHandler struct {
	configRepo repository.OptimizerConfigRepository
}

// NewOptimizerHandler 创建优化器配置处理器
func NewOptimizerHandler(configRepo repository.OptimizerConfigRepository) *OptimizerHandler {
	return &OptimizerHandler{configRepo: configRepo}
}

// GetConfig 获取优化器配置
// @Summary 获取提示词优化器配置
// @Description 未配置时返回内置默认值
// @Tags Optimizer
// @Produce json
// @Success 200 {object} dto.Response[entity.PromptOptimizerConfig]
// @Router /v1/optimizer/config [get]
func (h *OptimizerHandler) GetConfig(c *gin.Context) {
	ctx := c.Request.Context()

	cfg, err := h.configRepo.Get(ctx)
	if err != nil {
		respondError(ctx, c, err, "failed to get optimizer config")
		return
	}
	if cfg == nil {
		cfg = entity.DefaultPromptOptimizerConfig()
	}

	dto.Success(c, cfg)
}

// PutConfig 更新优化器配置
// @Summary 更新提示词优化器配置
// @Tags Optimizer
// @Accept json
// @Produce json
// @Param config body dto.PutOptimizerConfigRequest true "优化器配置"
// @Success 200 {object} dto.Response[entity.PromptOptimizerConfig]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/optimizer/config [put]
func (h *OptimizerHandler) PutConfig(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.PutOptimizerConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	cfg := req.ToEntity()
	if err := h.configRepo.Put(ctx, cfg); err != nil {
		respondError(ctx, c, err, "failed to update optimizer config")
		return
	}

	dto.Success(c, cfg)
}
