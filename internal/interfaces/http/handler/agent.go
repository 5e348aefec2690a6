// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	agentapp "z-image-ai-api/internal/application/agent"
	"z-image-ai-api/internal/domain/entity"
	"z-image-ai-api/internal/domain/repository"
	"z-image-ai-api/internal/interfaces/http/dto"
)

// AgentHandler Agent 管理处理器
type AgentHandler struct {
	svc *agentapp.Service
}

// NewAgentHandler 创建 Agent 处理器
func NewAgentHandler(svc *agentapp.Service) *AgentHandler {
	return &AgentHandler{svc: svc}
}

// CreateAgent 创建 Agent
// @Summary 创建评审/优化 Agent
// @Tags Agents
// @Accept json
// @Produce json
// @Param agent body dto.CreateAgentRequest true "Agent 定义"
// @Success 201 {object} dto.Response[entity.Agent]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/agents [post]
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := h.svc.Create(ctx, req.ToEntity())
	if err != nil {
		respondError(ctx, c, err, "failed to create agent")
		return
	}

	dto.Created(c, created)
}

// GetAgent 获取 Agent 详情
// @Summary 获取 Agent 详情
// @Tags Agents
// @Produce json
// @Param aid path string true "Agent ID"
// @Success 200 {object} dto.Response[entity.Agent]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/agents/{aid} [get]
func (h *AgentHandler) GetAgent(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := dto.BindAgentID(c)

	agent, err := h.svc.Get(ctx, agentID)
	if err != nil {
		respondError(ctx, c, err, "failed to get agent")
		return
	}

	dto.Success(c, agent)
}

// UpdateAgent 更新 Agent
// @Summary 更新 Agent
// @Tags Agents
// @Accept json
// @Produce json
// @Param aid path string true "Agent ID"
// @Param agent body dto.UpdateAgentRequest true "待更新字段"
// @Success 200 {object} dto.Response[entity.Agent]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/agents/{aid} [put]
func (h *AgentHandler) UpdateAgent(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := dto.BindAgentID(c)

	var req dto.UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	agent, err := h.svc.Get(ctx, agentID)
	if err != nil {
		respondError(ctx, c, err, "failed to get agent")
		return
	}

	req.ApplyTo(agent)

	updated, err := h.svc.Update(ctx, agent)
	if err != nil {
		respondError(ctx, c, err, "failed to update agent")
		return
	}

	dto.Success(c, updated)
}

// DeleteAgent 删除 Agent
// @Summary 删除 Agent
// @Description 仍被活跃生成请求引用的 Agent 不可删除
// @Tags Agents
// @Produce json
// @Param aid path string true "Agent ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Agent 被活跃请求引用"
// @Router /v1/agents/{aid} [delete]
func (h *AgentHandler) DeleteAgent(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := dto.BindAgentID(c)

	if err := h.svc.Delete(ctx, agentID); err != nil {
		respondError(ctx, c, err, "failed to delete agent")
		return
	}

	dto.NoContent(c)
}

// ListAgents 获取 Agent 列表
// @Summary 获取 Agent 列表
// @Tags Agents
// @Produce json
// @Param status query string false "Agent 状态"
// @Param agent_type query string false "Agent 类型"
// @Param can_judge query bool false "是否可评审"
// @Success 200 {object} dto.Response[dto.AgentListResponse]
// @Router /v1/agents [get]
func (h *AgentHandler) ListAgents(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)

	var filter *repository.AgentFilter
	status := c.Query("status")
	agentType := c.Query("agent_type")
	canJudge := c.Query("can_judge")
	if status != "" || agentType != "" || canJudge != "" {
		filter = &repository.AgentFilter{
			Status:    entity.AgentStatus(status),
			AgentType: entity.AgentType(agentType),
		}
		if canJudge != "" {
			v := canJudge == "true"
			filter.CanJudge = &v
		}
	}

	result, err := h.svc.List(ctx, filter, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(ctx, c, err, "failed to list agents")
		return
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, &dto.AgentListResponse{Agents: result.Items}, meta)
}
