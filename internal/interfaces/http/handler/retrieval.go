// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-image-ai-api/internal/application/retrieval"
	"z-image-ai-api/internal/interfaces/http/dto"
)

// RetrievalHandler 检索调试处理器
type RetrievalHandler struct {
	index *retrieval.Index
}

// NewRetrievalHandler 创建检索处理器
func NewRetrievalHandler(index *retrieval.Index) *RetrievalHandler {
	return &RetrievalHandler{index: index}
}

// Query 检索调试接口
// @Summary 调试 Agent 知识库检索
// @Description 对指定 Agent 的文档索引执行一次检索并返回命中分块
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param query body dto.RetrievalQueryRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.RetrievalQueryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse "向量索引未启用"
// @Router /v1/retrieval/query [post]
func (h *RetrievalHandler) Query(c *gin.Context) {
	ctx := c.Request.Context()

	if h.index == nil || !h.index.Enabled() {
		dto.ServiceUnavailable(c, "vector index not enabled")
		return
	}

	var req dto.RetrievalQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.index.Query(ctx, retrieval.QueryInput{
		AgentID:             req.AgentID,
		QueryText:           req.Query,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		respondError(ctx, c, err, "retrieval query failed")
		return
	}

	dto.Success(c, dto.ToRetrievalQueryResponse(out))
}
