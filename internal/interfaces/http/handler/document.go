// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-image-ai-api/internal/application/document"
	"z-image-ai-api/internal/interfaces/http/dto"
)

// DocumentHandler Agent 参考文档处理器
type DocumentHandler struct {
	svc *document.Service
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(svc *document.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// UploadDocument 上传参考文档
// @Summary 上传 Agent 参考文档
// @Description 分块、向量化并写入索引；同名文档整体替换
// @Tags Documents
// @Accept json
// @Produce json
// @Param aid path string true "Agent ID"
// @Param document body dto.UploadDocumentRequest true "文档内容"
// @Success 201 {object} dto.Response[dto.UploadDocumentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/agents/{aid}/documents [post]
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := dto.BindAgentID(c)

	var req dto.UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	// 向量化失败时文本仍已落库，此时 result 非空，照常返回 201，客户端可重传触发重建
	result, err := h.svc.Upload(ctx, req.ToUploadInput(agentID))
	if result == nil {
		respondError(ctx, c, err, "failed to upload document")
		return
	}

	resp := &dto.UploadDocumentResponse{
		Document: dto.ToDocumentResponse(result.Document),
		Replaced: result.Replaced,
	}
	if result.Stats != nil {
		resp.ChunksIndexed = result.Stats.ChunksIndexed
		resp.EmbeddingTokens = result.Stats.EmbeddingTokens
	}
	dto.Created(c, resp)
}

// GetDocument 获取文档详情
// @Summary 获取文档详情
// @Tags Documents
// @Produce json
// @Param did path string true "文档 ID"
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/documents/{did} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	docID := dto.BindDocumentID(c)

	doc, err := h.svc.Get(ctx, docID)
	if err != nil {
		respondError(ctx, c, err, "failed to get document")
		return
	}

	dto.Success(c, dto.ToDocumentResponse(doc))
}

// ListDocuments 列出 Agent 的全部文档
// @Summary 获取 Agent 文档列表
// @Tags Documents
// @Produce json
// @Param aid path string true "Agent ID"
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /v1/agents/{aid}/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := dto.BindAgentID(c)

	docs, err := h.svc.ListByAgent(ctx, agentID)
	if err != nil {
		respondError(ctx, c, err, "failed to list documents")
		return
	}

	out := make([]*dto.DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, dto.ToDocumentResponse(doc))
	}
	dto.Success(c, &dto.DocumentListResponse{Documents: out})
}

// DeleteDocument 删除文档及其向量
// @Summary 删除文档
// @Tags Documents
// @Produce json
// @Param did path string true "文档 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/documents/{did} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()
	docID := dto.BindDocumentID(c)

	if err := h.svc.Delete(ctx, docID); err != nil {
		respondError(ctx, c, err, "failed to delete document")
		return
	}

	dto.NoContent(c)
}
