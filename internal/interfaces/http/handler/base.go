// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"z-image-ai-api/internal/interfaces/http/dto"
	"z-image-ai-api/pkg/errors"
	"z-image-ai-api/pkg/logger"
)

// respondError 按 AppError 的 HTTP 状态码返回错误；非 AppError 统一 500
func respondError(ctx context.Context, c *gin.Context, err error, fallbackMsg string) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
			ErrorCode: string(appErr.Code),
			Details:   appErr.Detail,
		})
		return
	}
	logger.Error(ctx, fallbackMsg, err)
	dto.InternalError(c, fallbackMsg)
}
