// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (3xxx)
	CodeRequestNotFound  ErrorCode = "3001"
	CodeAgentNotFound    ErrorCode = "3002"
	CodeDocumentNotFound ErrorCode = "3003"
	CodeImageNotFound    ErrorCode = "3004"

	// 业务错误 (4xxx)
	CodeValidationFailed  ErrorCode = "4001"
	CodeGenerationFailed  ErrorCode = "4002"
	CodeJudgeFailed       ErrorCode = "4003"
	CodeAllJudgesFailed   ErrorCode = "4004"
	CodeOptimizeFailed    ErrorCode = "4005"
	CodeRetrievalFailed   ErrorCode = "4006"
	CodeEmbeddingFailed   ErrorCode = "4007"
	CodeRequestTerminal   ErrorCode = "4008"
	CodeAgentInUse        ErrorCode = "4009"

	// 外部服务错误 (5xxx)
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeVectorDBError    ErrorCode = "5003"
	CodeLLMProviderError ErrorCode = "5004"
	CodeImageGenError    ErrorCode = "5005"
	CodeVersionConflict  ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeNotFound, CodeRequestNotFound, CodeAgentNotFound, CodeDocumentNotFound, CodeImageNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeRequestTerminal, CodeAgentInUse, CodeVersionConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrRequestNotFound  = New(CodeRequestNotFound, "generation request not found")
	ErrAgentNotFound    = New(CodeAgentNotFound, "agent not found")
	ErrDocumentNotFound = New(CodeDocumentNotFound, "agent document not found")
	ErrImageNotFound    = New(CodeImageNotFound, "generated image not found")

	ErrValidationFailed = New(CodeValidationFailed, "request validation failed")
	ErrGenerationFailed = New(CodeGenerationFailed, "image generation failed")
	ErrAllJudgesFailed  = New(CodeAllJudgesFailed, "all judges failed")
	ErrOptimizeFailed   = New(CodeOptimizeFailed, "prompt optimization failed")
	ErrRetrievalFailed  = New(CodeRetrievalFailed, "retrieval failed")
	ErrEmbeddingFailed  = New(CodeEmbeddingFailed, "embedding failed")
	ErrRequestTerminal  = New(CodeRequestTerminal, "generation request already terminal")
	ErrAgentInUse       = New(CodeAgentInUse, "agent referenced by active generation request")
	ErrVersionConflict  = New(CodeVersionConflict, "record modified concurrently")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
