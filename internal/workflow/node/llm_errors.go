package node

import (
	"context"
	"errors"
	"strings"
)

// IsRetryableLLMError 判断模型调用错误是否值得重试。
// 限流与服务端瞬时错误可重试，鉴权/参数类错误不可。
func IsRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return true
	case strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return true
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"):
		return true
	default:
		return false
	}
}

// IsResponseFormatUnsupportedError 判断 provider 是否不支持结构化输出
// （json_schema response_format）；命中时调用方降级为纯提示词约束。
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "response_format") && !strings.Contains(msg, "response format") {
		return false
	}
	return strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "unknown")
}

func IsContentPolicyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content_policy") ||
		strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "safety system")
}
