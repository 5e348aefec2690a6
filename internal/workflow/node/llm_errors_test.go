package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableLLMError(t *testing.T) {
	assert.False(t, IsRetryableLLMError(nil))
	assert.False(t, IsRetryableLLMError(context.Canceled))
	assert.True(t, IsRetryableLLMError(errors.New("429 rate limit exceeded")))
	assert.True(t, IsRetryableLLMError(errors.New("upstream 503 service unavailable")))
	assert.False(t, IsRetryableLLMError(errors.New("401 invalid api key")))
}

func TestIsResponseFormatUnsupportedError(t *testing.T) {
	assert.False(t, IsResponseFormatUnsupportedError(nil))
	assert.True(t, IsResponseFormatUnsupportedError(
		errors.New("400: response_format 'json_schema' is not supported by this model")))
	assert.True(t, IsResponseFormatUnsupportedError(
		errors.New("invalid parameter: response_format")))
	// 与 response_format 无关的 400 不触发降级
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("400 invalid request: messages empty")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("rate limit")))
}

func TestIsContentPolicyError(t *testing.T) {
	assert.True(t, IsContentPolicyError(errors.New("rejected by safety system")))
	assert.False(t, IsContentPolicyError(errors.New("timeout")))
	assert.False(t, IsContentPolicyError(nil))
}
