package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestProviderErrorClassification 按状态码与报文分类提供方错误
func TestProviderErrorClassification(t *testing.T) {
	assert.True(t, IsRateLimited(NewProviderError(429, "slow down")), "429状态码应判为限流")
	assert.True(t, IsRateLimited(NewProviderError(0, "You exceeded your current quota")), "quota报文应判为限流")
	assert.False(t, IsRateLimited(NewProviderError(500, "internal")), "500不应判为限流")

	assert.True(t, IsAuthFailure(NewProviderError(401, "unauthorized")), "401应判为认证失败")
	assert.True(t, IsAuthFailure(NewProviderError(0, "Invalid API key provided")), "API key报文应判为认证失败")
	assert.False(t, IsAuthFailure(NewProviderError(429, "quota")), "限流不应判为认证失败")

	assert.True(t, IsBadRequest(NewProviderError(400, "bad request")), "400应判为请求被拒")
	assert.True(t, IsBadRequest(NewProviderError(0, "invalid_request_error: content blocked")), "invalid_request_error报文应判为请求被拒")

	assert.True(t, IsJSONModeFailure(NewProviderError(400, "json_validate_failed: output was not valid")), "json模式失败应被识别")
	assert.False(t, IsJSONModeFailure(NewProviderError(400, "bad request")), "普通400不应判为json模式失败")
}

// TestClassificationThroughWrapping 分类应穿透fmt.Errorf包装
func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("调用分析模型失败: %w", NewProviderError(429, "rate limit reached"))
	assert.True(t, IsRateLimited(wrapped), "包装后的限流错误仍应被识别")

	pe, ok := AsProviderError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 429, pe.Status)
}

// TestClassificationRejectsPlainErrors 非ProviderError一律不分类
func TestClassificationRejectsPlainErrors(t *testing.T) {
	plain := errors.New("rate limit quota 429")
	assert.False(t, IsRateLimited(plain), "纯文本错误即使包含关键词也不应分类")
	assert.False(t, IsAuthFailure(plain))
	assert.False(t, IsBadRequest(plain))
}
