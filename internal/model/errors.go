package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion 提供方返回了空补全
var ErrEmptyCompletion = errors.New("模型返回了空补全")

// ProviderError 模型提供方返回的错误，携带HTTP风格的状态码
// 429与畸形JSON走有限的重试/修复路径；400/401是终结性错误，
// 需要让调用方区分处理（阻断 vs 建议重试）。
type ProviderError struct {
	Status  int    // HTTP风格状态码，未知时为0
	Message string // 提供方返回的错误信息
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("模型提供方错误 (status=%d): %s", e.Status, e.Message)
}

// NewProviderError 创建提供方错误
func NewProviderError(status int, message string) *ProviderError {
	return &ProviderError{Status: status, Message: message}
}

// AsProviderError 尝试把任意错误解包为ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRateLimited 判断是否配额/限流错误
func IsRateLimited(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(pe.Message)
	return pe.Status == 429 ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

// IsBadRequest 判断是否请求被拒绝（参数/内容问题）
func IsBadRequest(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(pe.Message)
	return pe.Status == 400 ||
		strings.Contains(msg, "invalid_request_error") ||
		strings.Contains(msg, "bad request")
}

// IsAuthFailure 判断是否认证失败
func IsAuthFailure(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(pe.Message)
	return pe.Status == 401 ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "api key not valid")
}

// IsJSONModeFailure 判断提供方是否因json_object模式无法生成而报错
// 这类错误应该去掉json模式重试一次，而不是直接失败。
func IsJSONModeFailure(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(pe.Message)
	return strings.Contains(msg, "json_validate_failed") ||
		strings.Contains(msg, "failed to generate json") ||
		strings.Contains(msg, "failed_generation")
}
