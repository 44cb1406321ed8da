package ratelimit

import (
	"context"
	"time"

	"github.com/k-surya-teja/skillbias/internal/model"
	"github.com/k-surya-teja/skillbias/internal/prompt"
)

// RateLimitedProvider 对模型提供方的调用进行限流的代理
// 封装令牌桶与退避重试，避免上游配额被瞬时流量打穿
type RateLimitedProvider struct {
	original    model.Provider
	rateLimiter *TokenBucket
}

// NewRateLimitedProvider 创建一个新的限流模型代理
func NewRateLimitedProvider(original model.Provider, qpm int) *RateLimitedProvider {
	return &RateLimitedProvider{
		original:    original,
		rateLimiter: NewTokenBucket(qpm, qpm/2), // 容量设为QPM的一半，允许一定的突发流量
	}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedProvider) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedProvider {
	rl.rateLimiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// Name 透传底层提供方名称
func (rl *RateLimitedProvider) Name() string {
	return rl.original.Name()
}

// Complete 代理Complete方法，增加限流和重试逻辑
func (rl *RateLimitedProvider) Complete(ctx context.Context, p prompt.Prompt, opts model.CompletionOptions) (string, error) {
	var response string

	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var callErr error
		response, callErr = rl.original.Complete(ctx, p, opts)
		return callErr
	})

	return response, err
}

// NewProviderWithRateLimit 直接从配置和原始提供方创建带限流的模型代理
// 配置映射按模型名给出QPM上限，命中时取其90%作为安全值
func NewProviderWithRateLimit(original model.Provider, modelName string, cfg map[string]int, customQPM int, maxRetries int, retryWaitTime time.Duration) model.Provider {
	qpm := customQPM

	if cfg != nil && modelName != "" {
		if modelQPM, ok := cfg[modelName]; ok && modelQPM > 0 {
			safeQPM := int(float64(modelQPM) * 0.9)
			qpm = safeQPM
		}
	}

	if qpm <= 0 {
		qpm = 30
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}

	limited := NewRateLimitedProvider(original, qpm)
	limited.WithRetryPolicy(retryWaitTime, maxRetries)

	return limited
}
