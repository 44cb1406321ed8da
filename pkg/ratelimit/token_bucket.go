package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TokenBucket 基于令牌桶的限流器，按 QPM 匀速补充令牌。
// 同时内置一套针对瞬时错误的指数退避重试策略。
type TokenBucket struct {
	mu         sync.Mutex
	refillRate float64   // 每秒补充的令牌数
	capacity   float64   // 桶容量，决定允许的突发量
	available  float64   // 当前可用令牌
	lastRefill time.Time // 上一次补充的时刻

	retryWaitTime time.Duration // 首次重试的基础等待
	maxRetries    int           // 允许的最大重试次数
}

// NewTokenBucket 按每分钟请求上限创建限流器。
// capacity 不大于 0 时取 QPM 的一半（至少 1），限制冷启动时的突发。
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = qpm / 2
		if capacity <= 0 {
			capacity = 1
		}
	}

	return &TokenBucket{
		refillRate:    float64(qpm) / 60.0,
		capacity:      float64(capacity),
		available:     float64(capacity),
		lastRefill:    time.Now(),
		retryWaitTime: time.Second,
		maxRetries:    3,
	}
}

// WithRetryPolicy 覆盖默认的重试等待与次数，返回自身便于链式调用。
func (tb *TokenBucket) WithRetryPolicy(waitTime time.Duration, maxRetries int) *TokenBucket {
	tb.retryWaitTime = waitTime
	tb.maxRetries = maxRetries
	return tb
}

// refill 把自上次补充以来应得的令牌加回桶里。调用方必须持有锁。
func (tb *TokenBucket) refill() {
	now := time.Now()
	earned := now.Sub(tb.lastRefill).Seconds() * tb.refillRate
	tb.lastRefill = now

	tb.available += earned
	if tb.available > tb.capacity {
		tb.available = tb.capacity
	}
}

// Allow 非阻塞地尝试取走一个令牌。
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.available < 1.0 {
		return false
	}
	tb.available--
	return true
}

// Wait 阻塞直到取到一个令牌或上下文被取消。
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.available >= 1.0 {
			tb.available--
			tb.mu.Unlock()
			return nil
		}
		// 按缺口估算下一个令牌到达的时间，避免忙等
		sleep := time.Duration((1.0 - tb.available) / tb.refillRate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// RetryWithBackoff 在限流约束下执行 fn：每次执行前先取令牌，
// 失败且可重试时按 2 的幂退避，直到成功、不可重试或超出次数。
func (tb *TokenBucket) RetryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= tb.maxRetries; attempt++ {
		if err := tb.Wait(ctx); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) || attempt >= tb.maxRetries {
			return lastErr
		}

		backoff := tb.retryWaitTime * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// isRetryableError 按错误文本判断是否值得重试，
// 覆盖网络瞬断与上游限流两类常见信号。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, signal := range retryableSignals {
		if strings.Contains(msg, signal) {
			return true
		}
	}
	return false
}

var retryableSignals = []string{
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"EOF",
	"no such host",
	"429 Too Many Requests",
	"rate limit",
	"服务器繁忙",
	"请求超过限额",
	"QPS限制",
}
