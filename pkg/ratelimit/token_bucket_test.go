package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTokenBucketAllowsBurstThenDenies 初始令牌允许突发，耗尽后拒绝
func TestTokenBucketAllowsBurstThenDenies(t *testing.T) {
	tb := NewTokenBucket(60, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "容量内的第%d次请求应通过", i+1)
	}
	assert.False(t, tb.Allow(), "令牌耗尽后应拒绝")
}

// TestTokenBucketDefaultCapacity 未指定容量时取QPM的一半
func TestTokenBucketDefaultCapacity(t *testing.T) {
	tb := NewTokenBucket(10, 0)
	assert.Equal(t, 5.0, tb.capacity, "容量应为QPM的一半")

	tiny := NewTokenBucket(1, 0)
	assert.Equal(t, 1.0, tiny.capacity, "容量最小应为1")
}

// TestRetryWithBackoffStopsOnFatalError 不可重试错误立即返回
func TestRetryWithBackoffStopsOnFatalError(t *testing.T) {
	tb := NewTokenBucket(600, 10).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	fatal := errors.New("认证失败")
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "不可重试错误不应触发重试")
}

// TestRetryWithBackoffRetriesTransientError 可重试错误按次数退避重试
func TestRetryWithBackoffRetriesTransientError(t *testing.T) {
	tb := NewTokenBucket(600, 10).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("rate limit reached")
		}
		return nil
	})

	require.NoError(t, err, "第三次调用成功后应返回nil")
	assert.Equal(t, 3, calls, "应在成功前重试两次")
}

// TestWaitHonorsContextCancel 等待令牌期间响应上下文取消
func TestWaitHonorsContextCancel(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow(), "先耗尽唯一令牌")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "等待应被上下文超时中断")
}

// TestIsRetryableError 可重试错误的报文判定
func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("dial tcp: i/o timeout")))
	assert.True(t, isRetryableError(errors.New("服务器繁忙，请稍后再试")))
	assert.False(t, isRetryableError(errors.New("invalid request")))
	assert.False(t, isRetryableError(nil))
}
