package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/k-surya-teja/skillbias/internal/config"
	"github.com/k-surya-teja/skillbias/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis 连接测试用Redis，环境变量REDIS_ADDR未设置时跳过测试
func newTestRedis(t *testing.T) *storage.Redis {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("未设置REDIS_ADDR环境变量，跳过Redis集成测试")
	}

	r, err := storage.NewRedisAdapter(&config.RedisConfig{
		Address:             addr,
		DB:                  15, // 使用独立DB避免污染业务数据
		MD5RecordExpireDays: 1,
	})
	require.NoError(t, err, "应该成功连接到测试Redis")
	t.Cleanup(func() { r.Close() })
	return r
}

// TestCheckAndSetFileMD5 测试文件MD5去重的登记与命中
func TestCheckAndSetFileMD5(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	md5Hex := fmt.Sprintf("%032x", time.Now().UnixNano())
	t.Cleanup(func() { _ = r.RemoveFileMD5(ctx, md5Hex) })

	// 首次登记：不存在
	exists, existingUUID, err := r.CheckAndSetFileMD5(ctx, md5Hex, "uuid-first")
	require.NoError(t, err)
	assert.False(t, exists, "首次登记不应命中去重")
	assert.Empty(t, existingUUID)

	// 再次提交同一MD5：命中并返回已有UUID
	exists, existingUUID, err = r.CheckAndSetFileMD5(ctx, md5Hex, "uuid-second")
	require.NoError(t, err)
	assert.True(t, exists, "重复MD5应命中去重")
	assert.Equal(t, "uuid-first", existingUUID, "应返回首次登记的提交UUID")

	// 移除后可以重新登记
	require.NoError(t, r.RemoveFileMD5(ctx, md5Hex))
	exists, _, err = r.CheckAndSetFileMD5(ctx, md5Hex, "uuid-third")
	require.NoError(t, err)
	assert.False(t, exists, "移除后重新提交不应命中去重")
}

// TestSubmissionLock 测试提交处理锁的互斥与释放
func TestSubmissionLock(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	submissionUUID := fmt.Sprintf("lock-test-%d", time.Now().UnixNano())

	lockValue, err := r.AcquireSubmissionLock(ctx, submissionUUID, 30*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, lockValue, "首次抢锁应成功")

	// 锁被持有期间其他抢占者应失败
	second, err := r.AcquireSubmissionLock(ctx, submissionUUID, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, second, "锁被持有时不应再次获取成功")

	// 错误的持有者标识不能释放锁
	released, err := r.ReleaseSubmissionLock(ctx, submissionUUID, "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released, "非持有者不应释放成功")

	// 正确的持有者释放后可以重新抢占
	released, err = r.ReleaseSubmissionLock(ctx, submissionUUID, lockValue)
	require.NoError(t, err)
	assert.True(t, released, "持有者应释放成功")

	third, err := r.AcquireSubmissionLock(ctx, submissionUUID, 30*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, third, "释放后重新抢锁应成功")
	_, _ = r.ReleaseSubmissionLock(ctx, submissionUUID, third)
}

// TestResultCacheRoundTrip 测试分析结果缓存的写入与读取
func TestResultCacheRoundTrip(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	submissionUUID := fmt.Sprintf("cache-test-%d", time.Now().UnixNano())
	payload := `{"overallScore": 76}`

	require.NoError(t, r.CacheAnalysisResult(ctx, submissionUUID, payload, time.Minute))

	got, err := r.GetCachedAnalysisResult(ctx, submissionUUID)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = r.GetCachedAnalysisResult(ctx, "no-such-submission")
	assert.ErrorIs(t, err, storage.ErrNotFound, "未命中应返回ErrNotFound")
}
