package router

import (
	"errors"
	"testing"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"

	"github.com/k-surya-teja/skillbias/internal/analyzer"
	"github.com/k-surya-teja/skillbias/internal/model"
)

// TestMapAnalysisError 流水线错误到HTTP状态码与对外文案的映射
func TestMapAnalysisError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "文件超限",
			err:        analyzer.NewFileTooLargeError("u1", "文件太大"),
			wantStatus: consts.StatusRequestEntityTooLarge,
			wantMsg:    "Resume file exceeds the upload size limit.",
		},
		{
			name:       "相关性拒绝",
			err:        analyzer.NewRelevanceError("u2", "得分不足"),
			wantStatus: consts.StatusBadRequest,
			wantMsg:    "Please upload a resume.",
		},
		{
			name:       "校验错误透出Detail",
			err:        analyzer.NewValidationError("u3", "Upload a resume file or provide a prompt."),
			wantStatus: consts.StatusBadRequest,
			wantMsg:    "Upload a resume file or provide a prompt.",
		},
		{
			name:       "不支持的文件类型",
			err:        analyzer.NewUnsupportedFileError("u4", "不支持的扩展名: .txt"),
			wantStatus: consts.StatusBadRequest,
			wantMsg:    "Upload a PDF or Word resume file.",
		},
		{
			name:       "模型空响应",
			err:        analyzer.NewEmptyOutputError("u5"),
			wantStatus: consts.StatusBadGateway,
			wantMsg:    "Model returned an empty response.",
		},
		{
			name:       "模型限流",
			err:        analyzer.NewModelError("u6", model.NewProviderError(429, "quota exceeded")),
			wantStatus: consts.StatusTooManyRequests,
			wantMsg:    "Model quota or rate limit was reached. Check billing/usage, then retry.",
		},
		{
			name:       "模型认证失败",
			err:        analyzer.NewModelError("u7", model.NewProviderError(401, "invalid api key")),
			wantStatus: consts.StatusUnauthorized,
			wantMsg:    "Model authentication failed. Verify the provider API key and restart the server.",
		},
		{
			name:       "模型拒绝请求",
			err:        analyzer.NewModelError("u8", model.NewProviderError(400, "bad request")),
			wantStatus: consts.StatusBadRequest,
			wantMsg:    "Model provider rejected the request.",
		},
		{
			name:       "超时",
			err:        analyzer.NewModelError("u9", errors.New("context deadline exceeded")),
			wantStatus: consts.StatusInternalServerError,
			wantMsg:    "Resume analysis timed out. Please try again.",
		},
		{
			name:       "未知错误",
			err:        errors.New("数据库连接中断"),
			wantStatus: consts.StatusInternalServerError,
			wantMsg:    "Unable to process resume analysis request.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := mapAnalysisError(tc.err)
			assert.Equal(t, tc.wantStatus, status, "状态码与预期不符")
			assert.Equal(t, tc.wantMsg, msg, "对外文案与预期不符")
		})
	}
}
