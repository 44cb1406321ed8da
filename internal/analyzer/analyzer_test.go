package analyzer

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-surya-teja/skillbias/internal/extract"
	"github.com/k-surya-teja/skillbias/internal/model"
	"github.com/k-surya-teja/skillbias/internal/prompt"
	"github.com/k-surya-teja/skillbias/internal/relevance"
	"github.com/k-surya-teja/skillbias/internal/types"
)

const goodPrompt = "Please review my resume targeting backend engineering roles, focusing on experience and skills."

const resumeLikeText = `John Doe
john.doe@example.com
Professional Summary
Backend engineer with five years of experience.
Work Experience
Acme Corp, 2019 - Present
Education
State University
Skills
Go, MySQL, Redis`

// scriptedProvider 按脚本函数响应的测试提供方
type scriptedProvider struct {
	fn    func(p prompt.Prompt, opts model.CompletionOptions) (string, error)
	calls int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, p prompt.Prompt, opts model.CompletionOptions) (string, error) {
	s.calls++
	return s.fn(p, opts)
}

// textStrategy 返回固定文本的提取策略
type textStrategy struct {
	text string
}

func (s *textStrategy) Method() types.ExtractionMethod { return types.MethodPrimaryTool }

func (s *textStrategy) Extract(ctx context.Context, pdfBytes []byte) (string, error) {
	return s.text, nil
}

func newTestAnalyzer(t *testing.T, provider model.Provider, extraSetOpts ...SettingOpt) *Analyzer {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	setOpts := append([]SettingOpt{
		WithsetLogger(zerolog.Nop()),
		WithsetEnableVisual(false),
	}, extraSetOpts...)

	a, err := NewAnalyzer(
		[]ComponentOpt{
			WithcompCascade(extract.NewCascade(
				[]extract.Strategy{&textStrategy{text: resumeLikeText}},
				extract.WithCascadeLogger(quiet),
			)),
			WithcompClassifier(relevance.NewClassifier()),
			WithcompPromptBuilder(prompt.NewBuilder()),
			WithcompProvider(provider),
		},
		setOpts,
	)
	require.NoError(t, err, "测试分析器初始化失败")
	return a
}

// TestNewAnalyzerRequiresComponents 缺核心组件时拒绝初始化
func TestNewAnalyzerRequiresComponents(t *testing.T) {
	_, err := NewAnalyzer(nil, nil)
	assert.Error(t, err, "无组件应初始化失败")
}

// TestAnalyzeValidation 输入校验的各种拒绝路径
func TestAnalyzeValidation(t *testing.T) {
	a := newTestAnalyzer(t, &model.MockProvider{}, WithsetMaxUploadBytes(64))
	ctx := context.Background()

	_, err := a.Analyze(ctx, &AnalysisRequest{SubmissionUUID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidInput, "无文件无提示词应拒绝")

	_, err = a.Analyze(ctx, &AnalysisRequest{SubmissionUUID: "u2", UserPrompt: "too short"})
	assert.ErrorIs(t, err, ErrInvalidInput, "过短提示词应拒绝")

	_, err = a.Analyze(ctx, &AnalysisRequest{
		SubmissionUUID: "u3",
		FileName:       "resume.pdf",
		FileBytes:      []byte(strings.Repeat("x", 100)),
	})
	assert.ErrorIs(t, err, ErrFileTooLarge, "超限文件应拒绝")

	_, err = a.Analyze(ctx, &AnalysisRequest{
		SubmissionUUID: "u4",
		FileName:       "resume.txt",
		FileBytes:      []byte("plain text"),
	})
	assert.ErrorIs(t, err, ErrUnsupportedFileType, "白名单外的扩展名应拒绝")
}

// TestAnalyzePromptOnly 纯提示词提交的完整链路
func TestAnalyzePromptOnly(t *testing.T) {
	a := newTestAnalyzer(t, &model.MockProvider{})

	bundle, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u5",
		UserPrompt:     goodPrompt,
	})
	require.NoError(t, err)
	require.NotNil(t, bundle.Analysis)

	assert.Equal(t, types.SourcePrompt, bundle.Source)
	assert.Equal(t, types.MethodNone, bundle.ExtractionMethod, "无文件时提取方法应为none")
	assert.GreaterOrEqual(t, bundle.Analysis.OverallScore, 0)
	assert.LessOrEqual(t, bundle.Analysis.OverallScore, 100)
	assert.NotEmpty(t, bundle.Analysis.OverallSummary)
	assert.NotEmpty(t, bundle.Analysis.ActionItems)
	assert.Nil(t, bundle.VisualReview, "关闭结构评审时不应有评审结果")
}

// TestAnalyzeFileAndPrompt 文件+提示词提交采用提取文本
func TestAnalyzeFileAndPrompt(t *testing.T) {
	a := newTestAnalyzer(t, &model.MockProvider{})

	bundle, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u6",
		FileName:       "john_resume.pdf",
		MIMEType:       "application/pdf",
		FileBytes:      []byte("%PDF-1.4 fake"),
		UserPrompt:     goodPrompt,
	})
	require.NoError(t, err)

	assert.Equal(t, types.SourceFileAndPrompt, bundle.Source)
	assert.Equal(t, types.MethodPrimaryTool, bundle.ExtractionMethod)
	assert.Contains(t, bundle.ExtractedText, "Backend engineer", "提取文本应进入结果")
	assert.Contains(t, bundle.ExtractedText, "User prompt context:", "提示词应拼接到上下文")
	assert.Empty(t, bundle.Notes, "首选策略命中充分阈值时不应有降级备注")
}

// TestAnalyzeRejectsNonResumePrompt 明显非简历的提示词被门控拒绝
func TestAnalyzeRejectsNonResumePrompt(t *testing.T) {
	a := newTestAnalyzer(t, &model.MockProvider{})

	_, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u7",
		UserPrompt:     "Please file this invoice and the purchase order into our bank statement records.",
	})
	assert.ErrorIs(t, err, ErrNotResume, "多个负向信号应触发门控拒绝")
}

// TestAnalyzeModelErrorKeepsClassification 模型错误包装后仍可分类
func TestAnalyzeModelErrorKeepsClassification(t *testing.T) {
	provider := &scriptedProvider{fn: func(p prompt.Prompt, opts model.CompletionOptions) (string, error) {
		return "", model.NewProviderError(429, "You exceeded your current quota")
	}}
	a := newTestAnalyzer(t, provider)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u8",
		UserPrompt:     goodPrompt,
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrModelCallFailed, "应归入模型调用失败")
	assert.True(t, model.IsRateLimited(err), "包装后仍应识别为限流错误")

	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Equal(t, "u8", analysisErr.SubmissionUUID)
}

// TestAnalyzeEmptyModelOutput 空补全转为专用错误
func TestAnalyzeEmptyModelOutput(t *testing.T) {
	provider := &scriptedProvider{fn: func(p prompt.Prompt, opts model.CompletionOptions) (string, error) {
		return "   ", nil
	}}
	a := newTestAnalyzer(t, provider)

	_, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u9",
		UserPrompt:     goodPrompt,
	})
	assert.ErrorIs(t, err, ErrEmptyModelOutput)
}

// TestAnalyzeFallsBackOnGarbageOutput 修复重试仍失败时走离线兜底
func TestAnalyzeFallsBackOnGarbageOutput(t *testing.T) {
	provider := &scriptedProvider{fn: func(p prompt.Prompt, opts model.CompletionOptions) (string, error) {
		return "definitely not json output", nil
	}}
	a := newTestAnalyzer(t, provider)

	bundle, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u10",
		UserPrompt:     goodPrompt,
	})
	require.NoError(t, err, "不可解析输出不应硬失败")

	assert.Equal(t, 2, provider.calls, "应先分析后修复各调用一次")
	require.NotNil(t, bundle.Analysis)
	assert.Contains(t, strings.Join(bundle.Notes, " "), "Fallback analysis was generated",
		"应记录兜底路径的诊断备注")
	assert.GreaterOrEqual(t, bundle.Analysis.OverallScore, 35)
	assert.LessOrEqual(t, bundle.Analysis.OverallScore, 82)
}

// TestAnalyzeRetriesWithoutJSONMode json模式被拒后用纯文本模式重试
func TestAnalyzeRetriesWithoutJSONMode(t *testing.T) {
	provider := &scriptedProvider{fn: func(p prompt.Prompt, opts model.CompletionOptions) (string, error) {
		if opts.JSONMode {
			return "", model.NewProviderError(400, "json_validate_failed: could not generate")
		}
		return `{"overallScore": 71, "overallSummary": "Solid resume."}`, nil
	}}
	a := newTestAnalyzer(t, provider)

	bundle, err := a.Analyze(context.Background(), &AnalysisRequest{
		SubmissionUUID: "u11",
		UserPrompt:     goodPrompt,
	})
	require.NoError(t, err, "json模式失败应自动降级重试")

	assert.Equal(t, 2, provider.calls, "应调用两次：json模式与纯文本模式")
	assert.Equal(t, 71, bundle.Analysis.OverallScore)
	assert.Equal(t, "Solid resume.", bundle.Analysis.OverallSummary)
}
