// Package analyzer 实现简历分析的编排层。
// 它把提取级联、版式分析、相关性门控、提示词组装与模型调用
// 串成单次提交的完整流水线，所有降级路径都体现为结果里的
// 诊断备注而不是硬失败。
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/k-surya-teja/skillbias/internal/convert"
	"github.com/k-surya-teja/skillbias/internal/extract"
	"github.com/k-surya-teja/skillbias/internal/layout"
	"github.com/k-surya-teja/skillbias/internal/logger"
	"github.com/k-surya-teja/skillbias/internal/model"
	"github.com/k-surya-teja/skillbias/internal/normalize"
	"github.com/k-surya-teja/skillbias/internal/prompt"
	"github.com/k-surya-teja/skillbias/internal/relevance"
	"github.com/k-surya-teja/skillbias/internal/tracing"
	"github.com/k-surya-teja/skillbias/internal/types"
)

// 定义tracer
var tracer = otel.Tracer("analyzer")

// Components 聚合所有功能组件依赖，便于集中管理和测试替换
type Components struct {
	Cascade         *extract.Cascade        // 文本提取级联
	OfficeConverter convert.OfficeConverter // doc/docx转PDF
	Rasterizer      convert.Rasterizer      // 页面渲染为PNG
	LayoutAnalyzer  *layout.Analyzer        // 版式结构信号
	Classifier      *relevance.Classifier   // 简历相关性门控
	PromptBuilder   *prompt.Builder         // 提示词组装
	Provider        model.Provider          // 模型提供方
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	Logger         zerolog.Logger // 日志记录器
	EnableVisual   bool           // 是否执行结构评审
	RenderMaxPages int            // 结构评审渲染的最大页数
	MaxUploadBytes int64          // 上传文件大小上限
	ModelTimeout   time.Duration  // 单次模型调用超时
	AnalysisModel  string         // 文本分析模型（空则用提供方默认）
	VisualModel    string         // 结构评审模型（空则用提供方默认）
}

// Analyzer 简历分析编排器
type Analyzer struct {
	Components
	Settings
}

// AnalysisRequest 一次分析提交的输入
// FileBytes 与 UserPrompt 至少提供一个。
type AnalysisRequest struct {
	SubmissionUUID string
	FileName       string
	MIMEType       string
	FileBytes      []byte
	UserPrompt     string
	Job            *types.JobContext
}

// NewAnalyzer 创建分析编排器
func NewAnalyzer(compOpts []ComponentOpt, setOpts []SettingOpt) (*Analyzer, error) {
	a := &Analyzer{
		Settings: Settings{
			Logger:         logger.With("analyzer"),
			EnableVisual:   true,
			RenderMaxPages: 3,
			MaxUploadBytes: 12 << 20,
			ModelTimeout:   20 * time.Second,
		},
	}
	for _, opt := range compOpts {
		opt(&a.Components)
	}
	for _, opt := range setOpts {
		opt(&a.Settings)
	}

	if a.Cascade == nil {
		return nil, fmt.Errorf("文本提取级联未初始化")
	}
	if a.Classifier == nil {
		return nil, fmt.Errorf("相关性分类器未初始化")
	}
	if a.PromptBuilder == nil {
		return nil, fmt.Errorf("提示词组装器未初始化")
	}
	if a.Provider == nil {
		return nil, fmt.Errorf("模型提供方未初始化")
	}
	return a, nil
}

// Analyze 执行一次完整的简历分析
// 流程：输入校验 -> 文件文本提取 -> 结构评审 -> 相关性门控 ->
// 模型分析（含JSON模式降级与修复重试）-> 归一化。
// 可恢复的降级都记录为Notes；返回错误仅发生在输入非法、
// 相关性被拒或模型链路彻底失败时。
func (a *Analyzer) Analyze(ctx context.Context, req *AnalysisRequest) (*types.AnalysisBundle, error) {
	ctx, span := tracer.Start(ctx, "Analyze")
	defer span.End()

	req.UserPrompt = strings.TrimSpace(req.UserPrompt)
	hasFile := len(req.FileBytes) > 0
	hasPrompt := req.UserPrompt != ""

	if err := a.validate(req, hasFile, hasPrompt); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	source := detectSource(hasFile, hasPrompt)
	span.SetAttributes(
		attribute.String("analysis.source", string(source)),
		attribute.String("submission.uuid", req.SubmissionUUID),
	)

	var (
		notes                  []string
		extractedText          string
		usedUnreadableFallback bool
		layoutMeta             *types.LayoutMetadata
		visualReview           *types.VisualAnalysis
		extractionMethod       = types.MethodNone
		convertedPDF           []byte
		pageImages             [][]byte
	)

	if hasFile {
		pdfBytes, converted := a.preparePDF(ctx, req, &notes)
		if converted {
			convertedPDF = pdfBytes
		}

		if pdfBytes != nil {
			extraction := a.Cascade.Run(ctx, pdfBytes)
			extractionMethod = extraction.Method
			span.SetAttributes(attribute.String("extraction.method", string(extraction.Method)))

			switch {
			case extraction.Text != "" && !extraction.Partial:
				extractedText = extraction.Text
				if extraction.Method != types.MethodPrimaryTool {
					notes = append(notes, "Primary PDF extraction was weak. A parser fallback was used to recover resume text.")
				}
			case extraction.Partial:
				extractedText = extraction.Text
				notes = append(notes, "Resume text extraction was partial. Analysis quality may improve with a text-based PDF export.")
			case hasPrompt:
				notes = append(notes, "Uploaded file could not be parsed into readable text. Analysis relied on the prompt context.")
			default:
				// 扫描件等无文本文档不硬失败，带着安全的兜底上下文继续
				extractedText = extract.Normalize(fmt.Sprintf(
					"Resume file uploaded: %s. Full text extraction was limited in this version.", req.FileName))
				usedUnreadableFallback = true
				notes = append(notes, fmt.Sprintf(
					"Uploaded file had limited extractable text. Analysis was generated using fallback file context. Extraction details - method: %s, primaryToolChars: %d, parserChars: %d, rendererChars: %d.",
					extraction.Method,
					extraction.MethodChars[types.MethodPrimaryTool],
					extraction.MethodChars[types.MethodFallbackParser],
					extraction.MethodChars[types.MethodFallbackRenderer],
				))
			}

			if a.EnableVisual {
				meta, review, images, err := a.reviewVisual(ctx, extractedText, pdfBytes)
				layoutMeta = meta
				pageImages = images
				if err != nil {
					a.Logger.Warn().Err(err).Str("uuid", req.SubmissionUUID).Msg("结构评审失败，降级为纯文本分析")
					notes = append(notes, fmt.Sprintf("Structural review could not be completed: %s", reviewFailureReason(err)))
				} else {
					visualReview = review
				}
			}
		} else if hasPrompt {
			notes = append(notes, "Uploaded file could not be parsed into readable text. Analysis relied on the prompt context.")
		} else {
			extractedText = extract.Normalize(fmt.Sprintf(
				"Resume file uploaded: %s. Full text extraction was limited in this version.", req.FileName))
			usedUnreadableFallback = true
			notes = append(notes, "Uploaded file had limited extractable text. Analysis was generated using fallback file context. Extraction details are unavailable for this file type.")
		}
	}

	if hasPrompt {
		promptContext := fmt.Sprintf("User prompt context: %s", req.UserPrompt)
		if extractedText != "" {
			extractedText = extractedText + "\n\n" + promptContext
		} else {
			extractedText = promptContext
		}
	}

	// 相关性门控：文件来源必须像简历，纯提示词来源只拒绝明显的非简历。
	// 不可读文件的占位上下文没有判别价值，跳过门控。
	if extractedText != "" && source != types.SourcePrompt && !usedUnreadableFallback {
		gateName := req.FileName
		if gateName == "" {
			gateName = req.UserPrompt
		}
		if !a.Classifier.IsResume(gateName, extractedText) {
			err := NewRelevanceError(req.SubmissionUUID, "文件内容未达到简历判定阈值")
			tracing.RecordError(span, err, tracing.ErrorTypeRelevance)
			return nil, err
		}
	}
	if extractedText != "" && source == types.SourcePrompt {
		if a.Classifier.IsClearlyNotResume(req.UserPrompt, extractedText) {
			err := NewRelevanceError(req.SubmissionUUID, "提示词内容被判定为明显非简历")
			tracing.RecordError(span, err, tracing.ErrorTypeRelevance)
			return nil, err
		}
	}

	analysisPrompt := a.PromptBuilder.BuildAnalysis(extractedText, req.UserPrompt, source, req.Job)
	rawOutput, err := a.completeWithJSONFallback(ctx, analysisPrompt, a.AnalysisModel, 0.2, 1600, 0.1, 2200)
	if err != nil {
		wrapped := NewModelError(req.SubmissionUUID, err)
		tracing.RecordError(span, wrapped, tracing.ErrorTypeModel)
		return nil, wrapped
	}
	if strings.TrimSpace(rawOutput) == "" {
		wrapped := NewEmptyOutputError(req.SubmissionUUID)
		tracing.RecordError(span, wrapped, tracing.ErrorTypeModel)
		return nil, wrapped
	}

	var analysis types.ResumeAnalysis
	parsed, parseErr := normalize.ParseObject(rawOutput)
	if parseErr != nil {
		parsed, parseErr = a.repairAndParse(ctx, rawOutput)
	}
	if parseErr != nil {
		a.Logger.Warn().Str("uuid", req.SubmissionUUID).Msg("模型输出无法解析为JSON，生成离线兜底分析")
		span.SetAttributes(attribute.String("model.raw_output", tracing.SafeModelOutput(rawOutput)))
		analysis = normalize.FallbackFromText(extractedText)
		notes = append(notes, "Model returned invalid JSON. Fallback analysis was generated from extracted resume text.")
	} else {
		analysis = normalize.Analysis(parsed)
	}

	span.SetAttributes(attribute.Int("analysis.overall_score", analysis.OverallScore))
	span.SetStatus(codes.Ok, "分析完成")

	return &types.AnalysisBundle{
		Source:           source,
		Notes:            notes,
		Analysis:         &analysis,
		VisualReview:     visualReview,
		Layout:           layoutMeta,
		ExtractedText:    extractedText,
		ExtractionMethod: extractionMethod,
		ConvertedPDF:     convertedPDF,
		PageImages:       pageImages,
	}, nil
}

// validate 校验提交输入
func (a *Analyzer) validate(req *AnalysisRequest, hasFile, hasPrompt bool) error {
	if !hasFile && !hasPrompt {
		return NewValidationError(req.SubmissionUUID, "Upload a resume file or provide a prompt.")
	}
	if hasPrompt && len(req.UserPrompt) < 12 {
		return NewValidationError(req.SubmissionUUID, "Prompt should be at least 12 characters for useful analysis context.")
	}
	if hasFile {
		if int64(len(req.FileBytes)) > a.MaxUploadBytes {
			return NewFileTooLargeError(req.SubmissionUUID,
				fmt.Sprintf("文件%d字节，上限%d字节", len(req.FileBytes), a.MaxUploadBytes))
		}
		if !hasAllowedExtension(req.FileName) {
			return NewUnsupportedFileError(req.SubmissionUUID,
				fmt.Sprintf("不支持的扩展名: %s", filepath.Ext(req.FileName)))
		}
	}
	return nil
}

// preparePDF 把上传内容归一化为PDF字节
// PDF直接透传；doc/docx经soffice转换，转换失败不是硬错误，
// 返回nil让上层走不可读兜底路径。第二个返回值表示是否发生了格式转换。
func (a *Analyzer) preparePDF(ctx context.Context, req *AnalysisRequest, notes *[]string) ([]byte, bool) {
	name := strings.ToLower(req.FileName)
	mime := strings.ToLower(req.MIMEType)

	isPDF := strings.Contains(mime, "pdf") ||
		strings.HasSuffix(name, ".pdf") ||
		bytes.HasPrefix(req.FileBytes, []byte("%PDF-"))
	if isPDF {
		return req.FileBytes, false
	}

	if a.OfficeConverter == nil {
		a.Logger.Warn().Str("file", req.FileName).Msg("未配置Office转换器，无法处理doc/docx")
		return nil, false
	}

	converted, err := a.OfficeConverter.ConvertToPDF(ctx, req.FileBytes, filepath.Ext(name))
	if err != nil {
		a.Logger.Warn().Err(err).Str("file", req.FileName).Msg("doc/docx转PDF失败")
		return nil, false
	}
	return converted, true
}

// reviewVisual 执行结构评审
// 版式分析与页面渲染并行执行；版式分析失败只丢掉元数据，
// 渲染失败只丢掉页面图片，两者都不中断评审本身。
func (a *Analyzer) reviewVisual(ctx context.Context, resumeText string, pdfBytes []byte) (*types.LayoutMetadata, *types.VisualAnalysis, [][]byte, error) {
	ctx, span := tracer.Start(ctx, "ReviewVisual")
	defer span.End()

	var (
		wg         sync.WaitGroup
		layoutMeta *types.LayoutMetadata
		pageImages [][]byte
	)

	if a.LayoutAnalyzer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			meta, err := a.LayoutAnalyzer.Analyze(pdfBytes)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("版式分析失败，结构评审缺少布局元数据")
				return
			}
			layoutMeta = meta
		}()
	}
	if a.Rasterizer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			images, err := a.Rasterizer.RenderPages(ctx, pdfBytes, a.RenderMaxPages)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("页面渲染失败，结构评审缺少页面图片")
				return
			}
			pageImages = images
		}()
	}
	wg.Wait()

	if layoutMeta == nil && len(pageImages) == 0 {
		err := fmt.Errorf("版式分析与页面渲染均无产出")
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, nil, nil, err
	}
	span.SetAttributes(attribute.Int("visual.page_images", len(pageImages)))

	visualPrompt := a.PromptBuilder.BuildVisual(resumeText, layoutMeta, pageImages)
	rawOutput, err := a.completeWithJSONFallback(ctx, visualPrompt, a.VisualModel, 0.1, 1800, 0.1, 2200)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeModel)
		return layoutMeta, nil, pageImages, err
	}

	parsed, parseErr := normalize.ParseObject(rawOutput)
	if parseErr != nil {
		parsed, parseErr = a.repairAndParse(ctx, rawOutput)
	}
	if parseErr != nil {
		tracing.RecordError(span, parseErr, tracing.ErrorTypeModel,
			attribute.String("model.raw_output", tracing.SafeModelOutput(rawOutput)))
		return layoutMeta, nil, pageImages, parseErr
	}

	review := normalize.Visual(parsed)
	span.SetStatus(codes.Ok, "结构评审完成")
	return layoutMeta, &review, pageImages, nil
}

// completeWithJSONFallback 调用模型并处理json_object模式的失败
// 部分提供方在内容难以结构化时直接拒绝json模式请求，此时用
// 纯文本模式加强指令重试一次。
func (a *Analyzer) completeWithJSONFallback(ctx context.Context, p prompt.Prompt, modelName string, temp float64, maxTokens int, fallbackTemp float64, fallbackMaxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.ModelTimeout)
	defer cancel()

	output, err := a.Provider.Complete(callCtx, p, model.CompletionOptions{
		Model:       modelName,
		Temperature: temp,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	})
	if err == nil {
		return output, nil
	}
	if !model.IsJSONModeFailure(err) {
		return "", err
	}

	a.Logger.Warn().Err(err).Msg("json模式被拒，改用纯文本模式重试")
	plain := prompt.Prompt{
		System: prompt.PlainJSONSystemPrompt,
		User:   p.User + "\n\nIMPORTANT: Return one complete JSON object only.",
		Images: p.Images,
	}
	retryCtx, retryCancel := context.WithTimeout(ctx, a.ModelTimeout)
	defer retryCancel()
	return a.Provider.Complete(retryCtx, plain, model.CompletionOptions{
		Model:       modelName,
		Temperature: fallbackTemp,
		MaxTokens:   fallbackMaxTokens,
		JSONMode:    false,
	})
}

// repairAndParse 请求模型把畸形输出修复为合法JSON后再解析
func (a *Analyzer) repairAndParse(ctx context.Context, brokenOutput string) (map[string]interface{}, error) {
	repairCtx, cancel := context.WithTimeout(ctx, a.ModelTimeout)
	defer cancel()

	repaired, err := a.Provider.Complete(repairCtx, a.PromptBuilder.BuildRepair(brokenOutput), model.CompletionOptions{
		Model:       a.AnalysisModel,
		Temperature: 0,
		MaxTokens:   1200,
		JSONMode:    false,
	})
	if err != nil {
		return nil, err
	}
	return normalize.ParseObject(repaired)
}

// detectSource 根据输入组合判定分析来源
func detectSource(hasFile, hasPrompt bool) types.AnalysisSource {
	if hasFile && hasPrompt {
		return types.SourceFileAndPrompt
	}
	if hasFile {
		return types.SourceFile
	}
	return types.SourcePrompt
}

// hasAllowedExtension 扩展名白名单校验
func hasAllowedExtension(fileName string) bool {
	name := strings.ToLower(fileName)
	return strings.HasSuffix(name, ".pdf") ||
		strings.HasSuffix(name, ".doc") ||
		strings.HasSuffix(name, ".docx")
}

// reviewFailureReason 把内部错误转成可外显的失败原因
func reviewFailureReason(err error) string {
	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) && analysisErr.Detail != "" {
		return analysisErr.Detail
	}
	return err.Error()
}
