package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/k-surya-teja/skillbias/internal/types"
)

// 提示词中内嵌文本的长度上限
// 截断只为约束下游调用的成本与时延；模型并不受提示词约束的
// 契约保证，健壮性由响应归一化兜底。
const (
	DefaultSnippetMaxChars = 12000
	DefaultVisualMaxChars  = 16000

	snippetTruncationMark = "\n\n[truncated for model input limits]"
	visualTruncationMark  = "\n\n[truncated]"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Prompt 组装好的一次模型调用输入
type Prompt struct {
	System string
	User   string
	Images [][]byte // PNG页面图片，仅结构评审使用
}

// Builder 确定性的提示词组装器
type Builder struct {
	snippetMaxChars int
	visualMaxChars  int
}

// Option 配置Builder的函数选项
type Option func(*Builder)

// WithSnippetMaxChars 覆盖文本分析提示中简历片段的长度上限
func WithSnippetMaxChars(max int) Option {
	return func(b *Builder) {
		if max > 0 {
			b.snippetMaxChars = max
		}
	}
}

// WithVisualMaxChars 覆盖结构评审提示中文本的长度上限
func WithVisualMaxChars(max int) Option {
	return func(b *Builder) {
		if max > 0 {
			b.visualMaxChars = max
		}
	}
}

// NewBuilder 创建提示词组装器
func NewBuilder(options ...Option) *Builder {
	b := &Builder{
		snippetMaxChars: DefaultSnippetMaxChars,
		visualMaxChars:  DefaultVisualMaxChars,
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// BuildSnippet 清洗并截断送入提示词的简历文本
func (b *Builder) BuildSnippet(text string) string {
	sanitized := strings.ReplaceAll(text, "\x00", " ")
	sanitized = strings.ReplaceAll(sanitized, `"""`, `"`)
	sanitized = whitespaceRE.ReplaceAllString(sanitized, " ")
	sanitized = strings.TrimSpace(sanitized)
	if len(sanitized) <= b.snippetMaxChars {
		return sanitized
	}
	return sanitized[:b.snippetMaxChars] + snippetTruncationMark
}

// formatSourceLabel 输入来源的自然语言描述
func formatSourceLabel(source types.AnalysisSource) string {
	switch source {
	case types.SourceFileAndPrompt:
		return "uploaded resume file and user prompt context"
	case types.SourceFile:
		return "uploaded resume file"
	default:
		return "user prompt context"
	}
}

// AnalysisSystemPrompt 文本分析的system提示词
const AnalysisSystemPrompt = "You are an ATS resume reviewer. Return only strict JSON that follows the provided schema."

// PlainJSONSystemPrompt json_object模式被拒后重试时的system提示词
const PlainJSONSystemPrompt = "Return exactly one valid JSON object and nothing else. Do not use markdown or code fences."

// RepairSystemPrompt 修复畸形输出的system提示词
const RepairSystemPrompt = "You convert malformed model output into one valid JSON object. Return JSON only."

// BuildAnalysis 组装简历文本分析的提示词
// 提示词显式声明期望的JSON形态与各字段的长度/数量上限。
func (b *Builder) BuildAnalysis(resumeText, userPrompt string, source types.AnalysisSource, job *types.JobContext) Prompt {
	resumeContext := ""
	if resumeText != "" {
		resumeContext = b.BuildSnippet(resumeText)
	}

	parts := []string{
		"You are an ATS resume reviewer. Base your analysis only on provided context.",
		fmt.Sprintf("Input source: %s.", formatSourceLabel(source)),
	}
	if resumeContext != "" {
		parts = append(parts, fmt.Sprintf("Extracted resume text:\n\"\"\"%s\"\"\"", resumeContext))
	} else {
		parts = append(parts, "No direct resume text was available from the uploaded file.")
	}
	if userPrompt != "" {
		parts = append(parts, fmt.Sprintf("User context prompt:\n\"\"\"%s\"\"\"", userPrompt))
	} else {
		parts = append(parts, "No user prompt provided.")
	}
	if job != nil && (job.Requirements != "" || len(job.RequiredSkills) > 0) {
		jobLines := []string{"Target job context:"}
		if job.Requirements != "" {
			jobLines = append(jobLines, fmt.Sprintf("Requirements: %s", b.BuildSnippet(job.Requirements)))
		}
		if len(job.RequiredSkills) > 0 {
			jobLines = append(jobLines, fmt.Sprintf("Required skills: %s", strings.Join(job.RequiredSkills, ", ")))
		}
		parts = append(parts, strings.Join(jobLines, "\n"))
	}
	parts = append(parts, strings.Join([]string{
		"Return strictly valid JSON with exactly this shape:",
		"{",
		`  "overallScore": number (0..100),`,
		`  "overallSummary": string,`,
		`  "skillMatch": { "matchedSkills": string[], "missingSkills": string[] },`,
		`  "keywordCoverage": { "matchedKeywords": string[], "missingKeywords": string[] },`,
		`  "sectionFeedback": {`,
		`    "summary": string,`,
		`    "experience": string,`,
		`    "skills": string,`,
		`    "education": string`,
		"  },",
		`  "actionItems": [`,
		`    { "priority": "high" | "medium" | "low", "title": string, "details": string }`,
		"  ]",
		"}",
		"No markdown, comments, trailing commas, or additional keys.",
		"Keep output concise to avoid token overflow:",
		"- matchedSkills/missingSkills: max 12 items each",
		"- matchedKeywords/missingKeywords: max 15 items each",
		"- actionItems: max 6 items",
		"- overallSummary and each sectionFeedback field: max 2 short sentences",
		"- each action item details: max 1 short sentence",
	}, "\n"))

	return Prompt{
		System: AnalysisSystemPrompt,
		User:   strings.Join(parts, "\n\n"),
	}
}

// BuildRepair 组装修复畸形JSON输出的提示词
// 输入截断到8000字符，避免把一次失败放大为更贵的失败。
func (b *Builder) BuildRepair(brokenOutput string) Prompt {
	input := brokenOutput
	if len(input) > 8000 {
		input = input[:8000]
	}
	return Prompt{
		System: RepairSystemPrompt,
		User: strings.Join([]string{
			"Fix this into a single valid JSON object that follows the expected ATS analysis schema.",
			"Do not add markdown or explanations.",
			fmt.Sprintf("Input:\n%s", input),
		}, "\n\n"),
	}
}

// BuildVisual 组装结构评审的提示词
// 页面图片是主要的视觉证据，文本与布局元数据作为辅助证据。
func (b *Builder) BuildVisual(resumeText string, layout *types.LayoutMetadata, images [][]byte) Prompt {
	text := resumeText
	if len(text) > b.visualMaxChars {
		text = text[:b.visualMaxChars] + visualTruncationMark
	}

	sectionHeaders := "None confidently detected"
	layoutLines := []string{"Layout metadata:", "- layout metadata unavailable"}
	pageSummary := "No page metadata available."
	if layout != nil {
		if len(layout.SectionHeaders) > 0 {
			sectionHeaders = strings.Join(layout.SectionHeaders, ", ")
		}
		layoutLines = []string{
			"Layout metadata:",
			fmt.Sprintf("- pageCount: %d", len(layout.Pages)),
			fmt.Sprintf("- estimatedColumns: %d", layout.DominantColumns),
			fmt.Sprintf("- dominantFontSize: %.1f", layout.MedianFontSize),
			fmt.Sprintf("- largestFontSize: %.1f", layout.MaxFontSize),
			fmt.Sprintf("- bulletDensity: %.3f", layout.BulletDensity),
			fmt.Sprintf("- sectionHeaders: %s", sectionHeaders),
		}
		var pageLines []string
		for _, page := range layout.Pages {
			pageLines = append(pageLines, fmt.Sprintf(
				"Page %d: avgFont=%.1f, largestFont=%.1f, columns=%d, bullets=%d, avgGap=%.1f, alignVariance=%.1f",
				page.PageNumber, page.AvgFontSize, page.LargestFontSize,
				page.EstimatedColumns, page.BulletLineCount, page.AvgVerticalGap, page.LeftAlignmentVariance))
		}
		if len(pageLines) > 0 {
			pageSummary = strings.Join(pageLines, "\n")
		}
	}

	user := strings.Join([]string{
		"You are a senior recruiter reviewing a resume visually.",
		"Evaluate hierarchy, spacing, scanability, alignment, and professionalism.",
		"Think like a recruiter scanning for 6 seconds.",
		"",
		"You must evaluate BOTH textual content and visual layout.",
		"Use page images as primary visual evidence and text/layout metadata as supporting evidence.",
		"",
		"Resume text (normalized extract):",
		fmt.Sprintf("\"\"\"\n%s\n\"\"\"", text),
		"",
		strings.Join(layoutLines, "\n"),
		"",
		"Per-page metadata:",
		pageSummary,
		"",
		"Return STRICT JSON only with exactly this shape:",
		"{",
		`  "visualScore": number,`,
		`  "structureScore": number,`,
		`  "readabilityScore": number,`,
		`  "overallScore": number,`,
		`  "visualIssues": string[],`,
		`  "strengths": string[],`,
		`  "weaknesses": string[],`,
		`  "layoutFeedback": {`,
		`    "whitespace": string,`,
		`    "alignment": string,`,
		`    "hierarchy": string,`,
		`    "scanability": string`,
		"  },",
		`  "topFixes": [`,
		`    { "priority": "high" | "medium" | "low", "fix": string, "reason": string }`,
		"  ]",
		"}",
		"",
		"No markdown. JSON only.",
		"Keep the output concise and concrete.",
	}, "\n")

	return Prompt{
		System: "You are an expert recruiter and resume design reviewer. Return one valid JSON object only.",
		User:   user,
		Images: images,
	}
}
