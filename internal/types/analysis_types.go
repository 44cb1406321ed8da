package types

// ExtractionMethod 表示文本提取最终采用的策略
type ExtractionMethod string

const (
	// MethodPrimaryTool 外部pdftotext工具（保留版式）
	MethodPrimaryTool ExtractionMethod = "primary-tool"
	// MethodFallbackParser 库级PDF解析器
	MethodFallbackParser ExtractionMethod = "fallback-parser"
	// MethodFallbackRenderer 按页文本片段拼接
	MethodFallbackRenderer ExtractionMethod = "fallback-renderer"
	// MethodNone 所有策略均未产出可用文本
	MethodNone ExtractionMethod = "none"
)

// ExtractionResult 一次文档文本提取的结果
// 每次提交生成一份，构造后不再修改，也不做持久化。
type ExtractionResult struct {
	Text           string           // 归一化后的文本（空白折叠、长度截断）
	BestEffortText string           // 即使未达阈值也保留的最长可读候选
	Method         ExtractionMethod // 最终采用的提取策略
	Partial        bool             // 是否仅满足较弱的"部分"阈值
	// 各策略产出的字符数，用于诊断与备注
	MethodChars map[ExtractionMethod]int
}

// PageLayout 单页的结构信号
type PageLayout struct {
	PageNumber              int      `json:"pageNumber"`
	Width                   float64  `json:"width"`
	Height                  float64  `json:"height"`
	AvgFontSize             float64  `json:"avgFontSize"`
	LargestFontSize         float64  `json:"largestFontSize"`
	EstimatedColumns        int      `json:"estimatedColumns"` // 1 或 2
	BulletLineCount         int      `json:"bulletLineCount"`
	SectionHeaderCandidates []string `json:"sectionHeaderCandidates"`
	AvgVerticalGap          float64  `json:"avgVerticalGap"`
	LeftAlignmentVariance   float64  `json:"leftAlignmentVariance"`
}

// LayoutMetadata 文档级的结构信号汇总
type LayoutMetadata struct {
	Pages           []PageLayout `json:"pages"`
	MedianFontSize  float64      `json:"medianFontSize"`
	MaxFontSize     float64      `json:"maxFontSize"`
	BulletDensity   float64      `json:"bulletDensity"`   // 项目符号行 / 总行数
	SectionHeaders  []string     `json:"sectionHeaders"`  // 去重后的章节标题候选，最多20个
	DominantColumns int          `json:"dominantColumns"` // 任一页为双栏则为2
}

// SkillMatch 技能匹配情况
type SkillMatch struct {
	MatchedSkills []string `json:"matchedSkills"`
	MissingSkills []string `json:"missingSkills"`
}

// KeywordCoverage 关键词覆盖情况
type KeywordCoverage struct {
	MatchedKeywords []string `json:"matchedKeywords"`
	MissingKeywords []string `json:"missingKeywords"`
}

// SectionFeedback 各章节的文字反馈
type SectionFeedback struct {
	Summary    string `json:"summary"`
	Experience string `json:"experience"`
	Skills     string `json:"skills"`
	Education  string `json:"education"`
}

// ActionItem 一条可执行的改进建议
type ActionItem struct {
	Priority string `json:"priority"` // high / medium / low
	Title    string `json:"title"`
	Details  string `json:"details"`
}

// ResumeAnalysis 归一化后的简历分析结果
// 归一化保证所有字段总是存在：缺失或非法字段以固定的兜底值替换，
// OverallScore 始终为[0,100]内的整数。
type ResumeAnalysis struct {
	OverallScore    int             `json:"overallScore"`
	OverallSummary  string          `json:"overallSummary"`
	SkillMatch      SkillMatch      `json:"skillMatch"`
	KeywordCoverage KeywordCoverage `json:"keywordCoverage"`
	SectionFeedback SectionFeedback `json:"sectionFeedback"`
	ActionItems     []ActionItem    `json:"actionItems"` // 归一化后1-8条
}

// TopFix 结构评审给出的一条修复建议
type TopFix struct {
	Priority string `json:"priority"`
	Fix      string `json:"fix"`
	Reason   string `json:"reason"`
}

// LayoutFeedback 结构评审的分项反馈
type LayoutFeedback struct {
	Whitespace  string `json:"whitespace"`
	Alignment   string `json:"alignment"`
	Hierarchy   string `json:"hierarchy"`
	Scanability string `json:"scanability"`
}

// VisualAnalysis 版式质量评审结果，归一化约束与ResumeAnalysis一致
// TopFixes 归一化后至少一条（模型返回空列表时注入合成建议）。
type VisualAnalysis struct {
	VisualScore      int            `json:"visualScore"`
	StructureScore   int            `json:"structureScore"`
	ReadabilityScore int            `json:"readabilityScore"`
	OverallScore     int            `json:"overallScore"`
	VisualIssues     []string       `json:"visualIssues"`
	Strengths        []string       `json:"strengths"`
	Weaknesses       []string       `json:"weaknesses"`
	LayoutFeedback   LayoutFeedback `json:"layoutFeedback"`
	TopFixes         []TopFix       `json:"topFixes"`
}

// AnalysisSource 分析依据的输入来源
type AnalysisSource string

const (
	SourceFile          AnalysisSource = "file"
	SourcePrompt        AnalysisSource = "prompt"
	SourceFileAndPrompt AnalysisSource = "file-and-prompt"
)

// JobContext 岗位上下文，仅用于参数化提示词
type JobContext struct {
	Requirements   string   `json:"requirements"`
	RequiredSkills []string `json:"requiredSkills"`
}

// AnalysisBundle 一次提交的完整分析产出
type AnalysisBundle struct {
	Source       AnalysisSource  `json:"source"`
	Notes        []string        `json:"notes"` // 诊断备注：采用的提取策略、是否走了兜底路径等
	Analysis     *ResumeAnalysis `json:"analysis"`
	VisualReview *VisualAnalysis `json:"visualReview,omitempty"`
	Layout       *LayoutMetadata `json:"layout,omitempty"`

	// 持久化用的中间产物，不随结果对外输出
	ExtractedText    string           `json:"-"`
	ExtractionMethod ExtractionMethod `json:"-"`
	ConvertedPDF     []byte           `json:"-"` // doc/docx转换产物，上传converted桶
	PageImages       [][]byte         `json:"-"` // 渲染出的页面PNG，上传page-images桶
}
