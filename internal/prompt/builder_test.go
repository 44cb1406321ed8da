package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-surya-teja/skillbias/internal/types"
)

// TestBuildSnippet 清洗与截断
func TestBuildSnippet(t *testing.T) {
	b := NewBuilder(WithSnippetMaxChars(50))

	assert.Equal(t, "John Doe Engineer",
		b.BuildSnippet("John\x00Doe\n\n  Engineer"),
		"NUL与连续空白应被清理")

	long := strings.Repeat("a", 80)
	got := b.BuildSnippet(long)
	assert.True(t, strings.HasSuffix(got, snippetTruncationMark), "超长片段应带截断标记")
	assert.Equal(t, 50+len(snippetTruncationMark), len(got))

	assert.Equal(t, `resume "quoted"`, b.BuildSnippet(`resume """quoted"""`), "三重引号应折叠为单引号")
}

// TestBuildAnalysisIncludesContext 提示词应包含来源、文本与职位上下文
func TestBuildAnalysisIncludesContext(t *testing.T) {
	b := NewBuilder()
	p := b.BuildAnalysis("Five years of Go experience.", "Target backend roles", types.SourceFileAndPrompt, &types.JobContext{
		Requirements:   "Design distributed systems",
		RequiredSkills: []string{"Go", "MySQL"},
	})

	assert.Equal(t, AnalysisSystemPrompt, p.System)
	assert.Contains(t, p.User, "uploaded resume file and user prompt context", "来源描述应随source变化")
	assert.Contains(t, p.User, "Five years of Go experience.")
	assert.Contains(t, p.User, "Target backend roles")
	assert.Contains(t, p.User, "Design distributed systems")
	assert.Contains(t, p.User, "Required skills: Go, MySQL")
	assert.Contains(t, p.User, `"overallScore": number (0..100)`, "应声明期望的JSON形态")
	assert.Empty(t, p.Images, "文本分析不携带页面图片")
}

// TestBuildAnalysisPromptOnly 纯提示词来源的占位文案
func TestBuildAnalysisPromptOnly(t *testing.T) {
	b := NewBuilder()
	p := b.BuildAnalysis("", "Review my resume please", types.SourcePrompt, nil)

	assert.Contains(t, p.User, "user prompt context", "纯提示词来源的描述")
	assert.Contains(t, p.User, "No direct resume text was available", "无文本时应有占位说明")
	assert.NotContains(t, p.User, "Target job context", "无职位上下文时不应出现该段")
}

// TestBuildRepairTruncatesInput 修复提示词的输入截断
func TestBuildRepairTruncatesInput(t *testing.T) {
	b := NewBuilder()
	broken := strings.Repeat("x", 9000)
	p := b.BuildRepair(broken)

	assert.Equal(t, RepairSystemPrompt, p.System)
	assert.NotContains(t, p.User, strings.Repeat("x", 8001), "输入应截断到8000字符")
	assert.Contains(t, p.User, strings.Repeat("x", 8000))
}

// TestBuildVisualWithLayout 结构评审提示词携带布局元数据与图片
func TestBuildVisualWithLayout(t *testing.T) {
	b := NewBuilder()
	layout := &types.LayoutMetadata{
		DominantColumns: 2,
		MedianFontSize:  11,
		MaxFontSize:     16,
		BulletDensity:   0.4,
		SectionHeaders:  []string{"Experience", "Education"},
		Pages: []types.PageLayout{
			{PageNumber: 1, AvgFontSize: 11.2, LargestFontSize: 16, EstimatedColumns: 2, BulletLineCount: 6},
		},
	}
	images := [][]byte{[]byte("png-page-1")}

	p := b.BuildVisual("resume text", layout, images)

	assert.Contains(t, p.User, "- estimatedColumns: 2")
	assert.Contains(t, p.User, "- sectionHeaders: Experience, Education")
	assert.Contains(t, p.User, "Page 1: avgFont=11.2")
	require.Len(t, p.Images, 1, "页面图片应透传")
	assert.Equal(t, []byte("png-page-1"), p.Images[0])
}

// TestBuildVisualWithoutLayout 无布局元数据时的占位文案
func TestBuildVisualWithoutLayout(t *testing.T) {
	b := NewBuilder(WithVisualMaxChars(20))
	longText := strings.Repeat("b", 40)

	p := b.BuildVisual(longText, nil, nil)

	assert.Contains(t, p.User, "- layout metadata unavailable")
	assert.Contains(t, p.User, "No page metadata available.")
	assert.Contains(t, p.User, visualTruncationMark, "超长文本应带截断标记")
}
