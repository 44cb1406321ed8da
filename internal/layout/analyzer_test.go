package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 构造一页单栏简历的定位片段：大字号标题 + 正文 + 项目符号行
func singleColumnRuns() []TextRun {
	return []TextRun{
		{Text: "EXPERIENCE", X: 50, Y: 700, FontSize: 14},
		{Text: "Acme Corp, Senior Engineer", X: 50, Y: 680, FontSize: 11},
		{Text: "• Built the payment pipeline", X: 50, Y: 660, FontSize: 11},
		{Text: "• Reduced latency by 40%", X: 50, Y: 640, FontSize: 11},
		{Text: "Education:", X: 50, Y: 600, FontSize: 14},
		{Text: "State University", X: 50, Y: 580, FontSize: 11},
		{Text: "1. Dean's list", X: 50, Y: 560, FontSize: 11},
	}
}

// TestAnalyzePageSingleColumn 单栏页面的标题与项目符号统计
func TestAnalyzePageSingleColumn(t *testing.T) {
	layout := AnalyzePage(singleColumnRuns(), 612, 792, 1)

	assert.Equal(t, 1, layout.PageNumber)
	assert.Equal(t, 1, layout.EstimatedColumns, "左侧聚集的片段应判为单栏")
	assert.Equal(t, 3, layout.BulletLineCount, "•与数字编号行都应计为项目符号行")
	assert.Equal(t, 14.0, layout.LargestFontSize)
	assert.Contains(t, layout.SectionHeaderCandidates, "EXPERIENCE", "大字号全大写行应为标题候选")
	assert.Contains(t, layout.SectionHeaderCandidates, "Education:", "冒号结尾的大字号行应为标题候选")
	assert.NotContains(t, layout.SectionHeaderCandidates, "State University", "正文字号的行不应为标题候选")
	assert.Greater(t, layout.AvgVerticalGap, 0.0, "应统计出正的平均行距")
}

// TestAnalyzePageTwoColumns 分界线两侧片段足够多时判为双栏
func TestAnalyzePageTwoColumns(t *testing.T) {
	var runs []TextRun
	for i := 0; i < 12; i++ {
		runs = append(runs, TextRun{Text: "left", X: 60, Y: float64(700 - i*20), FontSize: 11})
		runs = append(runs, TextRun{Text: "right", X: 400, Y: float64(700 - i*20), FontSize: 11})
	}

	layout := AnalyzePage(runs, 612, 792, 2)
	assert.Equal(t, 2, layout.EstimatedColumns, "两侧各12个片段应判为双栏")
}

// TestIsHeaderCandidate 标题判定的形态与字号条件
func TestIsHeaderCandidate(t *testing.T) {
	assert.True(t, isHeaderCandidate("SKILLS", 14, 11), "全大写且字号更大应为标题")
	assert.True(t, isHeaderCandidate("Work Experience", 13, 11), "Title Case且字号更大应为标题")
	assert.False(t, isHeaderCandidate("Work Experience", 11, 11), "字号不足不应为标题")
	assert.False(t, isHeaderCandidate("built the payment pipeline for acme", 14, 11), "小写正文形态不应为标题")
	assert.False(t, isHeaderCandidate("", 14, 11), "空行不应为标题")
}

// TestGroupLinesMergesSameY y坐标相近的片段应聚合为一行
func TestGroupLinesMergesSameY(t *testing.T) {
	runs := []TextRun{
		{Text: "John ", X: 50, Y: 700.5, FontSize: 12},
		{Text: "Doe", X: 120, Y: 700, FontSize: 14},
		{Text: "Engineer", X: 50, Y: 650, FontSize: 11},
	}
	lines := groupLines(runs)

	assert.Len(t, lines, 2, "y相差2以内的片段应合并")
	assert.Equal(t, "John Doe", lines[0].text)
	assert.Equal(t, 14.0, lines[0].maxFont, "合并行取最大字号")
}

// TestStatsHelpers 统计辅助函数
func TestStatsHelpers(t *testing.T) {
	assert.Equal(t, 0.0, median(nil), "空集合中位数为0")
	assert.Equal(t, 11.0, median([]float64{10, 11, 14}), "奇数个取中间值")
	assert.Equal(t, 11.5, median([]float64{10, 11, 12, 14}), "偶数个取中间两数均值")
	assert.Equal(t, 0.0, variance([]float64{5, 5, 5}), "相同值方差为0")
	assert.Equal(t, 14.0, maxOf([]float64{10, 14, 11}))
}
