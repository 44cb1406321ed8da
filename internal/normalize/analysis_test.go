package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScore 分数归一化的各种输入形态
func TestScore(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  int
		ok    bool
	}{
		{"整数浮点", float64(87), 87, true},
		{"四舍五入", float64(86.6), 87, true},
		{"越界数值", float64(150), 0, false},
		{"负数", float64(-5), 0, false},
		{"分数形式", "87/100", 87, true},
		{"百分号", "85%", 85, true},
		{"带文字", "score is 72 out of 100", 72, true},
		{"纯文本", "excellent", 0, false},
		{"空串", "", 0, false},
		{"nil", nil, 0, false},
		{"布尔", true, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Score(tc.input)
			assert.Equal(t, tc.ok, ok, "ok标志与预期不符")
			assert.Equal(t, tc.want, got, "分数与预期不符")
		})
	}
}

// TestAnalysisFillsDefaults 缺字段的输入归一化后所有字段都有值
func TestAnalysisFillsDefaults(t *testing.T) {
	result := Analysis(map[string]interface{}{})

	assert.Equal(t, 50, result.OverallScore, "无分数信息时应取50")
	assert.NotEmpty(t, result.OverallSummary, "总结应有兜底文案")
	assert.NotNil(t, result.SkillMatch.MatchedSkills, "技能列表应为空切片而非nil")
	assert.NotEmpty(t, result.SectionFeedback.Summary, "章节反馈应有兜底文案")
	require.Len(t, result.ActionItems, 1, "空建议列表应注入一条合成建议")
	assert.Equal(t, "high", result.ActionItems[0].Priority)
}

// TestAnalysisRecoversScoreFromSummary 总分缺失时从总结文字捞数字
func TestAnalysisRecoversScoreFromSummary(t *testing.T) {
	result := Analysis(map[string]interface{}{
		"overallSummary": "The resume scores 78 overall with good structure.",
	})
	assert.Equal(t, 78, result.OverallScore, "应从总结文字中恢复分数")
}

// TestAnalysisNormalizesActionItems 建议条目的优先级归一化与截断
func TestAnalysisNormalizesActionItems(t *testing.T) {
	var rawItems []interface{}
	for i := 0; i < 12; i++ {
		rawItems = append(rawItems, map[string]interface{}{
			"priority": "URGENT",
			"title":    "Fix something",
			"details":  "Do it now",
		})
	}
	rawItems = append(rawItems, "not an object")

	result := Analysis(map[string]interface{}{
		"overallScore": float64(70),
		"actionItems":  rawItems,
	})

	assert.Len(t, result.ActionItems, 8, "建议条目应截断到8条")
	for _, item := range result.ActionItems {
		assert.Equal(t, "medium", item.Priority, "未知优先级应归一化为medium")
	}
}

// TestAnalysisFiltersStringLists 列表字段过滤非字符串与空项
func TestAnalysisFiltersStringLists(t *testing.T) {
	result := Analysis(map[string]interface{}{
		"overallScore": float64(70),
		"skillMatch": map[string]interface{}{
			"matchedSkills": []interface{}{"Go", "   ", float64(42), "MySQL"},
		},
	})
	assert.Equal(t, []string{"Go", "MySQL"}, result.SkillMatch.MatchedSkills, "应过滤空白与非字符串项")
}

// TestFallbackFromText 离线兜底分析的确定性打分
func TestFallbackFromText(t *testing.T) {
	full := FallbackFromText("Experience at Acme. Education: BS. Skills: Go.")
	assert.Equal(t, 82, full.OverallScore, "三个章节齐全应触顶82")
	assert.Contains(t, full.OverallSummary, "fallback mode", "总结应说明走了兜底模式")
	assert.Len(t, full.ActionItems, 3, "兜底分析固定三条建议")

	empty := FallbackFromText("")
	assert.Equal(t, 55, empty.OverallScore, "无章节信号时为基线55分")
	assert.Empty(t, empty.SkillMatch.MatchedSkills)

	partial := FallbackFromText("Work experience only.")
	assert.Equal(t, 65, partial.OverallScore, "仅经历章节应为55+10")
	assert.Equal(t, []string{"experience"}, partial.KeywordCoverage.MatchedKeywords)
}

// TestVisualScoring 结构评审归一化：夹取与均值
func TestVisualScoring(t *testing.T) {
	result := Visual(map[string]interface{}{
		"visualScore":      float64(120),
		"structureScore":   float64(-10),
		"readabilityScore": "88",
	})

	assert.Equal(t, 100, result.VisualScore, "越界分数应夹到100")
	assert.Equal(t, 0, result.StructureScore, "负分应夹到0")
	assert.Equal(t, 88, result.ReadabilityScore, "字符串分数应解析")
	assert.Equal(t, 63, result.OverallScore, "总分缺失时取三个分项的均值")
	require.NotEmpty(t, result.TopFixes, "空修复列表应注入合成建议")
	assert.NotEmpty(t, result.LayoutFeedback.Whitespace, "布局反馈应有兜底文案")
}

// TestVisualRespectsExplicitOverall 显式总分优先于均值
func TestVisualRespectsExplicitOverall(t *testing.T) {
	result := Visual(map[string]interface{}{
		"visualScore":      float64(90),
		"structureScore":   float64(90),
		"readabilityScore": float64(90),
		"overallScore":     float64(40),
	})
	assert.Equal(t, 40, result.OverallScore, "显式总分应被采用而非均值")
}
