package normalize

import (
	"math"
	"strconv"

	"github.com/k-surya-teja/skillbias/internal/types"
)

const maxTopFixes = 8

// 结构评审各字段的兜底文案
var (
	defaultVisualIssues = []string{"Spacing consistency needs improvement across sections."}
	defaultStrengths    = []string{"Resume contains relevant core content."}
	defaultWeaknesses   = []string{"Visual hierarchy is not consistently clear."}
)

const (
	defaultWhitespaceFeedback = "Use slightly more whitespace between major sections for easier scanning."
	defaultAlignmentFeedback  = "Keep text blocks consistently left-aligned for professional readability."
	defaultHierarchyFeedback  = "Increase heading contrast and consistency to strengthen section hierarchy."
	defaultScanFeedback       = "Use shorter bullets and stronger lead verbs to improve six-second scanability."
	defaultFix                = "Improve section spacing and headers."
	defaultFixReason          = "Clear structure increases recruiter scan speed and confidence."
)

// clampedScore 与Score的区别：越界数值夹到[0,100]而不是判为非法，
// 解析彻底失败时回退到50。结构评审宁可给个保守分也不中断流程。
func clampedScore(value interface{}) int {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 50
		}
		return clampInt(int(math.Round(v)))
	case int:
		return clampInt(v)
	case string:
		match := scoreDigitRE.FindStringSubmatch(collapseSpace(v))
		if match == nil {
			return 50
		}
		parsed, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 50
		}
		return clampInt(int(math.Round(parsed)))
	default:
		return 50
	}
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// stringListOr 与stringList一致，但结果为空时整体替换为兜底列表
func stringListOr(value interface{}, fallback []string) []string {
	out := stringList(value)
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

// Visual 把解析出的动态JSON归一化为完整的VisualAnalysis。
// 总分缺失时取三个分项的均值；修复建议截断到8条，
// 空列表注入一条合成建议以保证至少有一条可执行反馈。
func Visual(value map[string]interface{}) types.VisualAnalysis {
	visualScore := clampedScore(value["visualScore"])
	structureScore := clampedScore(value["structureScore"])
	readabilityScore := clampedScore(value["readabilityScore"])

	var overallScore int
	if _, present := value["overallScore"]; present {
		overallScore = clampedScore(value["overallScore"])
	} else {
		overallScore = int(math.Round(float64(visualScore+structureScore+readabilityScore) / 3))
	}

	layoutFeedback := asObject(value["layoutFeedback"])

	var topFixes []types.TopFix
	if rawFixes, isList := value["topFixes"].([]interface{}); isList {
		for _, rawFix := range rawFixes {
			fix, isObj := rawFix.(map[string]interface{})
			if !isObj {
				continue
			}
			topFixes = append(topFixes, types.TopFix{
				Priority: priority(fix["priority"]),
				Fix:      requiredText(fix["fix"], defaultFix),
				Reason:   requiredText(fix["reason"], defaultFixReason),
			})
			if len(topFixes) == maxTopFixes {
				break
			}
		}
	}
	if len(topFixes) == 0 {
		topFixes = []types.TopFix{
			{
				Priority: "high",
				Fix:      "Create stronger section hierarchy with consistent heading style.",
				Reason:   "Recruiters scan resumes quickly and rely on clear visual structure.",
			},
		}
	}

	return types.VisualAnalysis{
		VisualScore:      visualScore,
		StructureScore:   structureScore,
		ReadabilityScore: readabilityScore,
		OverallScore:     overallScore,
		VisualIssues:     stringListOr(value["visualIssues"], defaultVisualIssues),
		Strengths:        stringListOr(value["strengths"], defaultStrengths),
		Weaknesses:       stringListOr(value["weaknesses"], defaultWeaknesses),
		LayoutFeedback: types.LayoutFeedback{
			Whitespace:  requiredText(layoutFeedback["whitespace"], defaultWhitespaceFeedback),
			Alignment:   requiredText(layoutFeedback["alignment"], defaultAlignmentFeedback),
			Hierarchy:   requiredText(layoutFeedback["hierarchy"], defaultHierarchyFeedback),
			Scanability: requiredText(layoutFeedback["scanability"], defaultScanFeedback),
		},
		TopFixes: topFixes,
	}
}
