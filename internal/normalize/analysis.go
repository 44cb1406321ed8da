package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/k-surya-teja/skillbias/internal/types"
)

const maxActionItems = 8

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	scoreDigitRE = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// 分析结果各字段的兜底文案。归一化承诺所有字段总是有值，
// 模型漏掉或写坏的字段用这些文案补齐。
const (
	defaultOverallSummary    = "Resume analysis generated. Review the recommendations below to improve ATS performance."
	defaultSummaryFeedback   = "Strengthen your professional summary with target role keywords and measurable value."
	defaultExperienceFeed    = "Quantify outcomes in each experience bullet using metrics and impact language."
	defaultSkillsFeedback    = "Align your skills section with job-specific technical and domain keywords."
	defaultEducationFeedback = "Keep education concise and highlight relevant coursework or certifications."
	defaultActionTitle       = "Improve resume impact"
	defaultActionDetails     = "Add measurable outcomes and role-specific keywords."
)

// collapseSpace 折叠连续空白并去掉首尾空白
func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// Score 把任意形态的分数值归一化为[0,100]的整数。
// 数值直接取整；字符串先去掉百分号、按斜杠切出分子（"87/100"、"85%"），
// 再退化为取第一段数字。解析不出合法分数时返回 ok=false。
func Score(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		if v >= 0 && v <= 100 {
			return int(math.Round(v)), true
		}
		return 0, false
	case int:
		if v >= 0 && v <= 100 {
			return v, true
		}
		return 0, false
	case string:
		normalized := collapseSpace(v)
		if normalized == "" {
			return 0, false
		}
		direct := strings.TrimSpace(strings.SplitN(strings.ReplaceAll(normalized, "%", ""), "/", 2)[0])
		if parsed, err := strconv.ParseFloat(direct, 64); err == nil && parsed >= 0 && parsed <= 100 {
			return int(math.Round(parsed)), true
		}
		match := scoreDigitRE.FindStringSubmatch(normalized)
		if match == nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(match[1], 64)
		if err != nil || parsed < 0 || parsed > 100 {
			return 0, false
		}
		return int(math.Round(parsed)), true
	default:
		return 0, false
	}
}

// requiredText 取字符串字段，缺失或空白时用兜底文案
func requiredText(value interface{}, fallback string) string {
	s, ok := value.(string)
	if !ok {
		return fallback
	}
	normalized := collapseSpace(s)
	if normalized == "" {
		return fallback
	}
	return normalized
}

// stringList 取字符串数组字段，过滤非字符串项与空串
func stringList(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, isStr := item.(string)
		if !isStr {
			continue
		}
		normalized := collapseSpace(s)
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

// priority 只认high/medium/low（大小写不敏感），其余一律medium
func priority(value interface{}) string {
	s, ok := value.(string)
	if !ok {
		return "medium"
	}
	switch strings.ToLower(collapseSpace(s)) {
	case "high":
		return "high"
	case "medium":
		return "medium"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

func asObject(value interface{}) map[string]interface{} {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return obj
}

// Analysis 把解析出的动态JSON归一化为完整的ResumeAnalysis。
// 归一化从不失败：总分解析不出时先从总结文字里捞数字，仍失败则取50；
// 建议条目截断到8条，空列表注入一条合成建议。
func Analysis(value map[string]interface{}) types.ResumeAnalysis {
	overallSummary := requiredText(value["overallSummary"], defaultOverallSummary)
	overallScore, ok := Score(value["overallScore"])
	if !ok {
		if fromSummary, summaryOK := Score(overallSummary); summaryOK {
			overallScore = fromSummary
		} else {
			overallScore = 50
		}
	}

	skillMatch := asObject(value["skillMatch"])
	keywordCoverage := asObject(value["keywordCoverage"])
	sectionFeedback := asObject(value["sectionFeedback"])

	var actionItems []types.ActionItem
	if rawItems, isList := value["actionItems"].([]interface{}); isList {
		for _, rawItem := range rawItems {
			item, isObj := rawItem.(map[string]interface{})
			if !isObj {
				continue
			}
			actionItems = append(actionItems, types.ActionItem{
				Priority: priority(item["priority"]),
				Title:    requiredText(item["title"], defaultActionTitle),
				Details:  requiredText(item["details"], defaultActionDetails),
			})
			if len(actionItems) == maxActionItems {
				break
			}
		}
	}
	if len(actionItems) == 0 {
		actionItems = []types.ActionItem{
			{
				Priority: "high",
				Title:    "Add measurable impact",
				Details:  "Rewrite top experience bullets with quantified outcomes and role keywords.",
			},
		}
	}

	return types.ResumeAnalysis{
		OverallScore:   overallScore,
		OverallSummary: overallSummary,
		SkillMatch: types.SkillMatch{
			MatchedSkills: stringList(skillMatch["matchedSkills"]),
			MissingSkills: stringList(skillMatch["missingSkills"]),
		},
		KeywordCoverage: types.KeywordCoverage{
			MatchedKeywords: stringList(keywordCoverage["matchedKeywords"]),
			MissingKeywords: stringList(keywordCoverage["missingKeywords"]),
		},
		SectionFeedback: types.SectionFeedback{
			Summary:    requiredText(sectionFeedback["summary"], defaultSummaryFeedback),
			Experience: requiredText(sectionFeedback["experience"], defaultExperienceFeed),
			Skills:     requiredText(sectionFeedback["skills"], defaultSkillsFeedback),
			Education:  requiredText(sectionFeedback["education"], defaultEducationFeedback),
		},
		ActionItems: actionItems,
	}
}
