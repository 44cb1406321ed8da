package normalize

import (
	"strings"

	"github.com/k-surya-teja/skillbias/internal/types"
)

// FallbackFromText 在模型输出无法解析为JSON时，基于已提取的简历文本
// 生成一份确定性的离线分析。基线55分，检出经历/教育/技能章节分别加
// 10/8/10分，最终夹在[35,82]区间内。
func FallbackFromText(resumeText string) types.ResumeAnalysis {
	text := strings.ToLower(resumeText)
	hasExperience := strings.Contains(text, "experience")
	hasEducation := strings.Contains(text, "education")
	hasSkills := strings.Contains(text, "skills")

	score := 55
	if hasExperience {
		score += 10
	}
	if hasEducation {
		score += 8
	}
	if hasSkills {
		score += 10
	}
	if score < 35 {
		score = 35
	}
	if score > 82 {
		score = 82
	}

	matchedSkills := []string{}
	if hasSkills {
		matchedSkills = append(matchedSkills, "skills section present")
	}

	matchedKeywords := []string{}
	if hasExperience {
		matchedKeywords = append(matchedKeywords, "experience")
	}
	if hasEducation {
		matchedKeywords = append(matchedKeywords, "education")
	}

	return types.ResumeAnalysis{
		OverallScore:   score,
		OverallSummary: "Analysis generated using fallback mode because the model response format was unstable. Resume appears partially complete and can be improved for ATS clarity.",
		SkillMatch: types.SkillMatch{
			MatchedSkills: matchedSkills,
			MissingSkills: []string{
				"role-specific technical keywords",
				"quantified achievements",
				"industry-relevant tools",
			},
		},
		KeywordCoverage: types.KeywordCoverage{
			MatchedKeywords: matchedKeywords,
			MissingKeywords: []string{
				"impact metrics",
				"action verbs",
				"role alignment keywords",
			},
		},
		SectionFeedback: types.SectionFeedback{
			Summary:    "Add a concise professional summary tailored to the target job description.",
			Experience: "Use measurable outcomes in bullets and include stronger role-specific keywords.",
			Skills:     "Group tools and technologies by category to improve recruiter scanability.",
			Education:  "Keep education concise and emphasize relevant credentials or certifications.",
		},
		ActionItems: []types.ActionItem{
			{
				Priority: "high",
				Title:    "Add measurable achievements",
				Details:  "Rewrite top experience bullets with concrete metrics and business impact.",
			},
			{
				Priority: "medium",
				Title:    "Improve keyword targeting",
				Details:  "Align resume keywords to the target role and required skills from job descriptions.",
			},
			{
				Priority: "low",
				Title:    "Tighten formatting consistency",
				Details:  "Keep section naming and bullet style consistent for easier ATS and recruiter review.",
			},
		},
	}
}
