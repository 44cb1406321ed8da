package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/k-surya-teja/skillbias/internal/prompt"
)

// MockProvider 确定性的本地模拟提供方
// 用于开发环境与测试：根据提示词中的信号拼出稳定的JSON输出，
// 不做任何网络调用。
type MockProvider struct{}

// NewMockProvider 创建模拟提供方
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name 实现Provider接口
func (m *MockProvider) Name() string {
	return "local-mock"
}

// Complete 实现Provider接口
// 根据system提示词判断请求类型，返回对应形态的JSON。
func (m *MockProvider) Complete(ctx context.Context, p prompt.Prompt, opts CompletionOptions) (string, error) {
	if strings.Contains(p.System, "resume design reviewer") {
		return m.visualCompletion(p)
	}
	return m.analysisCompletion(p)
}

// visualCompletion 结构评审的模拟输出，分数依据布局信号微调
func (m *MockProvider) visualCompletion(p prompt.Prompt) (string, error) {
	userText := strings.ToLower(p.User)
	hasTwoColumnSignal := strings.Contains(userText, "estimatedcolumns: 2")
	hasWeakAlignmentSignal := strings.Contains(userText, "leftalignmentvariance: 100") ||
		strings.Contains(userText, "leftalignmentvariance: 200")
	hasFewSections := strings.Contains(userText, "sectionheaders: none")

	structureScore := 80
	if hasTwoColumnSignal {
		structureScore = 72
	}
	visualScore := 78
	if hasWeakAlignmentSignal {
		visualScore = 66
	}
	readabilityScore := 82
	if hasFewSections {
		readabilityScore = 68
	}
	overallScore := (visualScore + structureScore + readabilityScore) / 3

	payload := map[string]interface{}{
		"visualScore":      visualScore,
		"structureScore":   structureScore,
		"readabilityScore": readabilityScore,
		"overallScore":     overallScore,
		"visualIssues": []string{
			"Heading hierarchy can be more consistent across sections.",
			"Whitespace between major sections can be improved for scanning speed.",
		},
		"strengths": []string{
			"Core resume content is present and mostly organized.",
			"Bullet usage supports quick information retrieval.",
		},
		"weaknesses": []string{
			"Some sections compete visually with similar emphasis.",
			"Alignment and spacing rhythm are not fully consistent.",
		},
		"layoutFeedback": map[string]string{
			"whitespace":  "Increase spacing before each major section heading for clearer segmentation.",
			"alignment":   "Standardize left alignment across bullets and date lines to reduce visual noise.",
			"hierarchy":   "Use one heading style for section titles and one style for role titles.",
			"scanability": "Shorten dense bullets and front-load impact metrics for six-second scans.",
		},
		"topFixes": []map[string]string{
			{
				"priority": "high",
				"fix":      "Enforce one consistent section heading style throughout the resume.",
				"reason":   "Consistent hierarchy helps recruiters locate relevant sections immediately.",
			},
			{
				"priority": "medium",
				"fix":      "Add 6-10px additional vertical spacing before section headings.",
				"reason":   "Improved whitespace increases readability and perceived professionalism.",
			},
		},
	}
	return marshalMock(payload)
}

// analysisCompletion 文本分析的模拟输出，分数依据章节信号微调
func (m *MockProvider) analysisCompletion(p prompt.Prompt) (string, error) {
	userText := strings.ToLower(p.User)
	score := 60
	var matchedKeywords []string
	if strings.Contains(userText, "experience") {
		score += 8
		matchedKeywords = append(matchedKeywords, "experience")
	}
	if strings.Contains(userText, "education") {
		score += 6
		matchedKeywords = append(matchedKeywords, "education")
	}
	if strings.Contains(userText, "skills") {
		score += 8
		matchedKeywords = append(matchedKeywords, "skills")
	}

	payload := map[string]interface{}{
		"overallScore":   score,
		"overallSummary": "Resume shows a workable structure with room for stronger quantified impact and keyword targeting.",
		"skillMatch": map[string]interface{}{
			"matchedSkills": []string{"communication", "teamwork"},
			"missingSkills": []string{"role-specific technical keywords", "quantified achievements"},
		},
		"keywordCoverage": map[string]interface{}{
			"matchedKeywords": matchedKeywords,
			"missingKeywords": []string{"impact metrics", "action verbs"},
		},
		"sectionFeedback": map[string]string{
			"summary":    "Add a concise professional summary tailored to the target role.",
			"experience": "Lead each bullet with an action verb and a measurable outcome.",
			"skills":     "Group tools and technologies by category to improve scanability.",
			"education":  "Keep education concise and highlight relevant credentials.",
		},
		"actionItems": []map[string]string{
			{
				"priority": "high",
				"title":    "Add measurable achievements",
				"details":  "Rewrite top experience bullets with concrete metrics.",
			},
			{
				"priority": "medium",
				"title":    "Improve keyword targeting",
				"details":  "Align resume keywords to the target role.",
			},
		},
	}
	return marshalMock(payload)
}

func marshalMock(payload map[string]interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化模拟输出失败: %w", err)
	}
	return string(data), nil
}

var _ Provider = (*MockProvider)(nil)
