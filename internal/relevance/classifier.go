package relevance

import (
	"regexp"
	"strings"
)

// 正负向信号词表。阈值与词表都是手工调校的启发式，
// 通过Classifier的配置项允许部署侧微调。
var (
	positiveFilenameSignals = []string{
		"resume",
		"cv",
		"curriculum-vitae",
		"curriculum vitae",
		"profile",
	}

	positiveTextSignals = []string{
		"experience",
		"work experience",
		"professional experience",
		"employment history",
		"employment",
		"education",
		"skills",
		"projects",
		"summary",
		"professional summary",
		"objective",
		"work history",
		"certification",
		"certifications",
		"achievements",
		"internship",
		"responsibilities",
		"references",
		"bachelor",
		"master",
		"university",
		"college",
		"linkedin.com",
		"linkedin",
		"portfolio",
	}

	negativeSignals = []string{
		"invoice",
		"receipt",
		"purchase order",
		"brochure",
		"catalog",
		"menu",
		"minutes of meeting",
		"meeting notes",
		"bank statement",
		"profit and loss",
		"balance sheet",
		"research paper",
		"whitepaper",
	}

	emailRE      = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	phoneRE      = regexp.MustCompile(`(\+\d{1,3}[\s-]?)?(\(?\d{3}\)?[\s-]?\d{3}[\s-]?\d{4})`)
	dateRangeRE  = regexp.MustCompile(`(?i)\b\d{4}\s*[-–]\s*(present|\d{4})\b`)
	experienceRE = regexp.MustCompile(`(?i)\b(experience|employment)\b`)
	educationRE  = regexp.MustCompile(`(?i)\b(education|bachelor|master|university|college)\b`)

	whitespaceRE = regexp.MustCompile(`\s+`)
)

// 打分权重
const (
	filenameWeight = 3
	textWeight     = 2
	negativeWeight = 3
)

// Classifier 简历相关性分类器
// IsResume 与 IsClearlyNotResume 是两个独立的启发式判定，
// 并非互补：二者之间存在"不确定"的中间带。非对称的阈值
// 避免误杀内容稀疏但合法的简历，同时拦住明显传错的文件。
type Classifier struct {
	acceptScore int // 判定为简历的最低得分
	rejectScore int // 判定为明显非简历的得分上限
}

// Option 配置Classifier的函数选项
type Option func(*Classifier)

// WithAcceptScore 覆盖判定为简历的最低得分
func WithAcceptScore(score int) Option {
	return func(c *Classifier) {
		c.acceptScore = score
	}
}

// WithRejectScore 覆盖判定为明显非简历的得分上限
func WithRejectScore(score int) Option {
	return func(c *Classifier) {
		c.rejectScore = score
	}
}

// NewClassifier 创建相关性分类器，默认阈值：得分≥3判为简历，
// 负向命中≥2或得分≤-2判为明显非简历
func NewClassifier(options ...Option) *Classifier {
	c := &Classifier{
		acceptScore: 3,
		rejectScore: -2,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// signals 一次打分的中间结果
type signals struct {
	context         string
	score           int
	negativeMatches int
}

func normalizeInput(value string) string {
	value = strings.ToLower(value)
	value = whitespaceRE.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

func countMatches(haystack string, needles []string) int {
	total := 0
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			total++
		}
	}
	return total
}

// score 计算带符号的相关性得分
// 文件名关键词+3/个，正文关键词+2/个，邮箱/电话/经历日期区间/
// 教育关键词各+1，负向领域关键词-3/个。
func (c *Classifier) score(fileName, text string) signals {
	normalizedFileName := normalizeInput(fileName)
	normalizedText := normalizeInput(text)
	context := strings.TrimSpace(normalizedFileName + " " + normalizedText)

	s := signals{context: context}
	s.score += countMatches(normalizedFileName, positiveFilenameSignals) * filenameWeight
	s.score += countMatches(normalizedText, positiveTextSignals) * textWeight
	s.negativeMatches = countMatches(context, negativeSignals)

	if emailRE.MatchString(context) {
		s.score++
	}
	if phoneRE.MatchString(context) {
		s.score++
	}
	if dateRangeRE.MatchString(context) || experienceRE.MatchString(context) {
		s.score++
	}
	if educationRE.MatchString(context) {
		s.score++
	}
	s.score -= s.negativeMatches * negativeWeight
	return s
}

// IsResume 判断文件名与文本是否像一份简历
func (c *Classifier) IsResume(fileName, text string) bool {
	s := c.score(fileName, text)
	if s.context == "" {
		return false
	}
	return s.score >= c.acceptScore
}

// IsClearlyNotResume 判断是否可以确信这不是一份简历
// 空上下文视为明显非简历。
func (c *Classifier) IsClearlyNotResume(fileName, text string) bool {
	s := c.score(fileName, text)
	if s.context == "" {
		return true
	}
	return s.negativeMatches >= 2 || s.score <= c.rejectScore
}
