package extract

import (
	"regexp"
	"strings"
)

const (
	// maxNormalizedChars 归一化文本的长度上限，约束下游提示词的规模
	maxNormalizedChars = 12000

	// 可读性判定的采样长度与最低可打印字符占比
	readabilitySample = 2000
	readabilityRatio  = 0.75

	// "充分"阈值：达到其一即可信地送入分析
	sufficientMinChars  = 80
	sufficientMinTokens = 16
	sufficientMinAlpha  = 60

	// "部分"阈值：较弱的兜底标准，命中时结果标记为partial
	partialMinChars  = 60
	partialMinTokens = 12
	partialMinAlpha  = 45
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Normalize 归一化提取出的文本：去除NUL、折叠空白、截断到上限
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\x00", "")
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > maxNormalizedChars {
		text = text[:maxNormalizedChars]
	}
	return text
}

// IsLikelyReadable 判断解码出的文本是否像正常文字而非二进制乱码
// 对前2000个字符采样，要求可打印字符（ASCII可打印、常见空白、
// 扩展可打印区）占比不低于75%。
func IsLikelyReadable(text string) bool {
	if text == "" {
		return false
	}
	sample := text
	if len(sample) > readabilitySample {
		sample = sample[:readabilitySample]
	}
	if len(sample) == 0 {
		return false
	}

	printable := 0
	total := 0
	for _, r := range sample {
		total++
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			printable++
		case r >= 0x20 && r <= 0x7e:
			printable++
		case r >= 0xa0: // 扩展可打印区（含非ASCII文字）
			printable++
		}
	}
	if total == 0 {
		return false
	}
	return float64(printable)/float64(total) >= readabilityRatio
}

// HasSufficientSignal 判断归一化文本是否达到"充分"阈值
func HasSufficientSignal(text string) bool {
	return meetsThresholds(text, sufficientMinChars, sufficientMinTokens, sufficientMinAlpha)
}

// HasPartialSignal 判断归一化文本是否达到较弱的"部分"阈值
// 充分阈值严格强于部分阈值：满足充分必然满足部分。
func HasPartialSignal(text string) bool {
	return meetsThresholds(text, partialMinChars, partialMinTokens, partialMinAlpha)
}

func meetsThresholds(text string, minChars, minTokens, minAlpha int) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if len(trimmed) >= minChars {
		return true
	}
	if len(strings.Fields(trimmed)) >= minTokens {
		return true
	}
	return countAlpha(trimmed) >= minAlpha
}

// countAlpha 统计字母字符数
func countAlpha(text string) int {
	count := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			count++
		}
	}
	return count
}
