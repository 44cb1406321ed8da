// Package normalize 负责把模型的原始文本输出转成结构化分析结果。
// 模型输出不可信：可能带Markdown围栏、前后缀说明文字、未转义引号
// 或非法UTF-8字节。本包的解析链路逐级放宽，解析彻底失败时由
// FallbackFromText 生成离线兜底结果。
package normalize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrNoJSONObject 表示原始输出里找不到任何可解析的JSON对象
var ErrNoJSONObject = errors.New("模型输出中未找到可解析的JSON对象")

var (
	fenceOpenRE  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceCloseRE = regexp.MustCompile("\\s*```\\s*$")
)

// ParseObject 从模型原始输出中解析出一个JSON对象。
// 解析链路：
//  1. 清理BOM与非法UTF-8后直接反序列化；
//  2. 剥掉Markdown代码围栏再试；
//  3. 按花括号配平截取第一个完整对象再试；
//  4. 对截取结果做引号修复后最后再试。
func ParseObject(raw string) (map[string]interface{}, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
	if !utf8.ValidString(cleaned) {
		cleaned = strings.ToValidUTF8(cleaned, "")
	}
	if cleaned == "" {
		return nil, ErrNoJSONObject
	}

	if obj, err := unmarshalObject(cleaned); err == nil {
		return obj, nil
	}

	unfenced := stripCodeFence(cleaned)
	if unfenced != cleaned {
		if obj, err := unmarshalObject(unfenced); err == nil {
			return obj, nil
		}
	}

	extracted := extractBalancedObject(unfenced)
	if extracted == "" {
		return nil, ErrNoJSONObject
	}
	if obj, err := unmarshalObject(extracted); err == nil {
		return obj, nil
	}

	// 最后一搏：修复字符串字面量内部未转义的引号
	if obj, err := unmarshalObject(repairQuotes(extracted)); err == nil {
		return obj, nil
	}
	return nil, ErrNoJSONObject
}

func unmarshalObject(s string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNoJSONObject
	}
	return obj, nil
}

// stripCodeFence 去掉```json ... ```形式的Markdown围栏
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = fenceOpenRE.ReplaceAllString(trimmed, "")
	trimmed = fenceCloseRE.ReplaceAllString(trimmed, "")
	return strings.TrimSpace(trimmed)
}

// extractBalancedObject 从文本中截取第一个花括号配平的完整对象。
// 字符串字面量内部的花括号不参与配平计数。
func extractBalancedObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inStr {
				escaped = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				level++
			}
		case '}':
			if !inStr {
				level--
				if level == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	// 未配平时退而截到最后一个右括号
	end := strings.LastIndex(text, "}")
	if end > start {
		return text[start : end+1]
	}
	return ""
}

// repairQuotes 将位于字符串字面量内部但并非真正结束的双引号改写为\"。
// 通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该引号是否为
// 字符串的结束；反斜杠转义按常规处理。
func repairQuotes(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
