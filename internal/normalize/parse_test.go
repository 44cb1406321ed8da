package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseObjectDirect 干净的JSON直接解析
func TestParseObjectDirect(t *testing.T) {
	obj, err := ParseObject(`{"overallScore": 80, "overallSummary": "ok"}`)
	require.NoError(t, err)
	assert.Equal(t, float64(80), obj["overallScore"])
}

// TestParseObjectStripsCodeFence 剥离Markdown代码围栏
func TestParseObjectStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"overallScore\": 75}\n```"
	obj, err := ParseObject(raw)
	require.NoError(t, err, "带围栏的JSON应能解析")
	assert.Equal(t, float64(75), obj["overallScore"])

	raw = "```\n{\"ok\": true}\n```"
	obj, err = ParseObject(raw)
	require.NoError(t, err, "无语言标注的围栏也应剥离")
	assert.Equal(t, true, obj["ok"])
}

// TestParseObjectExtractsEmbeddedObject 从前后缀说明文字中截取对象
func TestParseObjectExtractsEmbeddedObject(t *testing.T) {
	raw := `Here is the analysis you requested:
{"overallScore": 68, "nested": {"key": "value with {braces} inside"}}
Let me know if you need anything else.`
	obj, err := ParseObject(raw)
	require.NoError(t, err, "内嵌在说明文字中的对象应被截取")
	assert.Equal(t, float64(68), obj["overallScore"])

	nested, ok := obj["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value with {braces} inside", nested["key"], "字符串内的花括号不应干扰配平")
}

// TestParseObjectRepairsQuotes 修复字符串内部未转义的引号
func TestParseObjectRepairsQuotes(t *testing.T) {
	raw := `{"summary": "used the "best" approach", "score": 70}`
	obj, err := ParseObject(raw)
	require.NoError(t, err, "未转义引号应被修复后解析")
	assert.Equal(t, `used the "best" approach`, obj["summary"])
	assert.Equal(t, float64(70), obj["score"])
}

// TestParseObjectHandlesInvalidUTF8 非法UTF-8字节被清理后解析
func TestParseObjectHandlesInvalidUTF8(t *testing.T) {
	raw := "{\"ok\": true}\xff"
	obj, err := ParseObject(raw)
	require.NoError(t, err, "非法UTF-8字节应被清理")
	assert.Equal(t, true, obj["ok"])
}

// TestParseObjectFailures 彻底不可解析时返回哨兵错误
func TestParseObjectFailures(t *testing.T) {
	for _, raw := range []string{"", "   ", "no json here at all", "[1, 2, 3]", "null"} {
		_, err := ParseObject(raw)
		assert.ErrorIs(t, err, ErrNoJSONObject, "输入 %q 应返回ErrNoJSONObject", raw)
	}
}
