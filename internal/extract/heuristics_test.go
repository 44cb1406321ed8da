package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalize 验证归一化：去NUL、折叠空白、截断
func TestNormalize(t *testing.T) {
	assert.Equal(t, "", Normalize(""), "空输入应返回空串")

	assert.Equal(t, "John Doe Software Engineer",
		Normalize("John\x00 Doe\n\n  Software\tEngineer  "),
		"NUL与连续空白应被清理")

	long := strings.Repeat("a", maxNormalizedChars+500)
	assert.Len(t, Normalize(long), maxNormalizedChars, "超长文本应被截断到上限")
}

// TestIsLikelyReadable 验证可读性判定能区分正常文字与二进制乱码
func TestIsLikelyReadable(t *testing.T) {
	assert.False(t, IsLikelyReadable(""), "空文本不可读")

	readable := strings.Repeat("Software engineer with experience in Go. ", 10)
	assert.True(t, IsLikelyReadable(readable), "正常英文文本应判为可读")

	assert.True(t, IsLikelyReadable("工作经历：五年后端开发经验，负责支付系统"), "非ASCII文字也应判为可读")

	garbage := strings.Repeat("\x01\x02\x03\x04a", 100)
	assert.False(t, IsLikelyReadable(garbage), "控制字符占比过高应判为不可读")
}

// TestSignalThresholds 验证充分/部分阈值的层级关系
func TestSignalThresholds(t *testing.T) {
	assert.False(t, HasSufficientSignal(""), "空文本不满足任何阈值")
	assert.False(t, HasPartialSignal("   "), "纯空白不满足任何阈值")

	sufficient := strings.Repeat("experienced engineer ", 10)
	assert.True(t, HasSufficientSignal(sufficient), "长文本应满足充分阈值")
	assert.True(t, HasPartialSignal(sufficient), "满足充分阈值必然满足部分阈值")

	// 65个字符的单一词：长度达到部分阈值(60)但不到充分阈值(80)，
	// 词数与字母数均不足以触发充分阈值的其他分支
	partial := strings.Repeat("1234567890", 6) + "abcde"
	assert.GreaterOrEqual(t, len(partial), partialMinChars, "测试样本长度应达到部分阈值")
	assert.Less(t, len(partial), sufficientMinChars, "测试样本长度应低于充分阈值")
	assert.True(t, HasPartialSignal(partial), "中间长度文本应满足部分阈值")
	assert.False(t, HasSufficientSignal(partial), "中间长度文本不应满足充分阈值")

	short := "hi"
	assert.False(t, HasSufficientSignal(short), "过短文本不满足充分阈值")
	assert.False(t, HasPartialSignal(short), "过短文本不满足部分阈值")
}
