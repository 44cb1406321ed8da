package extract

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-surya-teja/skillbias/internal/types"
)

// stubStrategy 测试用的固定产出策略
type stubStrategy struct {
	method types.ExtractionMethod
	text   string
	err    error
	calls  int
}

func (s *stubStrategy) Method() types.ExtractionMethod {
	return s.method
}

func (s *stubStrategy) Extract(ctx context.Context, pdfBytes []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

func quietCascadeLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// TestCascadeStopsAtFirstSufficientStrategy 首个充分产出应短路后续策略
func TestCascadeStopsAtFirstSufficientStrategy(t *testing.T) {
	sufficient := strings.Repeat("Senior software engineer with cloud experience. ", 5)
	first := &stubStrategy{method: types.MethodPrimaryTool, text: sufficient}
	second := &stubStrategy{method: types.MethodFallbackParser, text: "should not run"}

	cascade := NewCascade([]Strategy{first, second}, WithCascadeLogger(quietCascadeLogger()))
	result := cascade.Run(context.Background(), []byte("%PDF-"))

	require.NotNil(t, result)
	assert.Equal(t, types.MethodPrimaryTool, result.Method, "应采用首个充分策略")
	assert.False(t, result.Partial, "充分结果不应标记为partial")
	assert.Equal(t, Normalize(sufficient), result.Text, "产出文本应是归一化后的形态")
	assert.Equal(t, 0, second.calls, "后续策略不应被执行")
}

// TestCascadeFallsThroughFailures 策略失败只跳过，不中断级联
func TestCascadeFallsThroughFailures(t *testing.T) {
	sufficient := strings.Repeat("Work experience education skills projects summary. ", 4)
	broken := &stubStrategy{method: types.MethodPrimaryTool, err: errors.New("二进制缺失")}
	unreadable := &stubStrategy{method: types.MethodFallbackParser, text: strings.Repeat("\x01\x02\x03\x04a", 100)}
	working := &stubStrategy{method: types.MethodFallbackRenderer, text: sufficient}

	cascade := NewCascade([]Strategy{broken, unreadable, working}, WithCascadeLogger(quietCascadeLogger()))
	result := cascade.Run(context.Background(), []byte("%PDF-"))

	assert.Equal(t, types.MethodFallbackRenderer, result.Method, "应落到最后一个可用策略")
	assert.Equal(t, 0, result.MethodChars[types.MethodPrimaryTool], "失败策略的字符数应记为0")
	assert.Equal(t, 1, broken.calls, "失败策略也应被尝试过")
}

// TestCascadeUsesPartialResult 无充分产出时采用首个部分产出
func TestCascadeUsesPartialResult(t *testing.T) {
	// 长度落在部分阈值与充分阈值之间的数字串
	partialText := strings.Repeat("1234567890", 6) + "abcde"
	partial := &stubStrategy{method: types.MethodFallbackParser, text: partialText}

	cascade := NewCascade([]Strategy{partial}, WithCascadeLogger(quietCascadeLogger()))
	result := cascade.Run(context.Background(), []byte("%PDF-"))

	assert.True(t, result.Partial, "应标记为部分结果")
	assert.Equal(t, types.MethodFallbackParser, result.Method)
	assert.Equal(t, partialText, result.Text)
}

// TestCascadeKeepsBestEffortText 全部失败时保留最长可读候选
func TestCascadeKeepsBestEffortText(t *testing.T) {
	shortText := &stubStrategy{method: types.MethodPrimaryTool, text: "tiny"}
	longerText := &stubStrategy{method: types.MethodFallbackParser, text: "slightly longer"}

	cascade := NewCascade([]Strategy{shortText, longerText}, WithCascadeLogger(quietCascadeLogger()))
	result := cascade.Run(context.Background(), []byte("%PDF-"))

	assert.Equal(t, types.MethodNone, result.Method, "无策略达标时方法应为none")
	assert.Empty(t, result.Text, "无达标产出时Text应为空")
	assert.Equal(t, "slightly longer", result.BestEffortText, "应保留最长的可读候选")
}
