package extract

import (
	"context"
	"log"
	"os"

	"github.com/k-surya-teja/skillbias/internal/convert"
	"github.com/k-surya-teja/skillbias/internal/types"
)

// Strategy 一种文本提取策略
// Extract返回原始（未归一化）文本；失败只代表该策略无产出，
// 不会终止整个级联。
type Strategy interface {
	Method() types.ExtractionMethod
	Extract(ctx context.Context, pdfBytes []byte) (string, error)
}

// PrimaryToolStrategy 外部pdftotext工具策略，级联的首选
type PrimaryToolStrategy struct {
	extractor convert.TextExtractor
}

// NewPrimaryToolStrategy 包装一个外部文本提取器为级联策略
func NewPrimaryToolStrategy(extractor convert.TextExtractor) *PrimaryToolStrategy {
	return &PrimaryToolStrategy{extractor: extractor}
}

// Method 返回该策略对应的提取方法标识
func (s *PrimaryToolStrategy) Method() types.ExtractionMethod {
	return types.MethodPrimaryTool
}

// Extract 调用外部工具提取文本层
func (s *PrimaryToolStrategy) Extract(ctx context.Context, pdfBytes []byte) (string, error) {
	return s.extractor.ExtractText(ctx, pdfBytes)
}

// Cascade 按优先级尝试多种提取策略的级联
type Cascade struct {
	strategies []Strategy
	logger     *log.Logger
}

// CascadeOption 配置Cascade的函数选项
type CascadeOption func(*Cascade)

// WithCascadeLogger 配置自定义日志记录器
func WithCascadeLogger(logger *log.Logger) CascadeOption {
	return func(c *Cascade) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCascade 创建提取级联，strategies按优先级排列
func NewCascade(strategies []Strategy, options ...CascadeOption) *Cascade {
	c := &Cascade{
		strategies: strategies,
		logger:     log.New(os.Stderr, "[ExtractCascade] ", log.LstdFlags),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Run 依次执行各策略直到产出可读且充分的文本
// 对格式正确但不可读的文档不返回错误：所有策略都失败时返回
// Method=none，并带上见过的最长可读候选作为best-effort文本。
// 单个策略的任何失败（工具缺失、子进程报错、文件损坏）都只记录
// 诊断日志，不会中断级联。
func (c *Cascade) Run(ctx context.Context, pdfBytes []byte) *types.ExtractionResult {
	result := &types.ExtractionResult{
		Method:      types.MethodNone,
		MethodChars: make(map[types.ExtractionMethod]int),
	}

	var partialText string
	var partialMethod types.ExtractionMethod

	for _, strategy := range c.strategies {
		method := strategy.Method()

		raw, err := strategy.Extract(ctx, pdfBytes)
		if err != nil {
			c.logger.Printf("策略%s无产出: %v", method, err)
			result.MethodChars[method] = 0
			continue
		}

		normalized := Normalize(raw)
		result.MethodChars[method] = len(normalized)

		if !IsLikelyReadable(normalized) {
			c.logger.Printf("策略%s产出%d字符但可读性不足，丢弃", method, len(normalized))
			continue
		}

		// 最长的可读候选始终保留，供低置信度分析兜底
		if len(normalized) > len(result.BestEffortText) {
			result.BestEffortText = normalized
		}

		if HasSufficientSignal(normalized) {
			result.Text = normalized
			result.Method = method
			c.logger.Printf("策略%s命中充分阈值: %d字符", method, len(normalized))
			return result
		}

		// 记录首个达到部分阈值的候选，级联无充分结果时采用
		if partialText == "" && HasPartialSignal(normalized) {
			partialText = normalized
			partialMethod = method
		}
	}

	if partialText != "" {
		result.Text = partialText
		result.Method = partialMethod
		result.Partial = true
		c.logger.Printf("无充分结果，采用策略%s的部分结果: %d字符", partialMethod, len(partialText))
		return result
	}

	c.logger.Printf("所有策略均未达到阈值，best-effort文本%d字符", len(result.BestEffortText))
	return result
}
