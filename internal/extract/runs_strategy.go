package extract

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/k-surya-teja/skillbias/internal/types"
)

// PageRunsStrategy 逐页读取定位文本片段并拼接的提取策略
// 最后一级回退：当文本层工具与库级解析都失败时，按渲染顺序
// 把每页的文本片段按行拼起来，尽量抢救出可分析的内容。
type PageRunsStrategy struct {
	logger *log.Logger
}

// PageRunsOption 配置PageRunsStrategy的函数选项
type PageRunsOption func(*PageRunsStrategy)

// WithPageRunsLogger 配置自定义日志记录器
func WithPageRunsLogger(logger *log.Logger) PageRunsOption {
	return func(s *PageRunsStrategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPageRunsStrategy 创建逐页文本片段提取策略
func NewPageRunsStrategy(options ...PageRunsOption) *PageRunsStrategy {
	s := &PageRunsStrategy{
		logger: log.New(os.Stderr, "[PageRuns] ", log.LstdFlags),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Method 返回该策略对应的提取方法标识
func (s *PageRunsStrategy) Method() types.ExtractionMethod {
	return types.MethodFallbackRenderer
}

// Extract 从PDF字节流中按页收集文本行
func (s *PageRunsStrategy) Extract(ctx context.Context, pdfBytes []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("打开PDF失败: %w", err)
	}

	totalPages := reader.NumPage()
	var sb strings.Builder
	extractedPages := 0

	for i := 1; i <= totalPages; i++ {
		// 大文档上尊重调用方的取消
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			// 单页失败不终止整份文档的提取
			s.logger.Printf("第%d页文本行读取失败: %v", i, rowErr)
			continue
		}

		pageHasText := false
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			text := strings.TrimSpace(line.String())
			if text == "" {
				continue
			}
			sb.WriteString(text)
			sb.WriteString("\n")
			pageHasText = true
		}
		if pageHasText {
			extractedPages++
			sb.WriteString("\n")
		}
	}

	if extractedPages == 0 {
		return "", fmt.Errorf("所有%d页均未提取到文本", totalPages)
	}
	s.logger.Printf("逐页提取完成: %d/%d页有文本, 共%d字符", extractedPages, totalPages, sb.Len())
	return sb.String(), nil
}
