package extract

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"github.com/k-surya-teja/skillbias/internal/types"
)

// EinoPDFStrategy 使用Eino PDF Parser的库级提取策略
// 作为外部pdftotext工具失败或产出不可读文本时的第一级回退。
type EinoPDFStrategy struct {
	parser *pdf.PDFParser
	logger *log.Logger
}

// EinoPDFOption 配置EinoPDFStrategy的函数选项
type EinoPDFOption func(*EinoPDFStrategy)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(s *EinoPDFStrategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewEinoPDFStrategy 初始化Eino PDF提取策略
// ToPages为false：需要整个文档的连续文本而非按页分割
func NewEinoPDFStrategy(ctx context.Context, options ...EinoPDFOption) (*EinoPDFStrategy, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF解析器失败: %w", err)
	}

	s := &EinoPDFStrategy{
		parser: p,
		logger: log.New(os.Stderr, "[EinoPDF] ", log.LstdFlags),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Method 返回该策略对应的提取方法标识
func (s *EinoPDFStrategy) Method() types.ExtractionMethod {
	return types.MethodFallbackParser
}

// Extract 从PDF字节流提取全文
func (s *EinoPDFStrategy) Extract(ctx context.Context, pdfBytes []byte) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := s.parser.Parse(ctx, bytes.NewReader(pdfBytes),
		einoParser.WithURI("upload.pdf"),
		einoParser.WithExtraMeta(map[string]interface{}{
			"extraction_time": time.Now().Format(time.RFC3339),
		}),
	)
	duration := time.Since(startTime)
	if err != nil {
		s.logger.Printf("Eino PDF提取失败: %v (用时 %.2f秒)", err, duration.Seconds())
		return "", fmt.Errorf("eino PDF解析失败: %w", err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF解析无结果")
	}

	var full bytes.Buffer
	for i, doc := range docs {
		full.WriteString(doc.Content)
		if i < len(docs)-1 {
			full.WriteString("\n\n")
		}
	}
	s.logger.Printf("Eino PDF提取完成: %d 个字符 (用时 %.2f秒)", full.Len(), duration.Seconds())
	return full.String(), nil
}
