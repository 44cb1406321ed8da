package convert

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// TextExtractor 从PDF字节流中提取文本层
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// PdftotextExtractor 调用poppler的pdftotext工具做保留版式的文本提取
type PdftotextExtractor struct {
	binPath string
	timeout time.Duration
	logger  *log.Logger
}

// PdftotextOption 配置PdftotextExtractor的函数选项
type PdftotextOption func(*PdftotextExtractor)

// WithPdftotextTimeout 设置单次调用的超时时间
func WithPdftotextTimeout(timeout time.Duration) PdftotextOption {
	return func(e *PdftotextExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithPdftotextLogger 设置自定义日志记录器
func WithPdftotextLogger(logger *log.Logger) PdftotextOption {
	return func(e *PdftotextExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewPdftotextExtractor 创建pdftotext提取器
// binPath为空时默认在PATH中查找"pdftotext"。
func NewPdftotextExtractor(binPath string, opts ...PdftotextOption) *PdftotextExtractor {
	if binPath == "" {
		binPath = "pdftotext"
	}
	e := &PdftotextExtractor{
		binPath: binPath,
		timeout: 20 * time.Second,
		logger:  log.New(os.Stderr, "[Pdftotext] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractText 将PDF字节写入临时目录，调用pdftotext -layout提取文本
// 临时目录在所有退出路径上都会被删除。
func (e *PdftotextExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	if _, err := exec.LookPath(e.binPath); err != nil {
		return "", NewNotInstalledError("pdftotext", err.Error())
	}

	tmpDir, err := os.MkdirTemp("", "pdftotext-*")
	if err != nil {
		return "", NewExecFailedError("pdftotext", "创建临时目录失败: "+err.Error())
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input.pdf")
	outputPath := filepath.Join(tmpDir, "output.txt")
	if err := os.WriteFile(inputPath, pdfBytes, 0600); err != nil {
		return "", NewExecFailedError("pdftotext", "写入临时文件失败: "+err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// -layout 保留原始版式，对多栏简历的列顺序更友好
	cmd := exec.CommandContext(execCtx, e.binPath, "-layout", inputPath, outputPath)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		e.logger.Printf("pdftotext执行失败: %v, stderr: %s", err, truncateForLog(stderr.String()))
		return "", NewExecFailedError("pdftotext", truncateForLog(stderr.String()))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return "", NewExecFailedError("pdftotext", "读取输出文件失败: "+err.Error())
	}
	return string(data), nil
}

// truncateForLog 限制写入日志的stderr长度
func truncateForLog(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
