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

// OfficeConverter 将办公文档(DOC/DOCX)转换为PDF
type OfficeConverter interface {
	ConvertToPDF(ctx context.Context, docBytes []byte, ext string) ([]byte, error)
}

// SofficeConverter 调用LibreOffice的soffice做无头转换
type SofficeConverter struct {
	binPath string
	timeout time.Duration
	logger  *log.Logger
}

// SofficeOption 配置SofficeConverter的函数选项
type SofficeOption func(*SofficeConverter)

// WithSofficeTimeout 设置单次转换的超时时间
func WithSofficeTimeout(timeout time.Duration) SofficeOption {
	return func(c *SofficeConverter) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithSofficeLogger 设置自定义日志记录器
func WithSofficeLogger(logger *log.Logger) SofficeOption {
	return func(c *SofficeConverter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewSofficeConverter 创建soffice转换器
func NewSofficeConverter(binPath string, opts ...SofficeOption) *SofficeConverter {
	if binPath == "" {
		binPath = "soffice"
	}
	c := &SofficeConverter{
		binPath: binPath,
		timeout: 20 * time.Second,
		logger:  log.New(os.Stderr, "[Soffice] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertToPDF 将DOC/DOCX字节流转换为PDF字节流
// soffice未安装与转换失败返回不同的错误基类，上层据此给出不同提示。
// 临时目录在所有退出路径上都会被删除。
func (c *SofficeConverter) ConvertToPDF(ctx context.Context, docBytes []byte, ext string) ([]byte, error) {
	if _, err := exec.LookPath(c.binPath); err != nil {
		return nil, NewNotInstalledError("soffice", err.Error())
	}

	if ext == "" {
		ext = ".docx"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	tmpDir, err := os.MkdirTemp("", "soffice-*")
	if err != nil {
		return nil, NewExecFailedError("soffice", "创建临时目录失败: "+err.Error())
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input"+ext)
	if err := os.WriteFile(inputPath, docBytes, 0600); err != nil {
		return nil, NewExecFailedError("soffice", "写入临时文件失败: "+err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, c.binPath,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", tmpDir,
		inputPath)
	// soffice需要可写的HOME，容器中可能缺失
	cmd.Env = append(os.Environ(), "HOME="+tmpDir)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		c.logger.Printf("soffice转换失败: %v, stderr: %s", err, truncateForLog(stderr.String()))
		return nil, NewExecFailedError("soffice", truncateForLog(stderr.String()))
	}

	outputPath := filepath.Join(tmpDir, "input.pdf")
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, NewExecFailedError("soffice", "转换产物缺失: "+err.Error())
	}
	if len(data) == 0 {
		return nil, NewExecFailedError("soffice", "转换产物为空")
	}
	return data, nil
}
