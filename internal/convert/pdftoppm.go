package convert

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Rasterizer 将PDF页面渲染为PNG图片
type Rasterizer interface {
	RenderPages(ctx context.Context, pdfBytes []byte, maxPages int) ([][]byte, error)
}

// PdftoppmRasterizer 调用poppler的pdftoppm工具渲染页面图片
type PdftoppmRasterizer struct {
	binPath string
	dpi     int
	timeout time.Duration
	logger  *log.Logger
}

// PdftoppmOption 配置PdftoppmRasterizer的函数选项
type PdftoppmOption func(*PdftoppmRasterizer)

// WithRenderDPI 设置渲染DPI
func WithRenderDPI(dpi int) PdftoppmOption {
	return func(r *PdftoppmRasterizer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

// WithPdftoppmTimeout 设置单次调用的超时时间
func WithPdftoppmTimeout(timeout time.Duration) PdftoppmOption {
	return func(r *PdftoppmRasterizer) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithPdftoppmLogger 设置自定义日志记录器
func WithPdftoppmLogger(logger *log.Logger) PdftoppmOption {
	return func(r *PdftoppmRasterizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewPdftoppmRasterizer 创建pdftoppm渲染器
func NewPdftoppmRasterizer(binPath string, opts ...PdftoppmOption) *PdftoppmRasterizer {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	r := &PdftoppmRasterizer{
		binPath: binPath,
		dpi:     144,
		timeout: 20 * time.Second,
		logger:  log.New(os.Stderr, "[Pdftoppm] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderPages 渲染前maxPages页为PNG，按页码升序返回
// 临时目录在所有退出路径上都会被删除。
func (r *PdftoppmRasterizer) RenderPages(ctx context.Context, pdfBytes []byte, maxPages int) ([][]byte, error) {
	if _, err := exec.LookPath(r.binPath); err != nil {
		return nil, NewNotInstalledError("pdftoppm", err.Error())
	}
	if maxPages <= 0 {
		maxPages = 3
	}

	tmpDir, err := os.MkdirTemp("", "pdftoppm-*")
	if err != nil {
		return nil, NewExecFailedError("pdftoppm", "创建临时目录失败: "+err.Error())
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(inputPath, pdfBytes, 0600); err != nil {
		return nil, NewExecFailedError("pdftoppm", "写入临时文件失败: "+err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(execCtx, r.binPath,
		"-png",
		"-r", strconv.Itoa(r.dpi),
		"-f", "1",
		"-l", strconv.Itoa(maxPages),
		inputPath, outPrefix)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		r.logger.Printf("pdftoppm执行失败: %v, stderr: %s", err, truncateForLog(stderr.String()))
		return nil, NewExecFailedError("pdftoppm", truncateForLog(stderr.String()))
	}

	// pdftoppm输出形如 page-1.png / page-01.png，按页码数值排序
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, NewExecFailedError("pdftoppm", "读取输出目录失败: "+err.Error())
	}
	type pageFile struct {
		num  int
		path string
	}
	var pages []pageFile
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png")
		num, convErr := strconv.Atoi(numStr)
		if convErr != nil {
			continue
		}
		pages = append(pages, pageFile{num: num, path: filepath.Join(tmpDir, name)})
	}
	if len(pages) == 0 {
		return nil, NewExecFailedError("pdftoppm", "未生成任何页面图片")
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	images := make([][]byte, 0, len(pages))
	for _, p := range pages {
		data, readErr := os.ReadFile(p.path)
		if readErr != nil {
			return nil, NewExecFailedError("pdftoppm", fmt.Sprintf("读取页面图片%d失败: %v", p.num, readErr))
		}
		images = append(images, data)
	}
	return images, nil
}
