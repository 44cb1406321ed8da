package layout

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/k-surya-teja/skillbias/internal/types"
)

const (
	// 章节标题判定：行长上限、相对页面中位字号的最小倍数、中位字号兜底值
	headerMaxChars     = 60
	headerFontRatio    = 1.12
	fallbackMedianFont = 11.0

	// 双栏判定：分界线位置与两侧片段的最小数量
	columnSplitRatio = 0.52
	columnMinRuns    = 10

	// 垂直间距统计的噪声过滤：过小视为同行抖动，超过页高25%视为分页
	minVerticalGap      = 0.1
	maxVerticalGapRatio = 0.25

	// 汇总时保留的章节标题上限
	maxSectionHeaders = 20
)

var (
	bulletRE    = regexp.MustCompile(`^([•\-*]|\d+[.)])\s+`)
	titleCaseRE = regexp.MustCompile(`^[A-Z][A-Za-z\s&/-]{2,}$`)
	allCapsRE   = regexp.MustCompile(`^[A-Z\s]{4,}$`)
)

// TextRun 一个定位文本片段
type TextRun struct {
	Text     string
	X        float64
	Y        float64
	FontSize float64
}

// Analyzer 从PDF的定位文本片段推导结构信号
type Analyzer struct {
	logger *log.Logger
}

// Option 配置Analyzer的函数选项
type Option func(*Analyzer)

// WithLogger 配置自定义日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer 创建布局分析器
func NewAnalyzer(options ...Option) *Analyzer {
	a := &Analyzer{
		logger: log.New(os.Stderr, "[Layout] ", log.LstdFlags),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Analyze 分析PDF字节流的版面结构
// 仅在文档完全无法按页打开时返回错误；单页读取失败只作跳过处理。
func (a *Analyzer) Analyze(pdfBytes []byte) (*types.LayoutMetadata, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("无法按页打开文档: %w", err)
	}

	totalPages := reader.NumPage()
	meta := &types.LayoutMetadata{DominantColumns: 1}
	var allFonts []float64
	totalBullets := 0
	totalLines := 0
	seenHeaders := make(map[string]bool)

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		width, height := pageSize(page)
		runs := collectRuns(page)
		if len(runs) == 0 {
			continue
		}

		pageLayout := AnalyzePage(runs, width, height, i)
		meta.Pages = append(meta.Pages, pageLayout)

		for _, run := range runs {
			if run.FontSize > 0 {
				allFonts = append(allFonts, run.FontSize)
			}
		}
		totalBullets += pageLayout.BulletLineCount
		totalLines += countLines(runs)
		if pageLayout.EstimatedColumns == 2 {
			meta.DominantColumns = 2
		}
		for _, header := range pageLayout.SectionHeaderCandidates {
			key := strings.ToLower(header)
			if !seenHeaders[key] && len(meta.SectionHeaders) < maxSectionHeaders {
				seenHeaders[key] = true
				meta.SectionHeaders = append(meta.SectionHeaders, header)
			}
		}
	}

	if len(meta.Pages) == 0 {
		return nil, fmt.Errorf("文档%d页均无定位文本", totalPages)
	}

	meta.MedianFontSize = median(allFonts)
	meta.MaxFontSize = maxOf(allFonts)
	if totalLines > 0 {
		meta.BulletDensity = float64(totalBullets) / float64(totalLines)
	}

	a.logger.Printf("布局分析完成: %d页, 中位字号%.1f, 标题候选%d个, 栏数%d",
		len(meta.Pages), meta.MedianFontSize, len(meta.SectionHeaders), meta.DominantColumns)
	return meta, nil
}

// AnalyzePage 分析单页的定位文本片段
func AnalyzePage(runs []TextRun, width, height float64, pageNumber int) types.PageLayout {
	layout := types.PageLayout{
		PageNumber:       pageNumber,
		Width:            width,
		Height:           height,
		EstimatedColumns: 1,
	}

	// 字号统计
	var fonts []float64
	for _, run := range runs {
		if run.FontSize > 0 {
			fonts = append(fonts, run.FontSize)
		}
	}
	layout.AvgFontSize = average(fonts)
	layout.LargestFontSize = maxOf(fonts)
	medianFont := median(fonts)
	if medianFont <= 0 {
		medianFont = fallbackMedianFont
	}

	// 双栏判定：分界线两侧各有足够多的片段起点
	rightCount := 0
	for _, run := range runs {
		if run.X > width*columnSplitRatio {
			rightCount++
		}
	}
	leftCount := len(runs) - rightCount
	if rightCount > columnMinRuns && leftCount > columnMinRuns {
		layout.EstimatedColumns = 2
	}

	// 片段起点x的总体方差，反映左对齐的整齐程度
	var xs []float64
	for _, run := range runs {
		xs = append(xs, run.X)
	}
	layout.LeftAlignmentVariance = variance(xs)

	// 按行聚合后做标题、项目符号与行距统计
	lines := groupLines(runs)
	var gaps []float64
	for idx, line := range lines {
		text := strings.TrimSpace(line.text)
		if text == "" {
			continue
		}
		if bulletRE.MatchString(text) {
			layout.BulletLineCount++
		}
		if isHeaderCandidate(text, line.maxFont, medianFont) {
			layout.SectionHeaderCandidates = append(layout.SectionHeaderCandidates, text)
		}
		if idx > 0 {
			gap := lines[idx-1].y - line.y
			if gap > minVerticalGap && gap < height*maxVerticalGapRatio {
				gaps = append(gaps, gap)
			}
		}
	}
	layout.AvgVerticalGap = average(gaps)

	return layout
}

// isHeaderCandidate 判断一行是否像章节标题
// 要求行足够短、符合标题大小写形态（Title Case / 全大写 / 以冒号
// 结尾），且字号明显大于页面中位值。
func isHeaderCandidate(text string, lineFont, medianFont float64) bool {
	if len(text) == 0 || len(text) > headerMaxChars {
		return false
	}
	shaped := titleCaseRE.MatchString(text) ||
		allCapsRE.MatchString(text) ||
		strings.HasSuffix(text, ":")
	if !shaped {
		return false
	}
	return lineFont >= medianFont*headerFontRatio
}

// line 按y坐标聚合出的文本行
type line struct {
	y       float64
	text    string
	maxFont float64
}

// groupLines 将片段按y坐标聚合为行，返回按y降序（自上而下）的行
func groupLines(runs []TextRun) []line {
	sorted := make([]TextRun, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	const yTolerance = 2.0
	var lines []line
	for _, run := range sorted {
		if len(lines) > 0 && math.Abs(lines[len(lines)-1].y-run.Y) <= yTolerance {
			last := &lines[len(lines)-1]
			last.text += run.Text
			if run.FontSize > last.maxFont {
				last.maxFont = run.FontSize
			}
			continue
		}
		lines = append(lines, line{y: run.Y, text: run.Text, maxFont: run.FontSize})
	}
	return lines
}

func countLines(runs []TextRun) int {
	return len(groupLines(runs))
}

// collectRuns 读取一页的定位文本片段
func collectRuns(page pdf.Page) []TextRun {
	defer func() {
		// 个别损坏页面会让内容流解析panic，按无片段处理
		_ = recover()
	}()

	content := page.Content()
	runs := make([]TextRun, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		runs = append(runs, TextRun{
			Text:     t.S,
			X:        t.X,
			Y:        t.Y,
			FontSize: t.FontSize,
		})
	}
	return runs
}

// pageSize 从MediaBox读取页面尺寸，读取失败时退回US Letter
func pageSize(page pdf.Page) (width, height float64) {
	width, height = 612.0, 792.0
	defer func() {
		_ = recover()
	}()
	mediaBox := page.V.Key("MediaBox")
	if mediaBox.IsNull() || mediaBox.Len() < 4 {
		return width, height
	}
	x0 := mediaBox.Index(0).Float64()
	y0 := mediaBox.Index(1).Float64()
	x1 := mediaBox.Index(2).Float64()
	y1 := mediaBox.Index(3).Float64()
	if x1 > x0 && y1 > y0 {
		width = x1 - x0
		height = y1 - y0
	}
	return width, height
}

// 下面是小型统计辅助函数

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func maxOf(values []float64) float64 {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}

// variance 总体方差
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}
