package analyzer

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/k-surya-teja/skillbias/internal/convert"
	"github.com/k-surya-teja/skillbias/internal/extract"
	"github.com/k-surya-teja/skillbias/internal/layout"
	"github.com/k-surya-teja/skillbias/internal/model"
	"github.com/k-surya-teja/skillbias/internal/prompt"
	"github.com/k-surya-teja/skillbias/internal/relevance"
)

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// ----- 组件选项 -----

// WithcompCascade 设置文本提取级联
func WithcompCascade(cascade *extract.Cascade) ComponentOpt {
	return func(c *Components) {
		c.Cascade = cascade
	}
}

// WithcompOfficeConverter 设置Office文档转换器
func WithcompOfficeConverter(converter convert.OfficeConverter) ComponentOpt {
	return func(c *Components) {
		c.OfficeConverter = converter
	}
}

// WithcompRasterizer 设置页面渲染器
func WithcompRasterizer(rasterizer convert.Rasterizer) ComponentOpt {
	return func(c *Components) {
		c.Rasterizer = rasterizer
	}
}

// WithcompLayoutAnalyzer 设置版式分析器
func WithcompLayoutAnalyzer(analyzer *layout.Analyzer) ComponentOpt {
	return func(c *Components) {
		c.LayoutAnalyzer = analyzer
	}
}

// WithcompClassifier 设置简历相关性分类器
func WithcompClassifier(classifier *relevance.Classifier) ComponentOpt {
	return func(c *Components) {
		c.Classifier = classifier
	}
}

// WithcompPromptBuilder 设置提示词组装器
func WithcompPromptBuilder(builder *prompt.Builder) ComponentOpt {
	return func(c *Components) {
		c.PromptBuilder = builder
	}
}

// WithcompProvider 设置模型提供方
func WithcompProvider(provider model.Provider) ComponentOpt {
	return func(c *Components) {
		c.Provider = provider
	}
}

// ----- 设置选项 -----

// WithsetLogger 设置日志记录器
func WithsetLogger(logger zerolog.Logger) SettingOpt {
	return func(s *Settings) {
		s.Logger = logger
	}
}

// WithsetEnableVisual 设置是否执行结构评审
func WithsetEnableVisual(enabled bool) SettingOpt {
	return func(s *Settings) {
		s.EnableVisual = enabled
	}
}

// WithsetRenderMaxPages 设置结构评审渲染的最大页数
func WithsetRenderMaxPages(pages int) SettingOpt {
	return func(s *Settings) {
		if pages > 0 {
			s.RenderMaxPages = pages
		}
	}
}

// WithsetMaxUploadBytes 设置上传文件的大小上限
func WithsetMaxUploadBytes(limit int64) SettingOpt {
	return func(s *Settings) {
		if limit > 0 {
			s.MaxUploadBytes = limit
		}
	}
}

// WithsetModelTimeout 设置单次模型调用的超时时间
func WithsetModelTimeout(timeout time.Duration) SettingOpt {
	return func(s *Settings) {
		if timeout > 0 {
			s.ModelTimeout = timeout
		}
	}
}

// WithsetAnalysisModel 设置文本分析使用的模型
func WithsetAnalysisModel(modelName string) SettingOpt {
	return func(s *Settings) {
		s.AnalysisModel = modelName
	}
}

// WithsetVisualModel 设置结构评审使用的模型
func WithsetVisualModel(modelName string) SettingOpt {
	return func(s *Settings) {
		s.VisualModel = modelName
	}
}
