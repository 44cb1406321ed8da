package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"github.com/k-surya-teja/skillbias/internal/analyzer"
	"github.com/k-surya-teja/skillbias/internal/api/handler"
	"github.com/k-surya-teja/skillbias/internal/api/router"
	"github.com/k-surya-teja/skillbias/internal/config"
	"github.com/k-surya-teja/skillbias/internal/convert"
	"github.com/k-surya-teja/skillbias/internal/extract"
	"github.com/k-surya-teja/skillbias/internal/layout"
	appCoreLogger "github.com/k-surya-teja/skillbias/internal/logger"
	"github.com/k-surya-teja/skillbias/internal/model"
	"github.com/k-surya-teja/skillbias/internal/outbox"
	"github.com/k-surya-teja/skillbias/internal/prompt"
	"github.com/k-surya-teja/skillbias/internal/relevance"
	"github.com/k-surya-teja/skillbias/internal/storage"
	"github.com/k-surya-teja/skillbias/internal/tracing"
	"github.com/k-surya-teja/skillbias/pkg/ratelimit"
)

func main() {
	initLogger()

	var (
		configPath string
		listenAddr string
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.StringVar(&listenAddr, "addr", "", "监听地址，覆盖配置文件中的server.address")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	if listenAddr != "" {
		cfg.Server.Address = listenAddr
	}
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFlush()
		if err := shutdownTracing(flushCtx); err != nil {
			glog.Warnf("链路追踪关闭失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	resumeAnalyzer, err := buildAnalyzer(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化分析器失败: %v", err)
	}
	glog.Info("分析器初始化成功")

	analysisHandler := handler.NewAnalysisHandler(cfg, storageManager, resumeAnalyzer)
	glog.Info("AnalysisHandler初始化成功")

	// 异步模式下启动outbox中继与分析消费者；同步模式下接口内直接执行分析
	asyncMode := cfg.RabbitMQ.Enabled && storageManager.RabbitMQ != nil && storageManager.MySQL != nil
	var messageRelay *outbox.MessageRelay
	if asyncMode {
		relayLogger := log.New(appCoreLogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
		messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayLogger)
		messageRelay.Start()
		glog.Info("消息中继服务已启动")

		go func() {
			if err := analysisHandler.StartAnalysisConsumer(ctx); err != nil {
				glog.Fatalf("启动分析消费者失败: %v", err)
			}
			glog.Info("分析消费者已启动")
		}()
	} else {
		glog.Info("RabbitMQ未启用，分析将在上传请求内同步执行")
	}

	tracer, trcCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(trcCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, cfg, analysisHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// buildAnalyzer 按配置装配提取级联、版式分析、相关性分类、提示词组装与模型提供方
func buildAnalyzer(ctx context.Context, cfg *config.Config) (*analyzer.Analyzer, error) {
	converterTimeout := cfg.ConverterTimeout()

	// 组件级stdlib logger仅在debug下输出
	var componentLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		componentLogger = log.New(os.Stderr, "[PipelineMain] ", log.LstdFlags)
	} else {
		componentLogger = log.New(io.Discard, "", 0)
	}

	pdftotext := convert.NewPdftotextExtractor(cfg.Converters.PdftotextBin,
		convert.WithPdftotextTimeout(converterTimeout),
		convert.WithPdftotextLogger(componentLogger),
	)
	einoStrategy, err := extract.NewEinoPDFStrategy(ctx, extract.WithEinoLogger(componentLogger))
	if err != nil {
		return nil, err
	}
	cascade := extract.NewCascade([]extract.Strategy{
		extract.NewPrimaryToolStrategy(pdftotext),
		einoStrategy,
		extract.NewPageRunsStrategy(extract.WithPageRunsLogger(componentLogger)),
	}, extract.WithCascadeLogger(componentLogger))

	soffice := convert.NewSofficeConverter(cfg.Converters.SofficeBin,
		convert.WithSofficeTimeout(converterTimeout),
		convert.WithSofficeLogger(componentLogger),
	)
	rasterizer := convert.NewPdftoppmRasterizer(cfg.Converters.PdftoppmBin,
		convert.WithRenderDPI(cfg.Converters.RenderDPI),
		convert.WithPdftoppmTimeout(converterTimeout),
		convert.WithPdftoppmLogger(componentLogger),
	)

	layoutAnalyzer := layout.NewAnalyzer(layout.WithLogger(componentLogger))
	classifier := relevance.NewClassifier(
		relevance.WithAcceptScore(cfg.Pipeline.RelevanceAccept),
		relevance.WithRejectScore(cfg.Pipeline.RelevanceReject),
	)
	promptBuilder := prompt.NewBuilder(
		prompt.WithSnippetMaxChars(cfg.Pipeline.SnippetMaxChars),
		prompt.WithVisualMaxChars(cfg.Pipeline.VisualMaxChars),
	)

	var provider model.Provider
	if cfg.Provider.Type == "mock" {
		provider = &model.MockProvider{}
		glog.Warn("使用Mock模型提供方，仅用于本地联调")
	} else {
		provider, err = model.NewOpenAIChatModel(cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.BaseURL,
			model.WithHTTPTimeout(config.GetDuration(cfg.Provider.Timeout, 60*time.Second)))
		if err != nil {
			return nil, err
		}
		// 对真实提供方加一层令牌桶限流，避免打穿上游配额
		provider = ratelimit.NewProviderWithRateLimit(provider, cfg.Provider.Model, cfg.Provider.ModelQPM,
			cfg.Provider.QPM, cfg.Provider.MaxRetries, 2*time.Second)
	}

	return analyzer.NewAnalyzer(
		[]analyzer.ComponentOpt{
			analyzer.WithcompCascade(cascade),
			analyzer.WithcompOfficeConverter(soffice),
			analyzer.WithcompRasterizer(rasterizer),
			analyzer.WithcompLayoutAnalyzer(layoutAnalyzer),
			analyzer.WithcompClassifier(classifier),
			analyzer.WithcompPromptBuilder(promptBuilder),
			analyzer.WithcompProvider(provider),
		},
		[]analyzer.SettingOpt{
			analyzer.WithsetLogger(appCoreLogger.With("analyzer")),
			analyzer.WithsetEnableVisual(cfg.Pipeline.EnableVisual),
			analyzer.WithsetRenderMaxPages(cfg.Converters.RenderMaxPages),
			analyzer.WithsetMaxUploadBytes(cfg.Pipeline.MaxUploadBytes),
			analyzer.WithsetModelTimeout(config.GetDuration(cfg.Provider.Timeout, 20*time.Second)),
			analyzer.WithsetAnalysisModel(cfg.GetModelForTask("analysis")),
			analyzer.WithsetVisualModel(cfg.GetModelForTask("visual")),
		},
	)
}

func initLogger() {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatalf("无法创建日志目录: %v", err)
	}
	logFilePath := "logs/app.log"
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zerolog.TimeFieldFormat = "15:04:05"

	rootLogger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger()

	appCoreLogger.Logger = rootLogger
	zlog.Logger = rootLogger

	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	glog.SetLevel(glog.LevelDebug)
}
