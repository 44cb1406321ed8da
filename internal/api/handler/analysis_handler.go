package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/k-surya-teja/skillbias/internal/analyzer"
	"github.com/k-surya-teja/skillbias/internal/config"
	"github.com/k-surya-teja/skillbias/internal/logger"
	"github.com/k-surya-teja/skillbias/internal/storage"
	"github.com/k-surya-teja/skillbias/internal/storage/models"
	"github.com/k-surya-teja/skillbias/internal/types"
	"github.com/k-surya-teja/skillbias/pkg/ratelimit"
	"github.com/k-surya-teja/skillbias/pkg/utils"

	"github.com/gofrs/uuid/v5"
	googleuuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// 提交处理锁的持有时长，覆盖最慢的模型链路
const submissionLockTTL = 3 * time.Minute

// AnalysisHandler 分析提交处理器，负责协调上传、去重、排队与分析执行
type AnalysisHandler struct {
	cfg      *config.Config
	storage  *storage.Storage
	analyzer *analyzer.Analyzer
	limiter  *ratelimit.TokenBucket // 上传接口的进程级限流
}

// NewAnalysisHandler 创建分析提交处理器
func NewAnalysisHandler(cfg *config.Config, st *storage.Storage, an *analyzer.Analyzer) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:      cfg,
		storage:  st,
		analyzer: an,
		limiter:  ratelimit.NewTokenBucket(cfg.Server.UploadQPM, 0),
	}
}

// AllowSubmission 判断当前是否允许接收新的提交
func (h *AnalysisHandler) AllowSubmission() bool {
	return h.limiter.Allow()
}

// SubmissionResponse 提交接口的响应
type SubmissionResponse struct {
	SubmissionUUID string                `json:"submission_uuid"`
	Status         string                `json:"status"`
	Duplicate      bool                  `json:"duplicate,omitempty"`
	Result         *types.AnalysisBundle `json:"result,omitempty"` // 同步模式下直接携带分析结果
}

// HandleFileSubmission 处理带文件的分析提交
// 流程：MD5去重 -> 上传原始文件到MinIO -> 登记提交+outbox（异步）
// 或直接执行分析（同步，RabbitMQ未启用时）。
func (h *AnalysisHandler) HandleFileSubmission(ctx context.Context, fileBytes []byte, filename, mimeType, userPrompt, targetJobID string) (*SubmissionResponse, error) {
	fileMD5Hex := utils.CalculateMD5(fileBytes)

	// 1. 生成UUIDv7，先于去重检查，以便登记MD5到UUID映射
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}
	submissionUUID := uuidV7.String()

	// 2. 文件MD5去重：命中时直接定向到已有提交
	if h.storage.Redis != nil {
		exists, existingUUID, err := h.storage.Redis.CheckAndSetFileMD5(ctx, fileMD5Hex, submissionUUID)
		if err != nil {
			// 去重是重要逻辑，Redis查询失败时报错而不是静默放行
			logger.Error().Err(err).Str("md5", fileMD5Hex).Msg("查询Redis文件MD5记录失败")
			return nil, fmt.Errorf("检查文件MD5重复性时Redis查询失败: %w", err)
		}
		if exists {
			logger.Info().
				Str("md5", fileMD5Hex).
				Str("filename", filename).
				Str("existing_uuid", existingUUID).
				Msg("检测到重复的文件MD5，定向到已有提交")
			return &SubmissionResponse{
				SubmissionUUID: existingUUID,
				Status:         "DUPLICATE_FILE",
				Duplicate:      true,
			}, nil
		}
	} else if h.storage.MySQL != nil {
		// 无Redis部署时退化为MySQL按MD5查重，走idx_as_raw_file_md5索引，查询失败视为未命中
		if existing, err := h.storage.MySQL.GetSubmissionByMD5(ctx, fileMD5Hex); err == nil && existing != nil {
			logger.Info().
				Str("md5", fileMD5Hex).
				Str("filename", filename).
				Str("existing_uuid", existing.SubmissionUUID).
				Msg("MySQL检测到重复的文件MD5，定向到已有提交")
			return &SubmissionResponse{
				SubmissionUUID: existing.SubmissionUUID,
				Status:         "DUPLICATE_FILE",
				Duplicate:      true,
			}, nil
		}
	}

	// 3. 上传原始文件到MinIO
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf"
	}
	var objectKey string
	if h.storage.MinIO != nil {
		objectKey, _, err = h.storage.MinIO.UploadOriginal(ctx, submissionUUID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
		if err != nil {
			h.rollbackMD5(ctx, fileMD5Hex)
			return nil, fmt.Errorf("上传文件到MinIO失败: %w", err)
		}
	}

	submission := &models.AnalysisSubmission{
		SubmissionUUID:      submissionUUID,
		SubmissionTimestamp: time.Now(),
		Source:              string(detectSource(true, userPrompt != "")),
		OriginalFilename:    filename,
		OriginalFilePathOSS: objectKey,
		RawFileMD5:          fileMD5Hex,
		UserPrompt:          userPrompt,
		TargetJobID:         targetJobID,
		ProcessingStatus:    models.StatusPendingAnalysis,
	}

	msg := &storage.AnalysisSubmittedMessage{
		EventID:             googleuuid.NewString(),
		SubmissionUUID:      submissionUUID,
		SubmissionTimestamp: submission.SubmissionTimestamp,
		Source:              submission.Source,
		OriginalFilename:    filename,
		OriginalFilePathOSS: objectKey,
		RawFileMD5:          fileMD5Hex,
		UserPrompt:          userPrompt,
		TargetJobID:         targetJobID,
		MIMEType:            mimeType,
	}

	return h.submit(ctx, submission, msg, fileBytes)
}

// HandlePromptSubmission 处理纯提示词的分析提交
func (h *AnalysisHandler) HandlePromptSubmission(ctx context.Context, userPrompt string) (*SubmissionResponse, error) {
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}

	submission := &models.AnalysisSubmission{
		SubmissionUUID:      uuidV7.String(),
		SubmissionTimestamp: time.Now(),
		Source:              string(types.SourcePrompt),
		UserPrompt:          userPrompt,
		ProcessingStatus:    models.StatusPendingAnalysis,
	}

	msg := &storage.AnalysisSubmittedMessage{
		EventID:             googleuuid.NewString(),
		SubmissionUUID:      submission.SubmissionUUID,
		SubmissionTimestamp: submission.SubmissionTimestamp,
		Source:              submission.Source,
		UserPrompt:          userPrompt,
	}

	return h.submit(ctx, submission, msg, nil)
}

// submit 登记提交并根据部署模式决定异步排队还是同步分析
func (h *AnalysisHandler) submit(ctx context.Context, submission *models.AnalysisSubmission, msg *storage.AnalysisSubmittedMessage, fileBytes []byte) (*SubmissionResponse, error) {
	asyncMode := h.cfg.RabbitMQ.Enabled && h.storage.RabbitMQ != nil

	if h.storage.MySQL != nil {
		var outboxMsg *models.OutboxMessage
		if asyncMode {
			payload, err := json.Marshal(msg)
			if err != nil {
				return nil, fmt.Errorf("序列化提交消息失败: %w", err)
			}
			outboxMsg = &models.OutboxMessage{
				AggregateID:      submission.SubmissionUUID,
				EventType:        "analysis.submitted",
				Payload:          string(payload),
				TargetExchange:   h.cfg.RabbitMQ.AnalysisEventsExchange,
				TargetRoutingKey: h.cfg.RabbitMQ.SubmittedRoutingKey,
				Status:           models.OutboxStatusPending,
			}
		}
		if err := h.storage.MySQL.SubmitWithOutbox(ctx, submission, outboxMsg); err != nil {
			h.rollbackMD5(ctx, submission.RawFileMD5)
			return nil, fmt.Errorf("登记分析提交失败: %w", err)
		}
	}

	if asyncMode {
		return &SubmissionResponse{
			SubmissionUUID: submission.SubmissionUUID,
			Status:         "SUBMITTED_FOR_ANALYSIS",
		}, nil
	}

	// 同步模式：直接执行分析并返回结果
	bundle, err := h.runAnalysis(ctx, msg, fileBytes)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{
		SubmissionUUID: submission.SubmissionUUID,
		Status:         models.StatusCompleted,
		Result:         bundle,
	}, nil
}

// runAnalysis 执行一次分析并持久化结果
// fileBytes为nil时按消息中的OSS路径从MinIO拉取原始文件。
func (h *AnalysisHandler) runAnalysis(ctx context.Context, msg *storage.AnalysisSubmittedMessage, fileBytes []byte) (*types.AnalysisBundle, error) {
	if fileBytes == nil && msg.OriginalFilePathOSS != "" {
		if h.storage.MinIO == nil {
			return nil, fmt.Errorf("MinIO未初始化，无法获取原始文件")
		}
		var err error
		fileBytes, err = h.storage.MinIO.GetOriginal(ctx, msg.OriginalFilePathOSS)
		if err != nil {
			return nil, fmt.Errorf("从MinIO获取原始文件失败: %w", err)
		}
	}

	if h.storage.MySQL != nil {
		if err := h.storage.MySQL.UpdateSubmissionStatus(ctx, msg.SubmissionUUID, models.StatusProcessing); err != nil {
			logger.Warn().Err(err).Str("uuid", msg.SubmissionUUID).Msg("更新提交状态为PROCESSING失败")
		}
	}

	bundle, err := h.analyzer.Analyze(ctx, &analyzer.AnalysisRequest{
		SubmissionUUID: msg.SubmissionUUID,
		FileName:       msg.OriginalFilename,
		MIMEType:       msg.MIMEType,
		FileBytes:      fileBytes,
		UserPrompt:     msg.UserPrompt,
	})
	if err != nil {
		h.recordFailure(ctx, msg, err)
		return nil, err
	}

	h.persistResult(ctx, msg, bundle)
	return bundle, nil
}

// recordFailure 将失败写入数据库并回滚去重记录，使同一文件可以重新提交
func (h *AnalysisHandler) recordFailure(ctx context.Context, msg *storage.AnalysisSubmittedMessage, analysisErr error) {
	status := models.StatusFailed
	if errors.Is(analysisErr, analyzer.ErrNotResume) {
		status = models.StatusRejected
		// 被判定为非简历的文件不保留原件，清理MinIO中的上传内容
		if h.storage.MinIO != nil && msg.OriginalFilePathOSS != "" {
			if err := h.storage.MinIO.DeleteOriginal(ctx, msg.OriginalFilePathOSS); err != nil {
				logger.Warn().Err(err).Str("uuid", msg.SubmissionUUID).Msg("清理被拒绝提交的原始文件失败")
			}
		}
	}

	if h.storage.MySQL != nil {
		if err := h.storage.MySQL.MarkSubmissionFailed(ctx, msg.SubmissionUUID, status, analysisErr.Error()); err != nil {
			logger.Error().Err(err).Str("uuid", msg.SubmissionUUID).Msg("更新提交失败状态失败")
		}
	}

	h.rollbackMD5(ctx, msg.RawFileMD5)
	h.publishCompleted(ctx, msg.SubmissionUUID, status, 0, analysisErr.Error())
}

// persistResult 持久化分析产出：MySQL结果行、MinIO解析文本、Redis结果缓存
func (h *AnalysisHandler) persistResult(ctx context.Context, msg *storage.AnalysisSubmittedMessage, bundle *types.AnalysisBundle) {
	var parsedTextPath string
	if h.storage.MinIO != nil {
		if bundle.ExtractedText != "" {
			path, err := h.storage.MinIO.UploadParsedText(ctx, msg.SubmissionUUID, bundle.ExtractedText)
			if err != nil {
				logger.Warn().Err(err).Str("uuid", msg.SubmissionUUID).Msg("上传解析文本到MinIO失败")
			} else {
				parsedTextPath = path
			}
		}
		// 中间产物尽力归档，失败不影响结果落库
		if len(bundle.ConvertedPDF) > 0 {
			if _, err := h.storage.MinIO.UploadConvertedPDF(ctx, msg.SubmissionUUID, bundle.ConvertedPDF); err != nil {
				logger.Warn().Err(err).Str("uuid", msg.SubmissionUUID).Msg("上传转换后PDF到MinIO失败")
			}
		}
		for i, png := range bundle.PageImages {
			if _, err := h.storage.MinIO.UploadPageImage(ctx, msg.SubmissionUUID, i+1, png); err != nil {
				logger.Warn().Err(err).Int("page", i+1).Str("uuid", msg.SubmissionUUID).Msg("上传页面渲染图到MinIO失败")
			}
		}
	}

	completedViaOutbox := false
	if h.storage.MySQL != nil {
		result := &models.AnalysisResult{
			SubmissionUUID: msg.SubmissionUUID,
			OverallScore:   bundle.Analysis.OverallScore,
			AnalysisJSON:   models.ToJSON(bundle.Analysis),
			NotesJSON:      utils.MarshalJSONArray(bundle.Notes),
		}
		if bundle.VisualReview != nil {
			result.VisualReviewJSON = models.ToJSON(bundle.VisualReview)
		}
		if bundle.Layout != nil {
			result.LayoutJSON = models.ToJSON(bundle.Layout)
		}

		updates := map[string]interface{}{
			"processing_status": models.StatusCompleted,
			"extraction_method": string(bundle.ExtractionMethod),
			"overall_score":     bundle.Analysis.OverallScore,
		}
		if parsedTextPath != "" {
			updates["parsed_text_path_oss"] = parsedTextPath
		}

		// 异步部署时完成事件也走outbox，与结果落库同事务
		var outboxMsg *models.OutboxMessage
		if h.cfg.RabbitMQ.Enabled && h.storage.RabbitMQ != nil {
			completed := &storage.AnalysisCompletedMessage{
				SubmissionUUID:   msg.SubmissionUUID,
				ProcessingStatus: models.StatusCompleted,
				OverallScore:     bundle.Analysis.OverallScore,
				CompletedAt:      time.Now().Unix(),
			}
			if payload, err := json.Marshal(completed); err == nil {
				outboxMsg = &models.OutboxMessage{
					AggregateID:      msg.SubmissionUUID,
					EventType:        "analysis.completed",
					Payload:          string(payload),
					TargetExchange:   h.cfg.RabbitMQ.AnalysisEventsExchange,
					TargetRoutingKey: h.cfg.RabbitMQ.CompletedRoutingKey,
					Status:           models.OutboxStatusPending,
				}
			}
		}

		if err := h.storage.MySQL.CompleteSubmission(ctx, result, updates, outboxMsg); err != nil {
			logger.Error().Err(err).Str("uuid", msg.SubmissionUUID).Msg("持久化分析结果失败")
		} else {
			completedViaOutbox = outboxMsg != nil
		}
	}

	if h.storage.Redis != nil {
		if resultJSON, err := json.Marshal(bundle); err == nil {
			ttl := config.GetDuration(h.cfg.Pipeline.ResultCacheTTL, 24*time.Hour)
			if err := h.storage.Redis.CacheAnalysisResult(ctx, msg.SubmissionUUID, string(resultJSON), ttl); err != nil {
				logger.Warn().Err(err).Str("uuid", msg.SubmissionUUID).Msg("缓存分析结果失败")
			}
		}
	}

	// 完成事件已写入outbox时交给中继投递，否则直接发布
	if !completedViaOutbox {
		h.publishCompleted(ctx, msg.SubmissionUUID, models.StatusCompleted, bundle.Analysis.OverallScore, "")
	}
}

// publishCompleted 发布分析完成事件（异步部署时供下游订阅）
func (h *AnalysisHandler) publishCompleted(ctx context.Context, submissionUUID, status string, score int, errMsg string) {
	if h.storage.RabbitMQ == nil {
		return
	}
	completed := &storage.AnalysisCompletedMessage{
		SubmissionUUID:   submissionUUID,
		ProcessingStatus: status,
		OverallScore:     score,
		CompletedAt:      time.Now().Unix(),
		Error:            errMsg,
	}
	if err := h.storage.RabbitMQ.PublishAnalysisCompleted(ctx, completed); err != nil {
		logger.Warn().Err(err).Str("uuid", submissionUUID).Msg("发布分析完成事件失败")
	}
}

// rollbackMD5 回滚文件MD5去重记录
func (h *AnalysisHandler) rollbackMD5(ctx context.Context, md5Hex string) {
	if h.storage.Redis == nil || md5Hex == "" {
		return
	}
	if err := h.storage.Redis.RemoveFileMD5(ctx, md5Hex); err != nil {
		logger.Warn().Err(err).Str("md5", md5Hex).Msg("回滚文件MD5去重记录失败")
	}
}

// GetResult 查询分析结果，优先走Redis缓存，未命中回落到MySQL
func (h *AnalysisHandler) GetResult(ctx context.Context, submissionUUID string) (*types.AnalysisBundle, string, error) {
	if h.storage.Redis != nil {
		cached, err := h.storage.Redis.GetCachedAnalysisResult(ctx, submissionUUID)
		if err == nil && cached != "" {
			var bundle types.AnalysisBundle
			if err := json.Unmarshal([]byte(cached), &bundle); err == nil {
				return &bundle, models.StatusCompleted, nil
			}
			logger.Warn().Str("uuid", submissionUUID).Msg("缓存的分析结果无法反序列化，回落到数据库")
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Str("uuid", submissionUUID).Msg("查询结果缓存失败，回落到数据库")
		}
	}

	if h.storage.MySQL == nil {
		return nil, "", fmt.Errorf("结果存储未初始化")
	}

	submission, err := h.storage.MySQL.GetSubmission(ctx, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("查询提交记录失败: %w", err)
	}

	if submission.ProcessingStatus != models.StatusCompleted {
		return nil, submission.ProcessingStatus, nil
	}

	result, err := h.storage.MySQL.GetResult(ctx, submissionUUID)
	if err != nil {
		return nil, submission.ProcessingStatus, fmt.Errorf("查询分析结果失败: %w", err)
	}

	bundle := &types.AnalysisBundle{
		Source:           types.AnalysisSource(submission.Source),
		ExtractionMethod: types.ExtractionMethod(submission.ExtractionMethod),
	}
	var analysis types.ResumeAnalysis
	if err := json.Unmarshal(result.AnalysisJSON, &analysis); err != nil {
		return nil, submission.ProcessingStatus, fmt.Errorf("反序列化分析结果失败: %w", err)
	}
	bundle.Analysis = &analysis
	if len(result.VisualReviewJSON) > 0 {
		var visual types.VisualAnalysis
		if err := json.Unmarshal(result.VisualReviewJSON, &visual); err == nil {
			bundle.VisualReview = &visual
		}
	}
	if len(result.LayoutJSON) > 0 {
		var layoutMeta types.LayoutMetadata
		if err := json.Unmarshal(result.LayoutJSON, &layoutMeta); err == nil {
			bundle.Layout = &layoutMeta
		}
	}
	if len(result.NotesJSON) > 0 {
		var notes []string
		if err := json.Unmarshal(result.NotesJSON, &notes); err == nil {
			bundle.Notes = notes
		}
	}

	return bundle, submission.ProcessingStatus, nil
}

// OriginalFileURL 生成原始文件的预签名下载链接，供结果页回看原件
func (h *AnalysisHandler) OriginalFileURL(ctx context.Context, submissionUUID string) (string, error) {
	if h.storage.MinIO == nil || h.storage.MySQL == nil {
		return "", nil
	}
	submission, err := h.storage.MySQL.GetSubmission(ctx, submissionUUID)
	if err != nil {
		return "", err
	}
	if submission.OriginalFilePathOSS == "" {
		return "", nil
	}
	return h.storage.MinIO.GetPresignedURL(ctx, submission.OriginalFilePathOSS, 15*time.Minute)
}

// StartAnalysisConsumer 启动分析消费者，从队列拉取提交消息执行分析
// 每条消息先抢占提交级Redis锁，抢不到说明其他实例正在处理，直接确认丢弃。
func (h *AnalysisHandler) StartAnalysisConsumer(ctx context.Context) error {
	if h.storage.RabbitMQ == nil {
		return fmt.Errorf("RabbitMQ未初始化，无法启动消费者")
	}

	if err := h.storage.RabbitMQ.SetupAnalysisTopology(); err != nil {
		return err
	}

	logger.Info().
		Str("queue", h.cfg.RabbitMQ.AnalysisQueue).
		Int("prefetch_count", h.cfg.RabbitMQ.PrefetchCount).
		Msg("分析消费者就绪")

	_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.AnalysisQueue, h.cfg.RabbitMQ.PrefetchCount, func(data []byte) bool {
		var msg storage.AnalysisSubmittedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Error().Err(err).Msg("解析提交消息失败")
			return true // 无法解析的消息重新入队也没有意义
		}

		if h.storage.Redis != nil {
			lockValue, err := h.storage.Redis.AcquireSubmissionLock(ctx, msg.SubmissionUUID, submissionLockTTL)
			if err != nil {
				logger.Error().Err(err).Str("uuid", msg.SubmissionUUID).Msg("获取提交处理锁失败")
				return false
			}
			if lockValue == "" {
				logger.Info().Str("uuid", msg.SubmissionUUID).Msg("提交正在被其他实例处理，跳过")
				return true
			}
			defer func() {
				if _, err := h.storage.Redis.ReleaseSubmissionLock(ctx, msg.SubmissionUUID, lockValue); err != nil {
					logger.Warn().Err(err).Str("uuid", msg.SubmissionUUID).Msg("释放提交处理锁失败")
				}
			}()
		}

		if _, err := h.runAnalysis(ctx, &msg, nil); err != nil {
			logger.Error().Err(err).Str("uuid", msg.SubmissionUUID).Msg("分析执行失败")
			// 失败已落库，不再重新入队避免对被拒/非法输入反复重试
			return true
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("启动分析消费者失败: %w", err)
	}
	return nil
}

// detectSource 与分析编排层保持一致的来源判定
func detectSource(hasFile, hasPrompt bool) types.AnalysisSource {
	if hasFile && hasPrompt {
		return types.SourceFileAndPrompt
	}
	if hasFile {
		return types.SourceFile
	}
	return types.SourcePrompt
}
