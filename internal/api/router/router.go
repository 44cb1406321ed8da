package router

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/k-surya-teja/skillbias/internal/analyzer"
	"github.com/k-surya-teja/skillbias/internal/api/handler"
	"github.com/k-surya-teja/skillbias/internal/config"
	"github.com/k-surya-teja/skillbias/internal/logger"
	"github.com/k-surya-teja/skillbias/internal/model"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	"gorm.io/gorm"
)

// promptRequest 纯文本提交的请求体
type promptRequest struct {
	UserPrompt string `json:"user_prompt"`
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, analysisHandler *handler.AnalysisHandler) {
	api := h.Group("/api/v1")

	// 配置了API Key时对写接口启用鉴权
	if len(cfg.Server.APIKeys) > 0 {
		allowed := make(map[string]bool, len(cfg.Server.APIKeys))
		for _, key := range cfg.Server.APIKeys {
			allowed[key] = true
		}
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return allowed[key], nil
			}),
			keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
				c.JSON(consts.StatusUnauthorized, utils.H{
					"ok":      false,
					"message": "Missing or invalid API key.",
				})
				c.Abort()
			}),
		))
	}

	// 上传文件（可附带提示词）触发分析
	api.POST("/analysis/upload", func(c context.Context, ctx *app.RequestContext) {
		if !analysisHandler.AllowSubmission() {
			ctx.JSON(consts.StatusTooManyRequests, utils.H{
				"ok":      false,
				"message": "Too many analysis requests. Please retry shortly.",
			})
			return
		}

		userPrompt := strings.TrimSpace(ctx.PostForm("userPrompt"))
		targetJobID := strings.TrimSpace(ctx.PostForm("jobId"))

		fileHeader, err := ctx.FormFile("resumeFile")
		if err != nil {
			// 没有文件时允许退化为纯提示词提交
			if userPrompt == "" {
				ctx.JSON(consts.StatusBadRequest, utils.H{
					"ok":      false,
					"message": "Upload a resume file or provide a prompt.",
				})
				return
			}
			resp, err := analysisHandler.HandlePromptSubmission(c, userPrompt)
			writeSubmissionResponse(c, ctx, resp, err)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{
				"ok":      false,
				"message": "Unable to read the uploaded file.",
			})
			return
		}
		defer file.Close()

		fileBytes, err := io.ReadAll(file)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{
				"ok":      false,
				"message": "Unable to read the uploaded file.",
			})
			return
		}

		mimeType := fileHeader.Header.Get("Content-Type")
		resp, err := analysisHandler.HandleFileSubmission(c, fileBytes, fileHeader.Filename, mimeType, userPrompt, targetJobID)
		writeSubmissionResponse(c, ctx, resp, err)
	})

	// 纯提示词提交
	api.POST("/analysis/text", func(c context.Context, ctx *app.RequestContext) {
		if !analysisHandler.AllowSubmission() {
			ctx.JSON(consts.StatusTooManyRequests, utils.H{
				"ok":      false,
				"message": "Too many analysis requests. Please retry shortly.",
			})
			return
		}

		var req promptRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{
				"ok":      false,
				"message": "Request body must be JSON with a user_prompt field.",
			})
			return
		}

		resp, err := analysisHandler.HandlePromptSubmission(c, strings.TrimSpace(req.UserPrompt))
		writeSubmissionResponse(c, ctx, resp, err)
	})

	// 查询分析结果
	api.GET("/analysis/:uuid", func(c context.Context, ctx *app.RequestContext) {
		submissionUUID := ctx.Param("uuid")
		bundle, status, err := analysisHandler.GetResult(c, submissionUUID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{
					"ok":      false,
					"message": "Submission not found.",
				})
				return
			}
			logger.Error().Err(err).Str("uuid", submissionUUID).Msg("查询分析结果失败")
			ctx.JSON(consts.StatusInternalServerError, utils.H{
				"ok":      false,
				"message": "Unable to load analysis result.",
			})
			return
		}

		if bundle == nil {
			ctx.JSON(consts.StatusOK, utils.H{
				"ok":      true,
				"message": "Analysis is not completed yet.",
				"data":    utils.H{"status": status},
			})
			return
		}

		resp := utils.H{
			"ok":      true,
			"message": "Resume analysis generated successfully.",
			"data":    bundle,
		}
		// 原件的预签名链接是可选增强，生成失败不影响结果返回
		if fileURL, urlErr := analysisHandler.OriginalFileURL(c, submissionUUID); urlErr == nil && fileURL != "" {
			resp["file_url"] = fileURL
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 健康检查
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// writeSubmissionResponse 把提交结果或错误映射为HTTP响应
func writeSubmissionResponse(c context.Context, ctx *app.RequestContext, resp *handler.SubmissionResponse, err error) {
	if err != nil {
		status, message := mapAnalysisError(err)
		if status >= consts.StatusInternalServerError {
			logger.Error().Err(err).Msg("分析提交处理失败")
		}
		ctx.JSON(status, utils.H{
			"ok":      false,
			"message": message,
		})
		return
	}

	if resp.Result != nil {
		ctx.JSON(consts.StatusOK, utils.H{
			"ok":      true,
			"message": "Resume analysis generated successfully.",
			"data": utils.H{
				"submission_uuid": resp.SubmissionUUID,
				"status":          resp.Status,
				"result":          resp.Result,
			},
		})
		return
	}

	ctx.JSON(consts.StatusOK, utils.H{
		"ok":      true,
		"message": "Resume submitted for analysis.",
		"data":    resp,
	})
}

// mapAnalysisError 把流水线错误映射为HTTP状态码和对外文案
func mapAnalysisError(err error) (int, string) {
	var analysisErr *analyzer.AnalysisError

	switch {
	case errors.Is(err, analyzer.ErrFileTooLarge):
		return consts.StatusRequestEntityTooLarge, "Resume file exceeds the upload size limit."
	case errors.Is(err, analyzer.ErrNotResume):
		return consts.StatusBadRequest, "Please upload a resume."
	case errors.Is(err, analyzer.ErrInvalidInput), errors.Is(err, analyzer.ErrUnsupportedFileType):
		// 校验错误的Detail里是可外显的英文提示
		if errors.As(err, &analysisErr) && analysisErr.Detail != "" && errors.Is(err, analyzer.ErrInvalidInput) {
			return consts.StatusBadRequest, analysisErr.Detail
		}
		return consts.StatusBadRequest, "Upload a PDF or Word resume file."
	case errors.Is(err, analyzer.ErrEmptyModelOutput):
		return consts.StatusBadGateway, "Model returned an empty response."
	case model.IsRateLimited(err):
		return consts.StatusTooManyRequests, "Model quota or rate limit was reached. Check billing/usage, then retry."
	case model.IsAuthFailure(err):
		return consts.StatusUnauthorized, "Model authentication failed. Verify the provider API key and restart the server."
	case model.IsBadRequest(err):
		return consts.StatusBadRequest, "Model provider rejected the request."
	case strings.Contains(strings.ToLower(err.Error()), "timeout"),
		strings.Contains(strings.ToLower(err.Error()), "deadline exceeded"):
		return consts.StatusInternalServerError, "Resume analysis timed out. Please try again."
	default:
		return consts.StatusInternalServerError, "Unable to process resume analysis request."
	}
}
