package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/k-surya-teja/skillbias/internal/logger"
	"github.com/k-surya-teja/skillbias/internal/prompt"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel   = "llama-3.3-70b-versatile"
)

// OpenAIChatModel OpenAI兼容chat/completions接口的客户端
// 同时实现本包的Provider与eino的model.ToolCallingChatModel，
// 可以直接挂到eino的编排组件上。
type OpenAIChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	log        zerolog.Logger
}

// OpenAIOption 配置OpenAIChatModel的函数选项
type OpenAIOption func(*OpenAIChatModel)

// WithHTTPTimeout 设置单次请求的超时时间
func WithHTTPTimeout(timeout time.Duration) OpenAIOption {
	return func(m *OpenAIChatModel) {
		if timeout > 0 {
			m.httpClient.Timeout = timeout
		}
	}
}

// NewOpenAIChatModel 创建OpenAI兼容的聊天模型客户端
func NewOpenAIChatModel(apiKey, modelName, apiURL string, options ...OpenAIOption) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultModel
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultBaseURL
	}

	m := &OpenAIChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        logger.With("openai_chat_model"),
	}
	for _, option := range options {
		option(m)
	}
	m.log.Info().Str("api_url", apiURL).Str("model", modelName).Msg("OpenAI兼容聊天模型客户端已创建")
	return m, nil
}

// --- OpenAI兼容的请求/响应结构 ---

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

// chatMessage content既可以是字符串也可以是多模态分段列表
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Messages       []chatMessage   `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Name 实现Provider接口
func (m *OpenAIChatModel) Name() string {
	return "openai-compatible"
}

// Complete 实现Provider接口，执行一次补全
// 页面图片以data URL形式作为多模态分段附加在user消息中。
func (m *OpenAIChatModel) Complete(ctx context.Context, p prompt.Prompt, opts CompletionOptions) (string, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = m.modelName
	}

	var userContent interface{} = p.User
	if len(p.Images) > 0 {
		parts := []chatContentPart{{Type: "text", Text: p.User}}
		for _, image := range p.Images {
			parts = append(parts, chatContentPart{
				Type: "image_url",
				ImageURL: &chatImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
				},
			})
		}
		userContent = parts
	}

	reqPayload := chatCompletionRequest{
		Model:       modelName,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: userContent},
		},
	}
	if opts.JSONMode {
		reqPayload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return m.doRequest(ctx, &reqPayload)
}

// doRequest 发送请求并做错误分类
func (m *OpenAIChatModel) doRequest(ctx context.Context, reqPayload *chatCompletionRequest) (string, error) {
	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	m.log.Debug().Str("model", reqPayload.Model).Int("body_bytes", len(jsonData)).Msg("发送补全请求")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应体失败: %w", err)
	}

	var openAIResp chatCompletionResponse
	// 响应体可能不是合法JSON，此时保留原始文本作为错误信息
	_ = json.Unmarshal(bodyBytes, &openAIResp)

	if httpResp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("请求失败，状态%d", httpResp.StatusCode)
		if openAIResp.Error != nil && openAIResp.Error.Message != "" {
			message = openAIResp.Error.Message
		} else if len(bodyBytes) > 0 {
			message = truncate(string(bodyBytes), 500)
		}
		m.log.Warn().Int("status", httpResp.StatusCode).Str("message", message).Msg("模型提供方返回错误")
		return "", NewProviderError(httpResp.StatusCode, message)
	}

	if len(openAIResp.Choices) == 0 || openAIResp.Choices[0].Message.Content == nil {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(*openAIResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// Generate 实现eino的model.BaseChatModel接口（纯文本消息）
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...einomodel.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt
	}

	chatMessages := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	content, err := m.doRequest(ctx, &chatCompletionRequest{
		Model:       m.modelName,
		Temperature: 0.2,
		Messages:    chatMessages,
	})
	if err != nil {
		return nil, err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: content,
	}, nil
}

// Stream 实现eino的model.BaseChatModel接口（未实现流式）
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAIChatModel的Stream方法未实现")
}

// WithTools 实现eino的model.ToolCallingChatModel接口
// 本服务的补全都是无工具调用的JSON输出，这里仅满足接口
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		m.log.Warn().Int("tools", len(tools)).Msg("忽略工具绑定：该客户端不使用工具调用")
	}
	return m, nil
}

var _ Provider = (*OpenAIChatModel)(nil)
var _ einomodel.ToolCallingChatModel = (*OpenAIChatModel)(nil)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
