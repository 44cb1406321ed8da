package model

import (
	"context"

	"github.com/k-surya-teja/skillbias/internal/prompt"
)

// CompletionOptions 单次补全调用的参数
type CompletionOptions struct {
	Model       string // 为空时使用提供方的默认模型
	Temperature float64
	MaxTokens   int
	JSONMode    bool // 请求response_format=json_object
}

// Provider 模型补全能力的抽象
// 进程级单例、无状态、可并发使用；在启动时显式构造并注入
// 编排器，不作为包级全局。
type Provider interface {
	Name() string
	Complete(ctx context.Context, p prompt.Prompt, opts CompletionOptions) (string, error)
}
