package convert

import (
	"errors"
	"fmt"
)

// 外部转换工具的两类终结性失败，调用方需要区分处理：
// 工具未安装时应提示部署问题，执行失败时应提示文件问题。
var (
	// ErrToolNotInstalled 外部工具在PATH中不存在
	ErrToolNotInstalled = errors.New("外部转换工具未安装")
	// ErrConversionFailed 外部工具执行失败（退出码非零、超时或产物缺失）
	ErrConversionFailed = errors.New("外部转换执行失败")
)

// ToolError 携带工具名与细节的转换错误
type ToolError struct {
	Tool    string // 工具名，例如 pdftotext
	BaseErr error  // ErrToolNotInstalled 或 ErrConversionFailed
	Detail  string // 补充细节，例如stderr片段
}

func (e *ToolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %v: %s", e.Tool, e.BaseErr, e.Detail)
	}
	return fmt.Sprintf("[%s] %v", e.Tool, e.BaseErr)
}

func (e *ToolError) Unwrap() error {
	return e.BaseErr
}

// NewNotInstalledError 创建工具未安装错误
func NewNotInstalledError(tool string, detail string) *ToolError {
	return &ToolError{Tool: tool, BaseErr: ErrToolNotInstalled, Detail: detail}
}

// NewExecFailedError 创建工具执行失败错误
func NewExecFailedError(tool string, detail string) *ToolError {
	return &ToolError{Tool: tool, BaseErr: ErrConversionFailed, Detail: detail}
}
