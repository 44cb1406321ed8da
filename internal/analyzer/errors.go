package analyzer

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrInvalidInput        = errors.New("输入校验失败")
	ErrFileTooLarge        = errors.New("文件超出大小限制")
	ErrUnsupportedFileType = errors.New("不支持的文件类型")
	ErrNotResume           = errors.New("输入内容不是简历")
	ErrConvertFailed       = errors.New("文档格式转换失败")
	ErrModelCallFailed     = errors.New("模型调用失败")
	ErrEmptyModelOutput    = errors.New("模型返回空响应")
)

// AnalysisError 包含详细错误信息的自定义错误
type AnalysisError struct {
	SubmissionUUID string
	Op             string
	BaseErr        error
	Cause          error // 底层原因，保留错误链供上层分类
	Detail         string
}

func (e *AnalysisError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, UUID:%s): %s", e.BaseErr, e.Op, e.SubmissionUUID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, UUID:%s)", e.BaseErr, e.Op, e.SubmissionUUID)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.BaseErr, e.Cause}
	}
	return []error{e.BaseErr}
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnalysisError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewValidationError(uuid, detail string) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "validate",
		BaseErr:        ErrInvalidInput,
		Detail:         detail,
	}
}

func NewFileTooLargeError(uuid, detail string) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "validate",
		BaseErr:        ErrFileTooLarge,
		Detail:         detail,
	}
}

func NewUnsupportedFileError(uuid, detail string) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "validate",
		BaseErr:        ErrUnsupportedFileType,
		Detail:         detail,
	}
}

func NewRelevanceError(uuid, detail string) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "relevance",
		BaseErr:        ErrNotResume,
		Detail:         detail,
	}
}

func NewConvertError(uuid, detail string) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "convert",
		BaseErr:        ErrConvertFailed,
		Detail:         detail,
	}
}

func NewModelError(uuid string, cause error) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "model",
		BaseErr:        ErrModelCallFailed,
		Cause:          cause,
		Detail:         cause.Error(),
	}
}

func NewEmptyOutputError(uuid string) error {
	return &AnalysisError{
		SubmissionUUID: uuid,
		Op:             "model",
		BaseErr:        ErrEmptyModelOutput,
	}
}
