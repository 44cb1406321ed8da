package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 标记span错误的来源类别，后端按类别聚合与告警。
type ErrorType string

const (
	ErrorTypeDB          ErrorType = "db"
	ErrorTypeRedis       ErrorType = "redis"
	ErrorTypeObjectStore ErrorType = "object_store"
	ErrorTypeRabbitMQ    ErrorType = "rabbitmq"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeExtraction  ErrorType = "extraction"
	ErrorTypeRelevance   ErrorType = "relevance"
	ErrorTypeValidation  ErrorType = "validation"
)

// RecordError 在span上统一记录错误：错误事件、类别属性与Error状态。
// attrs 携带调用点的额外上下文（如被拒的提交UUID、解析方法）。
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxAttrLength)),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	span.SetStatus(codes.Error, err.Error())
}
