package models

import "time"

// Outbox 消息的投递状态。
const (
	OutboxStatusPending = "PENDING" // 等待中继拾取
	OutboxStatusSent    = "SENT"    // 已成功发布到消息代理
	OutboxStatusFailed  = "FAILED"  // 重试耗尽，需要人工介入
)

// OutboxMessage 是事务性发件箱中的一条待发布事件。
// 与业务写入同事务落库，由中继轮询后转发到 RabbitMQ。
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"` // 关联的提交UUID
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:json;not null"` // JSON 事件体，以字符串形式存储
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage     string     `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
