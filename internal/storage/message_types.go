package storage

import "time"

// AnalysisSubmittedMessage 分析提交消息
// 上传接口写入outbox后由中继发布，消费者据此拉取原始文件执行分析。
type AnalysisSubmittedMessage struct {
	EventID             string    `json:"event_id"`             // 事件唯一标识，用于消费端幂等判断
	SubmissionUUID      string    `json:"submission_uuid"`      // 提交UUID，主键
	SubmissionTimestamp time.Time `json:"submission_timestamp"` // 提交时间戳
	Source              string    `json:"source"`               // file / prompt / file-and-prompt
	OriginalFilename    string    `json:"original_filename,omitempty"`
	OriginalFilePathOSS string    `json:"original_file_path_oss,omitempty"` // MinIO中的对象路径
	RawFileMD5          string    `json:"raw_file_md5,omitempty"`           // 原始文件的MD5，用于失败时回滚去重记录
	UserPrompt          string    `json:"user_prompt,omitempty"`
	TargetJobID         string    `json:"target_job_id,omitempty"` // 可选的目标岗位标识
	MIMEType            string    `json:"mime_type,omitempty"`
}

// AnalysisCompletedMessage 分析完成消息
// 供下游系统订阅，负载只携带定位信息，结果本体从缓存/数据库读取。
type AnalysisCompletedMessage struct {
	SubmissionUUID   string `json:"submission_uuid"`
	ProcessingStatus string `json:"processing_status"` // COMPLETED / FAILED / REJECTED
	OverallScore     int    `json:"overall_score,omitempty"`
	CompletedAt      int64  `json:"completed_at"`    // Unix时间戳
	Error            string `json:"error,omitempty"` // 失败原因
}
